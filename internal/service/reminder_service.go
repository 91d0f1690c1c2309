package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	"github.com/noah-isme/shulepay-api/pkg/config"
	"github.com/noah-isme/shulepay-api/pkg/jobs"
	"github.com/noah-isme/shulepay-api/pkg/mailer"
)

type reminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, detail string) error
	ListBySchool(ctx context.Context, schoolID string, limit, offset int) ([]models.Reminder, error)
	LastSentAt(ctx context.Context, schoolID, studentID string) (*time.Time, error)
}

type debtorLister interface {
	ListDebtors(ctx context.Context, schoolID string, minBalance float64) ([]models.Student, error)
}

type schoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	GetSetting(ctx context.Context, schoolID, key string) (string, error)
}

const (
	jobTypeReceipt  = "receipt_email"
	jobTypeReminder = "balance_reminder"
)

type receiptJob struct {
	student models.Student
	outcome repository.PaymentOutcome
}

type reminderJob struct {
	reminder models.Reminder
	student  models.Student
}

// ReminderService sends guardians balance reminders and payment receipts by
// email. Delivery runs on a background queue so request handlers never wait
// on the mail provider.
type ReminderService struct {
	repo    reminderRepository
	debtors debtorLister
	schools schoolReader
	mail    *mailer.Mailer
	metrics *MetricsService
	cfg     config.RemindersConfig
	logger  *zap.Logger
	queue   *jobs.Queue
}

// NewReminderService constructs a ReminderService with its delivery queue.
func NewReminderService(repo reminderRepository, debtors debtorLister, schools schoolReader, mail *mailer.Mailer, metrics *MetricsService, cfg config.RemindersConfig, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReminderService{
		repo:    repo,
		debtors: debtors,
		schools: schools,
		mail:    mail,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *ReminderService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *ReminderService) Stop() {
	s.queue.Stop()
}

// QueueReceiptEmail enqueues a payment receipt email for the guardian.
// Students without a guardian email are silently skipped.
func (s *ReminderService) QueueReceiptEmail(student models.Student, outcome *repository.PaymentOutcome) {
	if student.GuardianEmail == "" || outcome == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeReceipt,
		Payload: receiptJob{student: student, outcome: *outcome},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue receipt email", zap.Error(err))
	}
}

// Sweep creates and queues balance reminders for every debtor over the
// threshold. Students reminded within the last 24 hours are skipped so a
// manual sweep right after the scheduled one does not double-send.
func (s *ReminderService) Sweep(ctx context.Context, schoolID string, req models.SendRemindersRequest) (int, error) {
	minBalance := req.MinBalance
	if minBalance <= 0 {
		minBalance = s.cfg.MinBalance
	}
	channel := models.ChannelEmail
	if req.Channel != "" {
		channel = models.ReminderChannel(req.Channel)
	}

	students, err := s.debtors.ListDebtors(ctx, schoolID, minBalance)
	if err != nil {
		return 0, fmt.Errorf("list debtors: %w", err)
	}

	queued := 0
	for _, student := range students {
		if channel == models.ChannelEmail && student.GuardianEmail == "" {
			continue
		}
		last, err := s.repo.LastSentAt(ctx, schoolID, student.ID)
		if err != nil {
			s.logger.Warn("failed to check last reminder", zap.String("student_id", student.ID), zap.Error(err))
			continue
		}
		if last != nil && time.Since(*last) < 24*time.Hour {
			continue
		}

		reminder := &models.Reminder{
			SchoolID:  schoolID,
			StudentID: student.ID,
			Channel:   channel,
			Detail:    fmt.Sprintf("balance %.2f", student.Balance),
		}
		if err := s.repo.Create(ctx, reminder); err != nil {
			s.logger.Warn("failed to create reminder", zap.String("student_id", student.ID), zap.Error(err))
			continue
		}

		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    jobTypeReminder,
			Payload: reminderJob{reminder: *reminder, student: student},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue reminder", zap.Error(err))
			continue
		}
		queued++
	}

	s.logger.Info("reminder sweep queued",
		zap.String("school_id", schoolID),
		zap.Int("queued", queued),
		zap.Float64("min_balance", minBalance))
	return queued, nil
}

// RunScheduledSweeps fires a sweep for one school on a daily ticker at the
// configured hour. Intended to run as a goroutine from main.
func (s *ReminderService) RunScheduledSweeps(ctx context.Context, schoolIDs func(context.Context) ([]string, error)) {
	if !s.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.UTC().Hour() != s.cfg.SweepHour {
				continue
			}
			ids, err := schoolIDs(ctx)
			if err != nil {
				s.logger.Warn("failed to list schools for sweep", zap.Error(err))
				continue
			}
			for _, id := range ids {
				if _, err := s.Sweep(ctx, id, models.SendRemindersRequest{}); err != nil {
					s.logger.Warn("scheduled sweep failed", zap.String("school_id", id), zap.Error(err))
				}
			}
		}
	}
}

// History returns a school's reminder log.
func (s *ReminderService) History(ctx context.Context, schoolID string, limit, offset int) ([]models.Reminder, error) {
	return s.repo.ListBySchool(ctx, schoolID, limit, offset)
}

func (s *ReminderService) handleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeReceipt:
		payload, ok := job.Payload.(receiptJob)
		if !ok {
			return fmt.Errorf("unexpected payload for %s", job.Type)
		}
		return s.sendReceipt(ctx, payload)
	case jobTypeReminder:
		payload, ok := job.Payload.(reminderJob)
		if !ok {
			return fmt.Errorf("unexpected payload for %s", job.Type)
		}
		return s.sendReminder(ctx, payload)
	default:
		s.logger.Warn("unknown job type", zap.String("type", job.Type))
		return nil
	}
}

func (s *ReminderService) sendReceipt(ctx context.Context, payload receiptJob) error {
	schoolName := s.schoolName(ctx, payload.student.SchoolID)
	payment := payload.outcome.Payment

	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>We have received a payment of <b>KES %.2f</b> (%s) for %s (%s).</p><p>Outstanding balance: KES %.2f. Credit balance: KES %.2f.</p><p>%s</p>",
		guardianSalutation(payload.student),
		payment.Amount, payment.Method,
		payload.student.FullName, payload.student.AdmissionNo,
		payload.outcome.NewBalance, payload.outcome.NewCredit,
		schoolName,
	)

	return s.mail.Send(ctx, mailer.Message{
		To:       payload.student.GuardianEmail,
		ToName:   payload.student.GuardianName,
		Subject:  fmt.Sprintf("Payment received - %s", payload.student.FullName),
		HTMLBody: body,
	})
}

func (s *ReminderService) sendReminder(ctx context.Context, payload reminderJob) error {
	schoolName := s.schoolName(ctx, payload.reminder.SchoolID)

	subject, err := s.schools.GetSetting(ctx, payload.reminder.SchoolID, models.SettingReminderSubject)
	if err != nil || subject == "" {
		subject = fmt.Sprintf("Fee balance reminder - %s", payload.student.FullName)
	}

	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>This is a reminder that %s (%s) has an outstanding fee balance of <b>KES %.2f</b>.</p><p>Kindly arrange payment at your earliest convenience.</p><p>%s</p>",
		guardianSalutation(payload.student),
		payload.student.FullName, payload.student.AdmissionNo,
		payload.student.Balance,
		schoolName,
	)

	err = s.mail.Send(ctx, mailer.Message{
		To:       payload.student.GuardianEmail,
		ToName:   payload.student.GuardianName,
		Subject:  subject,
		HTMLBody: body,
	})
	if err != nil {
		s.metrics.ObserveReminder(string(models.ReminderFailed))
		if markErr := s.repo.MarkFailed(ctx, payload.reminder.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark reminder failed", zap.Error(markErr))
		}
		return err
	}

	s.metrics.ObserveReminder(string(models.ReminderSent))
	if err := s.repo.MarkSent(ctx, payload.reminder.ID); err != nil {
		s.logger.Warn("failed to mark reminder sent", zap.Error(err))
	}
	return nil
}

func (s *ReminderService) schoolName(ctx context.Context, schoolID string) string {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return ""
	}
	if brand, err := s.schools.GetSetting(ctx, schoolID, models.SettingBrandName); err == nil && brand != "" {
		return brand
	}
	return school.Name
}

func guardianSalutation(student models.Student) string {
	if student.GuardianName != "" {
		return student.GuardianName
	}
	return "Guardian"
}
