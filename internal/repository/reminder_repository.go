package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// ReminderRepository logs outbound balance notification attempts.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository instantiates a reminder repository.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create inserts a reminder in PENDING state.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if reminder.Status == "" {
		reminder.Status = models.ReminderPending
	}
	reminder.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO reminders (id, school_id, student_id, channel, status, detail, created_at)
		VALUES (:id, :school_id, :student_id, :channel, :status, :detail, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// MarkSent transitions a reminder to SENT.
func (r *ReminderRepository) MarkSent(ctx context.Context, id string) error {
	const query = `UPDATE reminders SET status = 'SENT', sent_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// MarkFailed transitions a reminder to FAILED with a reason.
func (r *ReminderRepository) MarkFailed(ctx context.Context, id, detail string) error {
	const query = `UPDATE reminders SET status = 'FAILED', detail = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, detail); err != nil {
		return fmt.Errorf("mark reminder failed: %w", err)
	}
	return nil
}

// ListBySchool returns reminders for a school, newest first.
func (r *ReminderRepository) ListBySchool(ctx context.Context, schoolID string, limit, offset int) ([]models.Reminder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT * FROM reminders WHERE school_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, schoolID, limit, offset); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// LastSentAt returns when a student was last successfully reminded, nil when
// never. Used to throttle the sweep.
func (r *ReminderRepository) LastSentAt(ctx context.Context, schoolID, studentID string) (*time.Time, error) {
	const query = `SELECT MAX(sent_at) FROM reminders WHERE school_id = $1 AND student_id = $2 AND status = 'SENT'`
	var last *time.Time
	if err := r.db.GetContext(ctx, &last, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("last reminder: %w", err)
	}
	return last, nil
}
