package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type paymentLedger interface {
	PostPayment(ctx context.Context, payment *models.Payment) (*repository.PaymentOutcome, error)
	ReversePayment(ctx context.Context, schoolID, paymentID string) (*models.Payment, error)
	ListEntries(ctx context.Context, schoolID, studentID string, limit, offset int) ([]models.LedgerEntry, error)
	Recompute(ctx context.Context, schoolID, studentID string) (*models.Student, error)
}

type paymentReader interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Payment, error)
	ListCreditOperations(ctx context.Context, schoolID, studentID string) ([]models.CreditOperation, error)
	ListCarryForwards(ctx context.Context, schoolID, studentID string) ([]models.CarryForward, error)
}

type receiptNotifier interface {
	QueueReceiptEmail(student models.Student, outcome *repository.PaymentOutcome)
}

// PaymentService posts and reverses payments. The actual money movement is
// delegated to the posting engine; this layer validates, resolves the open
// term and fans out receipts and metrics.
type PaymentService struct {
	ledger     paymentLedger
	payments   paymentReader
	terms      termRepository
	students   studentRepository
	notifier   receiptNotifier
	dashboards dashboardInvalidator
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(ledger paymentLedger, payments paymentReader, terms termRepository, students studentRepository, notifier receiptNotifier, dashboards dashboardInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{
		ledger:     ledger,
		payments:   payments,
		terms:      terms,
		students:   students,
		notifier:   notifier,
		dashboards: dashboards,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Record posts a manual payment against the school's open term.
func (s *PaymentService) Record(ctx context.Context, schoolID, recordedBy string, req models.RecordPaymentRequest) (*repository.PaymentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	term, err := s.terms.FindCurrent(ctx, schoolID)
	if err != nil {
		if errors.Is(err, repository.ErrNoOpenTerm) {
			return nil, appErrors.Clone(appErrors.ErrTermNotOpen, "open a term before recording payments")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}

	student, err := s.students.FindByID(ctx, schoolID, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payment := &models.Payment{
		SchoolID:  schoolID,
		StudentID: student.ID,
		TermID:    term.ID,
		Amount:    req.Amount,
		Method:    models.PaymentMethod(req.Method),
		Narrative: req.Narrative,
	}
	if req.Reference != "" {
		payment.Reference = &req.Reference
	}
	if recordedBy != "" {
		payment.RecordedBy = &recordedBy
	}

	outcome, err := s.ledger.PostPayment(ctx, payment)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateReference, "payment reference already recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post payment")
	}

	s.metrics.ObservePayment(string(payment.Method), payment.Amount)
	if s.notifier != nil {
		s.notifier.QueueReceiptEmail(*student, outcome)
	}
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}

	s.logger.Info("payment posted",
		zap.String("school_id", schoolID),
		zap.String("student_id", student.ID),
		zap.String("payment_id", payment.ID),
		zap.String("method", string(payment.Method)),
		zap.Float64("amount", payment.Amount),
		zap.Float64("to_credit", outcome.AddedToCredit))
	return outcome, nil
}

// Reverse undoes a posted payment.
func (s *PaymentService) Reverse(ctx context.Context, schoolID, paymentID string) (*models.Payment, error) {
	payment, err := s.ledger.ReversePayment(ctx, schoolID, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		case errors.Is(err, repository.ErrAlreadyReversed):
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment already reversed")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reverse payment")
		}
	}

	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}
	s.logger.Info("payment reversed",
		zap.String("school_id", schoolID),
		zap.String("payment_id", paymentID))
	return payment, nil
}

// List returns payments matching a filter.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// StudentLedger returns a student's ledger entries, newest first.
func (s *PaymentService) StudentLedger(ctx context.Context, schoolID, studentID string, limit, offset int) ([]models.LedgerEntry, error) {
	if _, err := s.students.FindByID(ctx, schoolID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	entries, err := s.ledger.ListEntries(ctx, schoolID, studentID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger entries")
	}
	return entries, nil
}

// RecomputeStudent re-derives a student's balance and credit from the ledger
// and persists the corrected figures. Used to repair drift flagged by the
// ledger-drift report.
func (s *PaymentService) RecomputeStudent(ctx context.Context, schoolID, studentID string) (*models.Student, error) {
	if _, err := s.students.FindByID(ctx, schoolID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	student, err := s.ledger.Recompute(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute balances")
	}
	s.logger.Info("student balances recomputed from ledger",
		zap.String("school_id", schoolID),
		zap.String("student_id", studentID))
	return student, nil
}

// Get loads one payment.
func (s *PaymentService) Get(ctx context.Context, schoolID, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, schoolID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}
