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

type creditLedger interface {
	ApplyCredit(ctx context.Context, op *models.CreditOperation) (*repository.PaymentOutcome, error)
	RefundCredit(ctx context.Context, op *models.CreditOperation) (*repository.PaymentOutcome, error)
	TransferCredit(ctx context.Context, transfer *models.CreditTransfer) (*models.CreditTransfer, error)
}

// CreditService manages overpayment credit: applying it against balances,
// refunding it, and moving it between siblings.
type CreditService struct {
	ledger     creditLedger
	payments   paymentReader
	students   studentRepository
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCreditService constructs a CreditService.
func NewCreditService(ledger creditLedger, payments paymentReader, students studentRepository, dashboards dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *CreditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CreditService{
		ledger:     ledger,
		payments:   payments,
		students:   students,
		dashboards: dashboards,
		validator:  validate,
		logger:     logger,
	}
}

// Apply spends a student's credit against their outstanding balance.
func (s *CreditService) Apply(ctx context.Context, schoolID, performedBy string, req models.CreditActionRequest) (*repository.PaymentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit payload")
	}

	op := &models.CreditOperation{
		SchoolID:  schoolID,
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Note:      req.Note,
	}
	if performedBy != "" {
		op.PerformedBy = &performedBy
	}

	outcome, err := s.ledger.ApplyCredit(ctx, op)
	if err != nil {
		return nil, mapCreditErr(err)
	}

	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}
	s.logger.Info("credit applied",
		zap.String("school_id", schoolID),
		zap.String("student_id", req.StudentID),
		zap.Float64("amount", outcome.AppliedToBalance))
	return outcome, nil
}

// Refund pays out part of a student's credit.
func (s *CreditService) Refund(ctx context.Context, schoolID, performedBy string, req models.CreditActionRequest) (*repository.PaymentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit payload")
	}

	op := &models.CreditOperation{
		SchoolID:  schoolID,
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Note:      req.Note,
	}
	if performedBy != "" {
		op.PerformedBy = &performedBy
	}

	outcome, err := s.ledger.RefundCredit(ctx, op)
	if err != nil {
		return nil, mapCreditErr(err)
	}

	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}
	s.logger.Info("credit refunded",
		zap.String("school_id", schoolID),
		zap.String("student_id", req.StudentID),
		zap.Float64("amount", req.Amount))
	return outcome, nil
}

// Transfer moves credit from one student to another within the same school.
func (s *CreditService) Transfer(ctx context.Context, schoolID, performedBy string, req models.CreditTransferRequest) (*models.CreditTransfer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	transfer := &models.CreditTransfer{
		SchoolID:      schoolID,
		FromStudentID: req.FromStudentID,
		ToStudentID:   req.ToStudentID,
		Amount:        req.Amount,
	}
	if performedBy != "" {
		transfer.PerformedBy = &performedBy
	}

	done, err := s.ledger.TransferCredit(ctx, transfer)
	if err != nil {
		return nil, mapCreditErr(err)
	}

	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}
	s.logger.Info("credit transferred",
		zap.String("school_id", schoolID),
		zap.String("from", req.FromStudentID),
		zap.String("to", req.ToStudentID),
		zap.Float64("amount", req.Amount),
		zap.Float64("applied_to_balance", done.AppliedToBalance))
	return done, nil
}

// History returns a student's credit operations.
func (s *CreditService) History(ctx context.Context, schoolID, studentID string) ([]models.CreditOperation, error) {
	if _, err := s.students.FindByID(ctx, schoolID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	ops, err := s.payments.ListCreditOperations(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credit operations")
	}
	return ops, nil
}

// CarryForwards returns a student's carry forward rows.
func (s *CreditService) CarryForwards(ctx context.Context, schoolID, studentID string) ([]models.CarryForward, error) {
	carries, err := s.payments.ListCarryForwards(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list carry forwards")
	}
	return carries, nil
}

func mapCreditErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	case errors.Is(err, repository.ErrInsufficientCredit):
		return appErrors.Clone(appErrors.ErrInsufficientCredit, "credit balance too low")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "credit operation failed")
	}
}
