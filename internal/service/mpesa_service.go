package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/mpesa"
)

type mpesaGateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

type mpesaRepository interface {
	Create(ctx context.Context, txn *models.MpesaTransaction) error
	FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.MpesaTransaction, error)
	Resolve(ctx context.Context, checkoutRequestID string, status models.MpesaStatus, resultCode int, resultDesc string, receipt *string, rawCallback []byte) (bool, error)
	ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.MpesaTransaction, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MpesaService drives STK push collection: it initiates prompts through the
// Daraja gateway and turns successful callbacks into posted payments.
// Callbacks are idempotent: the tracking row's PENDING guard ensures a
// duplicate delivery never posts twice.
type MpesaService struct {
	gateway     mpesaGateway
	repo        mpesaRepository
	ledger      paymentLedger
	terms       termRepository
	students    studentRepository
	dashboards  dashboardInvalidator
	metrics     *MetricsService
	callbackURL string
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMpesaService constructs an MpesaService.
func NewMpesaService(gateway mpesaGateway, repo mpesaRepository, ledger paymentLedger, terms termRepository, students studentRepository, dashboards dashboardInvalidator, metrics *MetricsService, callbackURL string, validate *validator.Validate, logger *zap.Logger) *MpesaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MpesaService{
		gateway:     gateway,
		repo:        repo,
		ledger:      ledger,
		terms:       terms,
		students:    students,
		dashboards:  dashboards,
		metrics:     metrics,
		callbackURL: callbackURL,
		validator:   validate,
		logger:      logger,
	}
}

// Initiate sends an STK push prompt to the payer's handset and records a
// PENDING tracking row keyed by the gateway's checkout request ID.
func (s *MpesaService) Initiate(ctx context.Context, schoolID string, req models.STKPushRequest) (*models.MpesaTransaction, error) {
	if s.gateway == nil {
		return nil, appErrors.Clone(appErrors.ErrGatewayUnavailable, "mpesa collection is not configured")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stk push payload")
	}

	if _, err := s.terms.FindCurrent(ctx, schoolID); err != nil {
		if errors.Is(err, repository.ErrNoOpenTerm) {
			return nil, appErrors.Clone(appErrors.ErrTermNotOpen, "open a term before collecting payments")
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

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Phone:            req.Phone,
		Amount:           req.Amount,
		AccountReference: student.AdmissionNo,
		Description:      fmt.Sprintf("School fees %s", student.AdmissionNo),
		CallbackURL:      s.callbackURL,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "stk push failed")
	}

	txn := &models.MpesaTransaction{
		SchoolID:          schoolID,
		StudentID:         student.ID,
		Phone:             req.Phone,
		Amount:            req.Amount,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		ResultDesc:        resp.ResponseDescription,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to track stk push")
	}

	s.logger.Info("stk push initiated",
		zap.String("school_id", schoolID),
		zap.String("student_id", student.ID),
		zap.String("checkout_request_id", txn.CheckoutRequestID),
		zap.Float64("amount", req.Amount))
	return txn, nil
}

// HandleCallback consumes a Daraja result callback. A successful result posts
// the payment through the ledger; failures only update the tracking row.
func (s *MpesaService) HandleCallback(ctx context.Context, raw []byte) error {
	result, err := mpesa.ParseCallback(raw)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed mpesa callback")
	}

	txn, err := s.repo.FindByCheckoutID(ctx, result.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("callback for unknown checkout request",
				zap.String("checkout_request_id", result.CheckoutRequestID))
			return appErrors.Clone(appErrors.ErrNotFound, "unknown checkout request")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stk transaction")
	}

	status := models.MpesaStatusFailed
	var receipt *string
	if result.Success() {
		status = models.MpesaStatusSuccess
		if result.Receipt != "" {
			receipt = &result.Receipt
		}
	}

	if status != models.MpesaStatusSuccess {
		won, err := s.repo.Resolve(ctx, result.CheckoutRequestID, status, result.ResultCode, result.ResultDesc, receipt, result.Raw)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve stk transaction")
		}
		if !won {
			s.logger.Debug("duplicate mpesa callback ignored",
				zap.String("checkout_request_id", result.CheckoutRequestID))
			return nil
		}
		s.metrics.ObserveMpesaCallback(string(status))
		s.logger.Info("stk push failed",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Int("result_code", result.ResultCode),
			zap.String("result_desc", result.ResultDesc))
		return nil
	}

	if txn.Status != models.MpesaStatusPending {
		// Already settled by an earlier delivery.
		s.logger.Debug("duplicate mpesa callback ignored",
			zap.String("checkout_request_id", result.CheckoutRequestID))
		return nil
	}

	term, err := s.terms.FindCurrent(ctx, txn.SchoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "no open term for confirmed payment")
	}

	amount := result.Amount
	if amount <= 0 {
		amount = txn.Amount
	}

	payment := &models.Payment{
		SchoolID:  txn.SchoolID,
		StudentID: txn.StudentID,
		TermID:    term.ID,
		Amount:    amount,
		Method:    models.MethodMpesa,
		Narrative: "M-Pesa STK push",
	}
	if receipt != nil {
		payment.Reference = receipt
	}

	// Post first, resolve after: if the post fails the row stays PENDING and
	// Daraja's retry gets another shot. A crash between post and resolve is
	// caught by the duplicate-reference guard on the receipt number.
	outcome, err := s.ledger.PostPayment(ctx, payment)
	switch {
	case errors.Is(err, repository.ErrDuplicateReference):
		s.logger.Warn("mpesa payment already posted, settling tracking row",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.String("receipt", result.Receipt))
	case err != nil:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post confirmed mpesa payment")
	}

	won, err := s.repo.Resolve(ctx, result.CheckoutRequestID, status, result.ResultCode, result.ResultDesc, receipt, result.Raw)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve stk transaction")
	}
	if !won || outcome == nil {
		return nil
	}

	s.metrics.ObserveMpesaCallback(string(status))
	s.metrics.ObservePayment(string(models.MethodMpesa), amount)
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, txn.SchoolID)
	}
	s.logger.Info("mpesa payment posted",
		zap.String("school_id", txn.SchoolID),
		zap.String("student_id", txn.StudentID),
		zap.String("receipt", result.Receipt),
		zap.Float64("amount", amount),
		zap.Float64("to_credit", outcome.AddedToCredit))
	return nil
}

// Status returns one tracking row.
func (s *MpesaService) Status(ctx context.Context, schoolID, id string) (*models.MpesaTransaction, error) {
	txn, err := s.repo.FindByID(ctx, schoolID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stk transaction not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stk transaction")
	}
	return txn, nil
}

// History returns a student's STK push attempts.
func (s *MpesaService) History(ctx context.Context, schoolID, studentID string) ([]models.MpesaTransaction, error) {
	txns, err := s.repo.ListByStudent(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stk transactions")
	}
	return txns, nil
}

// ExpireStale marks PENDING transactions older than the cutoff as FAILED.
// Daraja prompts time out on the handset long before that, so anything still
// pending will never receive a callback.
func (s *MpesaService) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	expired, err := s.repo.ExpireStale(ctx, olderThan)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire stale stk transactions")
	}
	if expired > 0 {
		s.logger.Info("expired stale stk transactions", zap.Int64("count", expired))
	}
	return expired, nil
}
