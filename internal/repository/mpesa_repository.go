package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// MpesaRepository tracks STK push attempts keyed by checkout request ID.
type MpesaRepository struct {
	db *sqlx.DB
}

// NewMpesaRepository instantiates an M-Pesa transaction repository.
func NewMpesaRepository(db *sqlx.DB) *MpesaRepository {
	return &MpesaRepository{db: db}
}

// Create records a freshly initiated STK push in PENDING state.
func (r *MpesaRepository) Create(ctx context.Context, txn *models.MpesaTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	txn.Status = models.MpesaStatusPending

	const query = `INSERT INTO mpesa_transactions (id, school_id, student_id, phone, amount, merchant_request_id, checkout_request_id, status, result_desc, created_at, updated_at)
		VALUES (:id, :school_id, :student_id, :phone, :amount, :merchant_request_id, :checkout_request_id, :status, :result_desc, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("create mpesa transaction: %w", err)
	}
	return nil
}

// FindByCheckoutID resolves a tracking row from the gateway's checkout ID.
func (r *MpesaRepository) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
	const query = `SELECT * FROM mpesa_transactions WHERE checkout_request_id = $1`
	var txn models.MpesaTransaction
	if err := r.db.GetContext(ctx, &txn, query, checkoutRequestID); err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByID loads a tracking row scoped to a school.
func (r *MpesaRepository) FindByID(ctx context.Context, schoolID, id string) (*models.MpesaTransaction, error) {
	const query = `SELECT * FROM mpesa_transactions WHERE id = $1 AND school_id = $2`
	var txn models.MpesaTransaction
	if err := r.db.GetContext(ctx, &txn, query, id, schoolID); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Resolve finalizes a PENDING transaction with the callback result. The
// status guard makes duplicate callback deliveries no-ops: the update reports
// whether this call won the transition.
func (r *MpesaRepository) Resolve(ctx context.Context, checkoutRequestID string, status models.MpesaStatus, resultCode int, resultDesc string, receipt *string, rawCallback []byte) (bool, error) {
	const query = `UPDATE mpesa_transactions SET status = $2, result_code = $3, result_desc = $4, receipt = $5, raw_callback = $6, updated_at = $7
		WHERE checkout_request_id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, checkoutRequestID, status, resultCode, resultDesc, receipt, rawCallback, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("resolve mpesa transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve mpesa transaction: %w", err)
	}
	return n > 0, nil
}

// ListByStudent returns a student's STK push history, newest first.
func (r *MpesaRepository) ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.MpesaTransaction, error) {
	const query = `SELECT * FROM mpesa_transactions WHERE school_id = $1 AND student_id = $2 ORDER BY created_at DESC`
	var txns []models.MpesaTransaction
	if err := r.db.SelectContext(ctx, &txns, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("list mpesa transactions: %w", err)
	}
	return txns, nil
}

// ExpireStale marks PENDING rows older than the cutoff as FAILED. The STK
// prompt itself times out on the handset, so rows stuck in PENDING mean the
// callback never arrived.
func (r *MpesaRepository) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	const query = `UPDATE mpesa_transactions SET status = 'FAILED', result_desc = 'callback timeout', updated_at = $2
		WHERE status = 'PENDING' AND created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale mpesa transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
