package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// PaymentRepository serves read access over payments, credit operations and
// carry forwards. Writes go through the posting engine.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository instantiates a payment read repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// List returns payments matching the filter with the total count.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}
	var conditions []string

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("method = $%d", len(args)+1))
		args = append(args, filter.Method)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "amount": true, "method": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT * %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, (page-1)*size)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// FindByID loads a payment scoped to a school.
func (r *PaymentRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Payment, error) {
	const query = `SELECT * FROM payments WHERE id = $1 AND school_id = $2`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id, schoolID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListCreditOperations returns the credit history for a student, newest first.
func (r *PaymentRepository) ListCreditOperations(ctx context.Context, schoolID, studentID string) ([]models.CreditOperation, error) {
	const query = `SELECT * FROM credit_operations WHERE school_id = $1 AND student_id = $2 ORDER BY created_at DESC`
	var ops []models.CreditOperation
	if err := r.db.SelectContext(ctx, &ops, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("list credit operations: %w", err)
	}
	return ops, nil
}

// ListCarryForwards returns carry forward rows for a student.
func (r *PaymentRepository) ListCarryForwards(ctx context.Context, schoolID, studentID string) ([]models.CarryForward, error) {
	const query = `SELECT * FROM carry_forwards WHERE school_id = $1 AND student_id = $2 ORDER BY created_at DESC`
	var carries []models.CarryForward
	if err := r.db.SelectContext(ctx, &carries, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("list carry forwards: %w", err)
	}
	return carries, nil
}
