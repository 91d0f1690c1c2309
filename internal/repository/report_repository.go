package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// ReportRepository runs the aggregate queries behind the dashboard and the
// collection reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository instantiates a report repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ActiveStudentCount counts active students in a school.
func (r *ReportRepository) ActiveStudentCount(ctx context.Context, schoolID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM students WHERE school_id = $1 AND active = TRUE`, schoolID); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// CollectedTotal sums non-reversed payments for a term. The synthetic CREDIT
// method is excluded so carried-forward money is not double counted.
func (r *ReportRepository) CollectedTotal(ctx context.Context, schoolID, termID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE school_id = $1 AND term_id = $2 AND reversed = FALSE AND method <> 'CREDIT'`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, schoolID, termID); err != nil {
		return 0, fmt.Errorf("sum collected: %w", err)
	}
	return total, nil
}

// CollectedSince sums non-reversed payments recorded at or after the cutoff.
func (r *ReportRepository) CollectedSince(ctx context.Context, schoolID string, since time.Time) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE school_id = $1 AND reversed = FALSE AND method <> 'CREDIT' AND created_at >= $2`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, schoolID, since); err != nil {
		return 0, fmt.Errorf("sum collected since: %w", err)
	}
	return total, nil
}

// OutstandingTotals returns the sum of balances and credits across active
// students.
func (r *ReportRepository) OutstandingTotals(ctx context.Context, schoolID string) (outstanding, credit float64, err error) {
	row := struct {
		Outstanding float64 `db:"outstanding"`
		Credit      float64 `db:"credit"`
	}{}
	const query = `SELECT COALESCE(SUM(balance), 0) AS outstanding, COALESCE(SUM(credit), 0) AS credit
		FROM students WHERE school_id = $1 AND active = TRUE`
	if err := r.db.GetContext(ctx, &row, query, schoolID); err != nil {
		return 0, 0, fmt.Errorf("sum outstanding: %w", err)
	}
	return row.Outstanding, row.Credit, nil
}

// DefaulterCount counts active students owing more than the threshold.
func (r *ReportRepository) DefaulterCount(ctx context.Context, schoolID string, minBalance float64) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM students WHERE school_id = $1 AND active = TRUE AND balance > $2`
	if err := r.db.GetContext(ctx, &count, query, schoolID, minBalance); err != nil {
		return 0, fmt.Errorf("count defaulters: %w", err)
	}
	return count, nil
}

// MpesaSuccessRate returns the fraction of resolved STK pushes that
// succeeded over the trailing window. Zero when none were attempted.
func (r *ReportRepository) MpesaSuccessRate(ctx context.Context, schoolID string, since time.Time) (float64, error) {
	row := struct {
		Total   int `db:"total"`
		Success int `db:"success"`
	}{}
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE status = 'SUCCESS') AS success
		FROM mpesa_transactions WHERE school_id = $1 AND status <> 'PENDING' AND created_at >= $2`
	if err := r.db.GetContext(ctx, &row, query, schoolID, since); err != nil {
		return 0, fmt.Errorf("mpesa success rate: %w", err)
	}
	if row.Total == 0 {
		return 0, nil
	}
	return float64(row.Success) / float64(row.Total), nil
}

// CollectionsByMethod breaks term collections down per payment method.
func (r *ReportRepository) CollectionsByMethod(ctx context.Context, schoolID, termID string) ([]models.MethodTotal, error) {
	const query = `SELECT method, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		FROM payments WHERE school_id = $1 AND term_id = $2 AND reversed = FALSE
		GROUP BY method ORDER BY total DESC`
	var totals []models.MethodTotal
	if err := r.db.SelectContext(ctx, &totals, query, schoolID, termID); err != nil {
		return nil, fmt.Errorf("collections by method: %w", err)
	}
	return totals, nil
}

// DailyCollections returns per-day collection totals over a date range.
func (r *ReportRepository) DailyCollections(ctx context.Context, schoolID string, from, to time.Time) ([]models.DailyTotal, error) {
	const query = `SELECT TO_CHAR(created_at::date, 'YYYY-MM-DD') AS day, COALESCE(SUM(amount), 0) AS total
		FROM payments WHERE school_id = $1 AND reversed = FALSE AND method <> 'CREDIT' AND created_at >= $2 AND created_at < $3
		GROUP BY created_at::date ORDER BY day`
	var totals []models.DailyTotal
	if err := r.db.SelectContext(ctx, &totals, query, schoolID, from, to); err != nil {
		return nil, fmt.Errorf("daily collections: %w", err)
	}
	return totals, nil
}

// OutstandingByClass groups owed totals per class for active students.
func (r *ReportRepository) OutstandingByClass(ctx context.Context, schoolID string) ([]models.ClassOutstanding, error) {
	const query = `SELECT class_name, COALESCE(SUM(balance), 0) AS outstanding, COUNT(*) AS students
		FROM students WHERE school_id = $1 AND active = TRUE
		GROUP BY class_name ORDER BY class_name`
	var rows []models.ClassOutstanding
	if err := r.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("outstanding by class: %w", err)
	}
	return rows, nil
}

// Defaulters lists active students over the threshold, largest debt first.
func (r *ReportRepository) Defaulters(ctx context.Context, schoolID string, minBalance float64, limit int) ([]models.Defaulter, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	const query = `SELECT id AS student_id, admission_no, full_name, class_name, guardian_phone, balance
		FROM students WHERE school_id = $1 AND active = TRUE AND balance > $2
		ORDER BY balance DESC LIMIT $3`
	var rows []models.Defaulter
	if err := r.db.SelectContext(ctx, &rows, query, schoolID, minBalance, limit); err != nil {
		return nil, fmt.Errorf("list defaulters: %w", err)
	}
	return rows, nil
}

// LedgerDrift reports students whose stored balance or credit disagrees with
// their last ledger entry. An empty result means the books are consistent.
func (r *ReportRepository) LedgerDrift(ctx context.Context, schoolID string) ([]models.Student, error) {
	const query = `SELECT s.* FROM students s
		JOIN LATERAL (
			SELECT balance_after, credit_after FROM ledger_entries
			WHERE student_id = s.id ORDER BY created_at DESC, id DESC LIMIT 1
		) l ON TRUE
		WHERE s.school_id = $1 AND (s.balance <> l.balance_after OR s.credit <> l.credit_after)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, schoolID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger drift: %w", err)
	}
	return students, nil
}
