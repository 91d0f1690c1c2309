package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// TermRepository handles persistence for academic terms. Status transitions
// run inside transactions so the one-open-term rule holds under concurrency;
// the partial unique index on (school_id) WHERE status = 'OPEN' backs it up.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// List returns terms for a school matching the filter.
func (r *TermRepository) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	base := "FROM academic_terms WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}
	var conditions []string

	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT * %s ORDER BY year DESC, term DESC LIMIT %d OFFSET %d", base, size, (page-1)*size)

	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list terms: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count terms: %w", err)
	}
	return terms, total, nil
}

// FindByID loads a term scoped to a school.
func (r *TermRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Term, error) {
	const query = `SELECT * FROM academic_terms WHERE id = $1 AND school_id = $2`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id, schoolID); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindCurrent returns the school's current open term, or ErrNoOpenTerm when
// no term is open.
func (r *TermRepository) FindCurrent(ctx context.Context, schoolID string) (*models.Term, error) {
	const query = `SELECT * FROM academic_terms WHERE school_id = $1 AND status = 'OPEN'`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, schoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoOpenTerm
		}
		return nil, err
	}
	return &term, nil
}

// FindByYearTerm resolves a term by its (year, term) pair.
func (r *TermRepository) FindByYearTerm(ctx context.Context, schoolID string, year, termNo int) (*models.Term, error) {
	const query = `SELECT * FROM academic_terms WHERE school_id = $1 AND year = $2 AND term = $3`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, schoolID, year, termNo); err != nil {
		return nil, err
	}
	return &term, nil
}

// Create inserts a term in DRAFT status.
func (r *TermRepository) Create(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	term.Status = models.TermStatusDraft
	now := time.Now().UTC()
	term.CreatedAt = now
	term.UpdatedAt = now

	const query = `INSERT INTO academic_terms (id, school_id, year, term, status, is_current, created_at, updated_at)
		VALUES (:id, :school_id, :year, :term, :status, :is_current, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("create term: %w", err)
	}
	return nil
}

// Open transitions a DRAFT term to OPEN and marks it current. The previous
// current flag is cleared in the same transaction. Returns the open term.
func (r *TermRepository) Open(ctx context.Context, schoolID, id string) (*models.Term, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin open term: %w", err)
	}
	defer tx.Rollback()

	var term models.Term
	if err := tx.GetContext(ctx, &term, `SELECT * FROM academic_terms WHERE id = $1 AND school_id = $2 FOR UPDATE`, id, schoolID); err != nil {
		return nil, err
	}
	if !term.Status.CanTransitionTo(models.TermStatusOpen) {
		return nil, ErrTransitionNotAllowed
	}

	var openCount int
	if err := tx.GetContext(ctx, &openCount, `SELECT COUNT(*) FROM academic_terms WHERE school_id = $1 AND status = 'OPEN'`, schoolID); err != nil {
		return nil, fmt.Errorf("check open terms: %w", err)
	}
	if openCount > 0 {
		return nil, ErrTermAlreadyOpen
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE academic_terms SET is_current = FALSE, updated_at = $2 WHERE school_id = $1 AND is_current = TRUE`, schoolID, now); err != nil {
		return nil, fmt.Errorf("clear current term: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE academic_terms SET status = 'OPEN', is_current = TRUE, opened_at = $2, updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return nil, fmt.Errorf("open term: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit open term: %w", err)
	}

	term.Status = models.TermStatusOpen
	term.IsCurrent = true
	term.OpenedAt = &now
	term.UpdatedAt = now
	return &term, nil
}

// Close transitions an OPEN term to CLOSED. The term stays current until the
// next one opens, so read endpoints keep a frame of reference.
func (r *TermRepository) Close(ctx context.Context, schoolID, id string) (*models.Term, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin close term: %w", err)
	}
	defer tx.Rollback()

	var term models.Term
	if err := tx.GetContext(ctx, &term, `SELECT * FROM academic_terms WHERE id = $1 AND school_id = $2 FOR UPDATE`, id, schoolID); err != nil {
		return nil, err
	}
	if !term.Status.CanTransitionTo(models.TermStatusClosed) {
		return nil, ErrTransitionNotAllowed
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE academic_terms SET status = 'CLOSED', closed_at = $2, updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return nil, fmt.Errorf("close term: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close term: %w", err)
	}

	term.Status = models.TermStatusClosed
	term.ClosedAt = &now
	term.UpdatedAt = now
	return &term, nil
}

// Delete removes a DRAFT term. Invoiced terms are protected by FK references.
func (r *TermRepository) Delete(ctx context.Context, schoolID, id string) error {
	const query = `DELETE FROM academic_terms WHERE id = $1 AND school_id = $2 AND status = 'DRAFT'`
	res, err := r.db.ExecContext(ctx, query, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete term: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
