package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// FeeRepository handles fee components, class defaults, student overrides and
// the invoices they resolve into.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository instantiates a fee repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// ListComponents returns all fee components for a school ordered by name.
func (r *FeeRepository) ListComponents(ctx context.Context, schoolID string) ([]models.FeeComponent, error) {
	const query = `SELECT * FROM fee_components WHERE school_id = $1 ORDER BY name`
	var components []models.FeeComponent
	if err := r.db.SelectContext(ctx, &components, query, schoolID); err != nil {
		return nil, fmt.Errorf("list fee components: %w", err)
	}
	return components, nil
}

// FindComponent loads a fee component scoped to a school.
func (r *FeeRepository) FindComponent(ctx context.Context, schoolID, id string) (*models.FeeComponent, error) {
	const query = `SELECT * FROM fee_components WHERE id = $1 AND school_id = $2`
	var component models.FeeComponent
	if err := r.db.GetContext(ctx, &component, query, id, schoolID); err != nil {
		return nil, err
	}
	return &component, nil
}

// CreateComponent inserts a new fee component.
func (r *FeeRepository) CreateComponent(ctx context.Context, component *models.FeeComponent) error {
	if component.ID == "" {
		component.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	component.CreatedAt = now
	component.UpdatedAt = now

	const query = `INSERT INTO fee_components (id, school_id, name, default_amount, created_at, updated_at)
		VALUES (:id, :school_id, :name, :default_amount, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, component); err != nil {
		return fmt.Errorf("create fee component: %w", err)
	}
	return nil
}

// UpdateComponent modifies a fee component's name and default amount.
func (r *FeeRepository) UpdateComponent(ctx context.Context, component *models.FeeComponent) error {
	component.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fee_components SET name = :name, default_amount = :default_amount, updated_at = :updated_at
		WHERE id = :id AND school_id = :school_id`
	if _, err := r.db.NamedExecContext(ctx, query, component); err != nil {
		return fmt.Errorf("update fee component: %w", err)
	}
	return nil
}

// DeleteComponent removes a fee component. Components referenced by invoice
// items are protected by the FK.
func (r *FeeRepository) DeleteComponent(ctx context.Context, schoolID, id string) error {
	const query = `DELETE FROM fee_components WHERE id = $1 AND school_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, schoolID); err != nil {
		return fmt.Errorf("delete fee component: %w", err)
	}
	return nil
}

// ListClassDefaults returns per-class component amounts for a term.
func (r *FeeRepository) ListClassDefaults(ctx context.Context, schoolID, termID string) ([]models.ClassFeeDefault, error) {
	const query = `SELECT * FROM class_fee_defaults WHERE school_id = $1 AND term_id = $2 ORDER BY class_name`
	var defaults []models.ClassFeeDefault
	if err := r.db.SelectContext(ctx, &defaults, query, schoolID, termID); err != nil {
		return nil, fmt.Errorf("list class fee defaults: %w", err)
	}
	return defaults, nil
}

// UpsertClassDefault sets the amount for a (term, class, component) triple.
func (r *FeeRepository) UpsertClassDefault(ctx context.Context, d *models.ClassFeeDefault) error {
	const query = `INSERT INTO class_fee_defaults (school_id, term_id, class_name, component_id, amount)
		VALUES (:school_id, :term_id, :class_name, :component_id, :amount)
		ON CONFLICT (term_id, class_name, component_id) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("upsert class fee default: %w", err)
	}
	return nil
}

// DeleteClassDefault removes a class-level override.
func (r *FeeRepository) DeleteClassDefault(ctx context.Context, schoolID, termID, className, componentID string) error {
	const query = `DELETE FROM class_fee_defaults WHERE school_id = $1 AND term_id = $2 AND class_name = $3 AND component_id = $4`
	if _, err := r.db.ExecContext(ctx, query, schoolID, termID, className, componentID); err != nil {
		return fmt.Errorf("delete class fee default: %w", err)
	}
	return nil
}

// ListStudentOverrides returns per-student component amounts for a term.
func (r *FeeRepository) ListStudentOverrides(ctx context.Context, schoolID, termID, studentID string) ([]models.StudentFeeOverride, error) {
	const query = `SELECT * FROM student_fee_overrides WHERE school_id = $1 AND term_id = $2 AND student_id = $3`
	var overrides []models.StudentFeeOverride
	if err := r.db.SelectContext(ctx, &overrides, query, schoolID, termID, studentID); err != nil {
		return nil, fmt.Errorf("list student fee overrides: %w", err)
	}
	return overrides, nil
}

// UpsertStudentOverride sets the amount for a (term, student, component) triple.
func (r *FeeRepository) UpsertStudentOverride(ctx context.Context, o *models.StudentFeeOverride) error {
	const query = `INSERT INTO student_fee_overrides (school_id, term_id, student_id, component_id, amount)
		VALUES (:school_id, :term_id, :student_id, :component_id, :amount)
		ON CONFLICT (term_id, student_id, component_id) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("upsert student fee override: %w", err)
	}
	return nil
}

// DeleteStudentOverride removes a student-level override.
func (r *FeeRepository) DeleteStudentOverride(ctx context.Context, schoolID, termID, studentID, componentID string) error {
	const query = `DELETE FROM student_fee_overrides WHERE school_id = $1 AND term_id = $2 AND student_id = $3 AND component_id = $4`
	if _, err := r.db.ExecContext(ctx, query, schoolID, termID, studentID, componentID); err != nil {
		return fmt.Errorf("delete student fee override: %w", err)
	}
	return nil
}

// FindInvoice returns a student's invoice for a term with its items, or
// sql.ErrNoRows when none has been generated yet.
func (r *FeeRepository) FindInvoice(ctx context.Context, schoolID, studentID, termID string) (*models.Invoice, error) {
	const query = `SELECT * FROM invoices WHERE school_id = $1 AND student_id = $2 AND term_id = $3`
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, schoolID, studentID, termID); err != nil {
		return nil, err
	}

	const itemsQuery = `SELECT * FROM invoice_items WHERE invoice_id = $1 ORDER BY description`
	if err := r.db.SelectContext(ctx, &invoice.Items, itemsQuery, invoice.ID); err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	return &invoice, nil
}

// ListInvoicesByTerm returns all invoices of a term without item detail.
func (r *FeeRepository) ListInvoicesByTerm(ctx context.Context, schoolID, termID string) ([]models.Invoice, error) {
	const query = `SELECT * FROM invoices WHERE school_id = $1 AND term_id = $2`
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, schoolID, termID); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// saveInvoiceTx upserts an invoice and its items inside the caller's
// transaction, replacing any previous item set. Invoice generation runs it
// under the posting engine's transaction so the charge commits with the rows.
func saveInvoiceTx(ctx context.Context, tx *sqlx.Tx, invoice *models.Invoice) error {
	now := time.Now().UTC()
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	const upsert = `INSERT INTO invoices (id, school_id, student_id, term_id, subtotal, discount, total, created_at, updated_at)
		VALUES (:id, :school_id, :student_id, :term_id, :subtotal, :discount, :total, :created_at, :updated_at)
		ON CONFLICT (student_id, term_id) DO UPDATE SET subtotal = EXCLUDED.subtotal, discount = EXCLUDED.discount,
			total = EXCLUDED.total, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, upsert, invoice); err != nil {
		return fmt.Errorf("upsert invoice: %w", err)
	}

	// The upsert keeps the original row id on regeneration.
	var storedID string
	if err := tx.GetContext(ctx, &storedID, `SELECT id FROM invoices WHERE student_id = $1 AND term_id = $2`, invoice.StudentID, invoice.TermID); err != nil {
		return fmt.Errorf("resolve invoice id: %w", err)
	}
	invoice.ID = storedID

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoice.ID); err != nil {
		return fmt.Errorf("clear invoice items: %w", err)
	}
	for i := range invoice.Items {
		item := &invoice.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.InvoiceID = invoice.ID
		const insertItem = `INSERT INTO invoice_items (id, invoice_id, component_id, description, amount)
			VALUES (:id, :invoice_id, :component_id, :description, :amount)`
		if _, err := tx.NamedExecContext(ctx, insertItem, item); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

// InvoicedTotal sums invoice totals for a term. Returns 0 when none exist.
func (r *FeeRepository) InvoicedTotal(ctx context.Context, schoolID, termID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(total), 0) FROM invoices WHERE school_id = $1 AND term_id = $2`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, schoolID, termID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("sum invoiced: %w", err)
	}
	return total, nil
}
