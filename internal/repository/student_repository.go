package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shulepay-api/internal/models"
)

const studentColumns = `id, school_id, admission_no, full_name, class_name, guardian_name, guardian_phone, guardian_email, balance, credit, active, created_at, updated_at`

// StudentRepository handles persistence for students. Balance and credit
// columns are read-only here; only the ledger repository mutates them.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter along with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}

	var conditions []string
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR admission_no ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ClassName != "" {
		conditions = append(conditions, fmt.Sprintf("class_name = $%d", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.WithDebt {
		conditions = append(conditions, fmt.Sprintf("balance > $%d", len(args)+1))
		args = append(args, filter.MinBalance)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"full_name":    true,
		"admission_no": true,
		"class_name":   true,
		"balance":      true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "full_name"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, base, sortBy, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	return students, total, nil
}

// FindByID loads a student scoped to a school.
func (r *StudentRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1 AND school_id = $2", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id, schoolID); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByAdmissionNo resolves a student by admission number within a school.
func (r *StudentRepository) FindByAdmissionNo(ctx context.Context, schoolID, admissionNo string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE school_id = $1 AND admission_no = $2", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, schoolID, admissionNo); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByAdmissionNo checks admission number uniqueness within a school.
func (r *StudentRepository) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error) {
	base := "SELECT 1 FROM students WHERE school_id = $1 AND admission_no = $2"
	args := []interface{}{schoolID, admissionNo}
	if excludeID != "" {
		base += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check admission number: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, school_id, admission_no, full_name, class_name, guardian_name, guardian_phone, guardian_email, balance, credit, active, created_at, updated_at)
		VALUES (:id, :school_id, :admission_no, :full_name, :class_name, :guardian_name, :guardian_phone, :guardian_email, :balance, :credit, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies profile fields. Balance and credit are deliberately absent.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET admission_no = :admission_no, full_name = :full_name, class_name = :class_name,
		guardian_name = :guardian_name, guardian_phone = :guardian_phone, guardian_email = :guardian_email,
		active = :active, updated_at = :updated_at WHERE id = :id AND school_id = :school_id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate soft-disables a student without touching financial history.
func (r *StudentRepository) Deactivate(ctx context.Context, schoolID, id string) error {
	const query = `UPDATE students SET active = FALSE, updated_at = $3 WHERE id = $1 AND school_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, schoolID, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}

// Delete removes a student permanently. Payments and ledger rows cascade.
func (r *StudentRepository) Delete(ctx context.Context, schoolID, id string) error {
	const query = `DELETE FROM students WHERE id = $1 AND school_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, schoolID); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// ListDebtors returns active students owing more than the threshold, used by
// the reminder sweep and defaulter report.
func (r *StudentRepository) ListDebtors(ctx context.Context, schoolID string, minBalance float64) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE school_id = $1 AND active = TRUE AND balance > $2 ORDER BY balance DESC", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, schoolID, minBalance); err != nil {
		return nil, fmt.Errorf("list debtors: %w", err)
	}
	return students, nil
}
