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

// SchoolRepository handles persistence for schools and their settings.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository instantiates a school repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByID loads a school by identifier.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, code, name, active, created_at, updated_at FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// FindByCode resolves a school code to its record.
func (r *SchoolRepository) FindByCode(ctx context.Context, code string) (*models.School, error) {
	const query = `SELECT id, code, name, active, created_at, updated_at FROM schools WHERE code = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, code); err != nil {
		return nil, err
	}
	return &school, nil
}

// List returns all schools ordered by name.
func (r *SchoolRepository) List(ctx context.Context) ([]models.School, error) {
	const query = `SELECT id, code, name, active, created_at, updated_at FROM schools ORDER BY name`
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// Create inserts a new school record.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now

	const query = `INSERT INTO schools (id, code, name, active, created_at, updated_at) VALUES (:id, :code, :name, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// Update modifies an existing school.
func (r *SchoolRepository) Update(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schools SET code = :code, name = :name, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("update school: %w", err)
	}
	return nil
}

// GetSetting returns the value for one settings key, empty when unset.
func (r *SchoolRepository) GetSetting(ctx context.Context, schoolID, key string) (string, error) {
	const query = `SELECT value FROM school_settings WHERE school_id = $1 AND key = $2`
	var value string
	if err := r.db.GetContext(ctx, &value, query, schoolID, key); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// ListSettings returns every settings entry for a school.
func (r *SchoolRepository) ListSettings(ctx context.Context, schoolID string) ([]models.SchoolSetting, error) {
	const query = `SELECT school_id, key, value, updated_at FROM school_settings WHERE school_id = $1 ORDER BY key`
	var settings []models.SchoolSetting
	if err := r.db.SelectContext(ctx, &settings, query, schoolID); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// UpsertSetting writes a settings key, replacing any previous value.
func (r *SchoolRepository) UpsertSetting(ctx context.Context, schoolID, key, value string) error {
	const query = `INSERT INTO school_settings (school_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (school_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, schoolID, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}
