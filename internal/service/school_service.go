package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type schoolRepository interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindByCode(ctx context.Context, code string) (*models.School, error)
	List(ctx context.Context) ([]models.School, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
	GetSetting(ctx context.Context, schoolID, key string) (string, error)
	ListSettings(ctx context.Context, schoolID string) ([]models.SchoolSetting, error)
	UpsertSetting(ctx context.Context, schoolID, key, value string) error
}

// SchoolService manages tenants and their per-school settings.
type SchoolService struct {
	repo     schoolRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSchoolService constructs a SchoolService.
func NewSchoolService(repo schoolRepository, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, validate: validate, logger: logger}
}

// List returns every tenant. SUPERADMIN only.
func (s *SchoolService) List(ctx context.Context) ([]models.School, error) {
	schools, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	return schools, nil
}

// ActiveSchoolIDs feeds the scheduled reminder sweeps.
func (s *SchoolService) ActiveSchoolIDs(ctx context.Context) ([]string, error) {
	schools, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(schools))
	for _, school := range schools {
		if school.Active {
			ids = append(ids, school.ID)
		}
	}
	return ids, nil
}

// Get loads one school.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create onboards a new tenant with a unique short code.
func (s *SchoolService) Create(ctx context.Context, req *models.CreateSchoolRequest) (*models.School, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if existing, err := s.repo.FindByCode(ctx, code); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school code already in use")
	}

	school := &models.School{
		Code:   code,
		Name:   strings.TrimSpace(req.Name),
		Active: true,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}
	s.logger.Info("school created", zap.String("school_id", school.ID), zap.String("code", school.Code))
	return school, nil
}

// Update edits a tenant's name or active flag.
func (s *SchoolService) Update(ctx context.Context, id string, req *models.UpdateSchoolRequest) (*models.School, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	school, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		school.Name = strings.TrimSpace(*req.Name)
	}
	if req.Active != nil {
		school.Active = *req.Active
	}
	if err := s.repo.Update(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school")
	}
	return school, nil
}

// Settings lists all per-school configuration entries. Secret-bearing
// M-Pesa values are masked.
func (s *SchoolService) Settings(ctx context.Context, schoolID string) ([]models.SchoolSetting, error) {
	settings, err := s.repo.ListSettings(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	for i := range settings {
		if isSecretSetting(settings[i].Key) && settings[i].Value != "" {
			settings[i].Value = "********"
		}
	}
	return settings, nil
}

// UpsertSetting writes one configuration value.
func (s *SchoolService) UpsertSetting(ctx context.Context, schoolID string, req *models.UpsertSettingRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid setting payload")
	}
	if err := s.repo.UpsertSetting(ctx, schoolID, req.Key, req.Value); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save setting")
	}
	s.logger.Info("setting updated", zap.String("school_id", schoolID), zap.String("key", req.Key))
	return nil
}

func isSecretSetting(key string) bool {
	switch key {
	case models.SettingMpesaPasskey, models.SettingMpesaConsumerKey, models.SettingMpesaConsumerSecret:
		return true
	default:
		return false
	}
}
