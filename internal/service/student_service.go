package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Student, error)
	ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, schoolID, id string) error
	Delete(ctx context.Context, schoolID, id string) error
}

// StudentService provides student registry use cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students matching a filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single student.
func (s *StudentService) Get(ctx context.Context, schoolID, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, schoolID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, schoolID string, req models.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	exists, err := s.repo.ExistsByAdmissionNo(ctx, schoolID, req.AdmissionNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already registered")
	}

	student := &models.Student{
		SchoolID:      schoolID,
		AdmissionNo:   req.AdmissionNo,
		FullName:      req.FullName,
		ClassName:     req.ClassName,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		GuardianEmail: req.GuardianEmail,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student registered",
		zap.String("school_id", schoolID),
		zap.String("student_id", student.ID),
		zap.String("admission_no", student.AdmissionNo))
	return student, nil
}

// Update edits a student's profile fields.
func (s *StudentService) Update(ctx context.Context, schoolID, id string, req models.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}

	if req.AdmissionNo != nil && *req.AdmissionNo != student.AdmissionNo {
		exists, err := s.repo.ExistsByAdmissionNo(ctx, schoolID, *req.AdmissionNo, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already registered")
		}
		student.AdmissionNo = *req.AdmissionNo
	}
	if req.FullName != nil {
		student.FullName = *req.FullName
	}
	if req.ClassName != nil {
		student.ClassName = *req.ClassName
	}
	if req.GuardianName != nil {
		student.GuardianName = *req.GuardianName
	}
	if req.GuardianPhone != nil {
		student.GuardianPhone = *req.GuardianPhone
	}
	if req.GuardianEmail != nil {
		student.GuardianEmail = *req.GuardianEmail
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Deactivate soft-disables a student. Financial history stays intact.
func (s *StudentService) Deactivate(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, schoolID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}

// Delete removes a student permanently together with their payments and
// ledger history. Deactivate is the safer default.
func (s *StudentService) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := s.Get(ctx, schoolID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, schoolID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// ExportRoster renders the full roster as CSV, mirroring the import columns.
func (s *StudentService) ExportRoster(ctx context.Context, schoolID string) ([]byte, error) {
	data := export.Dataset{
		Headers: []string{"admission_no", "full_name", "class_name", "guardian_name", "guardian_phone", "guardian_email", "balance", "credit", "active"},
	}
	filter := models.StudentFilter{SchoolID: schoolID, Page: 1, PageSize: 500}
	for {
		students, _, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
		if len(students) == 0 {
			break
		}
		for _, st := range students {
			data.Rows = append(data.Rows, map[string]string{
				"admission_no":   st.AdmissionNo,
				"full_name":      st.FullName,
				"class_name":     st.ClassName,
				"guardian_name":  st.GuardianName,
				"guardian_phone": st.GuardianPhone,
				"guardian_email": st.GuardianEmail,
				"balance":        strconv.FormatFloat(st.Balance, 'f', 2, 64),
				"credit":         strconv.FormatFloat(st.Credit, 'f', 2, 64),
				"active":         strconv.FormatBool(st.Active),
			})
		}
		if len(students) < filter.PageSize {
			break
		}
		filter.Page++
	}

	exporter := &export.CSVExporter{}
	raw, err := exporter.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	return raw, nil
}

// ImportRoster bulk-registers students from an uploaded CSV. Expected headers:
// admission_no, full_name, class_name, guardian_name, guardian_phone,
// guardian_email. Rows that fail validation are skipped and reported.
func (s *StudentService) ImportRoster(ctx context.Context, schoolID string, raw []byte) (*models.RosterImportResult, error) {
	data, err := export.Parse(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "could not parse roster csv")
	}

	required := map[string]bool{"admission_no": false, "full_name": false, "class_name": false}
	for _, h := range data.Headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := required[key]; ok {
			required[key] = true
		}
	}
	for key, found := range required {
		if !found {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster csv missing %q column", key))
		}
	}

	result := &models.RosterImportResult{}
	for i, row := range data.Rows {
		req := models.CreateStudentRequest{
			AdmissionNo:   strings.TrimSpace(row["admission_no"]),
			FullName:      strings.TrimSpace(row["full_name"]),
			ClassName:     strings.TrimSpace(row["class_name"]),
			GuardianName:  strings.TrimSpace(row["guardian_name"]),
			GuardianPhone: strings.TrimSpace(row["guardian_phone"]),
			GuardianEmail: strings.TrimSpace(row["guardian_email"]),
		}
		if _, err := s.Create(ctx, schoolID, req); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, "row "+strconv.Itoa(i+2)+": "+appErrors.FromError(err).Message)
			continue
		}
		result.Imported++
	}

	s.logger.Info("roster imported",
		zap.String("school_id", schoolID),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
