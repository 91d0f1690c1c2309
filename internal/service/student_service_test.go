package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type mockStudentRepo struct {
	students    map[string]models.Student
	admissions  map[string]string
	deactivated []string
	lastFilter  models.StudentFilter
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	out := make([]models.Student, 0, len(m.students))
	if filter.Page > 1 {
		return out, len(m.students), nil
	}
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, schoolID, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok && s.SchoolID == schoolID {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error) {
	if id, ok := m.admissions[admissionNo]; ok {
		return excludeID == "" || id != excludeID, nil
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if m.admissions == nil {
		m.admissions = make(map[string]string)
	}
	if student.ID == "" {
		student.ID = "st-" + student.AdmissionNo
	}
	m.students[student.ID] = *student
	m.admissions[student.AdmissionNo] = student.ID
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, schoolID, id string) error {
	m.deactivated = append(m.deactivated, id)
	if s, ok := m.students[id]; ok {
		s.Active = false
		m.students[id] = s
	}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, schoolID, id string) error {
	delete(m.students, id)
	return nil
}

func TestStudentCreateRejectsDuplicateAdmissionNo(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, nil, nil)

	first, err := svc.Create(context.Background(), "sch1", models.CreateStudentRequest{
		AdmissionNo: "ADM-001",
		FullName:    "Wanjiku Kamau",
		ClassName:   "Form 1A",
	})
	require.NoError(t, err)
	assert.True(t, first.Active)

	_, err = svc.Create(context.Background(), "sch1", models.CreateStudentRequest{
		AdmissionNo: "ADM-001",
		FullName:    "Otieno Odhiambo",
		ClassName:   "Form 1B",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdatePatchesOnlyProvidedFields(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"st1": {
			ID: "st1", SchoolID: "sch1", AdmissionNo: "ADM-002",
			FullName: "Achieng Onyango", ClassName: "Form 2B",
			GuardianPhone: "+254700111222", Active: true,
		},
	}}
	svc := NewStudentService(repo, nil, nil)

	newClass := "Form 3B"
	inactive := false
	updated, err := svc.Update(context.Background(), "sch1", "st1", models.UpdateStudentRequest{
		ClassName: &newClass,
		Active:    &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Form 3B", updated.ClassName)
	assert.False(t, updated.Active)
	assert.Equal(t, "Achieng Onyango", updated.FullName)
	assert.Equal(t, "+254700111222", updated.GuardianPhone)
}

func TestStudentImportRoster(t *testing.T) {
	repo := &mockStudentRepo{admissions: map[string]string{"ADM-010": "existing"}}
	svc := NewStudentService(repo, nil, nil)

	csv := "admission_no,full_name,class_name,guardian_phone\n" +
		"ADM-010,Baraka Mwangi,Form 1A,+254711000111\n" +
		"ADM-011,Zawadi Njeri,Form 1A,+254722000222\n" +
		"ADM-012,Kiprotich Bett,Form 1B,+254733000333\n"

	result, err := svc.ImportRoster(context.Background(), "sch1", []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 2")
}

func TestStudentImportRosterMissingColumn(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil)

	csv := "admission_no,guardian_phone\nADM-020,+254700000000\n"
	_, err := svc.ImportRoster(context.Background(), "sch1", []byte(csv))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentDeactivate(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"st1": {ID: "st1", SchoolID: "sch1", AdmissionNo: "ADM-030", FullName: "Juma Hassan", ClassName: "Form 4A", Active: true},
	}}
	svc := NewStudentService(repo, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "sch1", "st1"))
	assert.Equal(t, []string{"st1"}, repo.deactivated)

	err := svc.Deactivate(context.Background(), "sch1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
