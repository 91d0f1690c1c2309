package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/middleware"
	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/service"
)

type studentRepoStub struct {
	students   []models.Student
	findErr    error
	lastFilter models.StudentFilter
	created    *models.Student
}

func (m *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	return m.students, len(m.students), nil
}

func (m *studentRepoStub) FindByID(ctx context.Context, schoolID, id string) (*models.Student, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := range m.students {
		if m.students[i].ID == id && m.students[i].SchoolID == schoolID {
			return &m.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *studentRepoStub) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error) {
	for _, st := range m.students {
		if st.SchoolID == schoolID && st.AdmissionNo == admissionNo && st.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	student.ID = "st-new"
	m.created = student
	return nil
}

func (m *studentRepoStub) Update(ctx context.Context, student *models.Student) error { return nil }

func (m *studentRepoStub) Deactivate(ctx context.Context, schoolID, id string) error { return nil }

func (m *studentRepoStub) Delete(ctx context.Context, schoolID, id string) error { return nil }

func testContext(w *httptest.ResponseRecorder, method, target string, body []byte) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleBursar})
	c.Set(middleware.ContextSchoolKey, "sch1")
	return c
}

func TestStudentHandlerListScopesToSchool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &studentRepoStub{students: []models.Student{
		{ID: "st1", SchoolID: "sch1", AdmissionNo: "ADM-001", FullName: "Wanjiku Kamau", ClassName: "Form 1A"},
	}}
	h := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	w := httptest.NewRecorder()
	c := testContext(w, http.MethodGet, "/students?class_name=Form+1A&with_debt=true", nil)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sch1", repo.lastFilter.SchoolID)
	assert.Equal(t, "Form 1A", repo.lastFilter.ClassName)
	assert.True(t, repo.lastFilter.WithDebt)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewStudentHandler(service.NewStudentService(&studentRepoStub{}, nil, nil))

	w := httptest.NewRecorder()
	c := testContext(w, http.MethodGet, "/students/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &studentRepoStub{}
	h := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	payload, _ := json.Marshal(models.CreateStudentRequest{
		AdmissionNo: "ADM-042",
		FullName:    "Brian Otieno",
		ClassName:   "Form 2B",
	})
	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/students", payload)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, "sch1", repo.created.SchoolID)
	assert.Equal(t, "ADM-042", repo.created.AdmissionNo)
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewStudentHandler(service.NewStudentService(&studentRepoStub{}, nil, nil))

	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/students", []byte(`{"admission_no":`))

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerCreateDuplicateAdmissionNo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &studentRepoStub{students: []models.Student{
		{ID: "st1", SchoolID: "sch1", AdmissionNo: "ADM-001", FullName: "Wanjiku Kamau", ClassName: "Form 1A"},
	}}
	h := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	payload, _ := json.Marshal(models.CreateStudentRequest{
		AdmissionNo: "ADM-001",
		FullName:    "Faith Njeri",
		ClassName:   "Form 1A",
	})
	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/students", payload)

	h.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
}
