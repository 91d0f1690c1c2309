package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "school_id", "admission_no", "full_name", "class_name", "guardian_name", "guardian_phone", "guardian_email", "balance", "credit", "active", "created_at", "updated_at"})
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := studentRows().
		AddRow("st1", "sc1", "ADM001", "Wanjiku Kamau", "Form 1", "Grace Kamau", "+254700000001", "grace@example.com", 15000.0, 0.0, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+studentColumns+" FROM students WHERE school_id = $1 ORDER BY full_name ASC LIMIT 20 OFFSET 0")).
		WithArgs("sc1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE school_id = $1")).
		WithArgs("sc1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{SchoolID: "sc1"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "ADM001", students[0].AdmissionNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListWithDebt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+studentColumns+" FROM students WHERE school_id = $1 AND balance > $2 ORDER BY balance DESC LIMIT 20 OFFSET 0")).
		WithArgs("sc1", 1000.0).
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE school_id = $1 AND balance > $2")).
		WithArgs("sc1", 1000.0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	students, total, err := repo.List(context.Background(), models.StudentFilter{
		SchoolID:   "sc1",
		WithDebt:   true,
		MinBalance: 1000,
		SortBy:     "balance",
		SortOrder:  "desc",
	})
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{
		SchoolID:      "sc1",
		AdmissionNo:   "ADM002",
		FullName:      "Brian Otieno",
		ClassName:     "Form 2",
		GuardianPhone: "+254700000002",
		Active:        true,
	}
	err := repo.Create(context.Background(), student)
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET active = FALSE")).
		WithArgs("st1", "sc1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "sc1", "st1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListDebtors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := studentRows().
		AddRow("st1", "sc1", "ADM001", "Wanjiku Kamau", "Form 1", "Grace Kamau", "+254700000001", "grace@example.com", 15000.0, 0.0, true, time.Now(), time.Now()).
		AddRow("st2", "sc1", "ADM002", "Brian Otieno", "Form 2", "", "+254700000002", "", 8000.0, 0.0, true, time.Now(), time.Now())
	mock.ExpectQuery("FROM students WHERE school_id = .+ AND active = TRUE AND balance > .+ ORDER BY balance DESC").
		WithArgs("sc1", 0.0).
		WillReturnRows(rows)

	debtors, err := repo.ListDebtors(context.Background(), "sc1", 0)
	require.NoError(t, err)
	require.Len(t, debtors, 2)
	assert.Greater(t, debtors[0].Balance, debtors[1].Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
