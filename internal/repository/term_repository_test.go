package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
)

func termRows(status models.TermStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "school_id", "year", "term", "status", "is_current", "opened_at", "closed_at", "created_at", "updated_at"}).
		AddRow("t1", "sc1", 2026, 1, status, false, nil, nil, time.Now(), time.Now())
}

func TestTermOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM academic_terms WHERE id = .+ FOR UPDATE").
		WithArgs("t1", "sc1").
		WillReturnRows(termRows(models.TermStatusDraft))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("sc1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE academic_terms SET is_current = FALSE").
		WithArgs("sc1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE academic_terms SET status = 'OPEN'").
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	term, err := repo.Open(context.Background(), "sc1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TermStatusOpen, term.Status)
	assert.True(t, term.IsCurrent)
	assert.NotNil(t, term.OpenedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermOpenRejectsSecondOpenTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM academic_terms WHERE id = .+ FOR UPDATE").
		WithArgs("t1", "sc1").
		WillReturnRows(termRows(models.TermStatusDraft))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("sc1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Open(context.Background(), "sc1", "t1")
	assert.ErrorIs(t, err, ErrTermAlreadyOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermOpenRejectsClosedTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM academic_terms WHERE id = .+ FOR UPDATE").
		WithArgs("t1", "sc1").
		WillReturnRows(termRows(models.TermStatusClosed))
	mock.ExpectRollback()

	_, err := repo.Open(context.Background(), "sc1", "t1")
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermCloseRejectsDraft(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM academic_terms WHERE id = .+ FOR UPDATE").
		WithArgs("t1", "sc1").
		WillReturnRows(termRows(models.TermStatusDraft))
	mock.ExpectRollback()

	_, err := repo.Close(context.Background(), "sc1", "t1")
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermStatusTransitions(t *testing.T) {
	assert.True(t, models.TermStatusDraft.CanTransitionTo(models.TermStatusOpen))
	assert.True(t, models.TermStatusOpen.CanTransitionTo(models.TermStatusClosed))
	assert.False(t, models.TermStatusDraft.CanTransitionTo(models.TermStatusClosed))
	assert.False(t, models.TermStatusClosed.CanTransitionTo(models.TermStatusOpen))
	assert.False(t, models.TermStatusOpen.CanTransitionTo(models.TermStatusDraft))
}
