package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type mockTermRepo struct {
	terms      map[string]models.Term
	byYearTerm map[[2]int]string
	current    string
	openErr    error
	closeErr   error
}

func (m *mockTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	out := make([]models.Term, 0, len(m.terms))
	for _, t := range m.terms {
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *mockTermRepo) FindByID(ctx context.Context, schoolID, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok && t.SchoolID == schoolID {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) FindCurrent(ctx context.Context, schoolID string) (*models.Term, error) {
	if t, ok := m.terms[m.current]; ok && t.SchoolID == schoolID {
		return &t, nil
	}
	return nil, repository.ErrNoOpenTerm
}

func (m *mockTermRepo) FindByYearTerm(ctx context.Context, schoolID string, year, termNo int) (*models.Term, error) {
	if id, ok := m.byYearTerm[[2]int{year, termNo}]; ok {
		t := m.terms[id]
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) Create(ctx context.Context, term *models.Term) error {
	if m.terms == nil {
		m.terms = make(map[string]models.Term)
	}
	if term.ID == "" {
		term.ID = "term-created"
	}
	term.Status = models.TermStatusDraft
	m.terms[term.ID] = *term
	return nil
}

func (m *mockTermRepo) Open(ctx context.Context, schoolID, id string) (*models.Term, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	t, ok := m.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	t.Status = models.TermStatusOpen
	t.IsCurrent = true
	m.terms[id] = t
	m.current = id
	return &t, nil
}

func (m *mockTermRepo) Close(ctx context.Context, schoolID, id string) (*models.Term, error) {
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	t, ok := m.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	t.Status = models.TermStatusClosed
	t.IsCurrent = false
	m.terms[id] = t
	return &t, nil
}

func (m *mockTermRepo) Delete(ctx context.Context, schoolID, id string) error {
	t, ok := m.terms[id]
	if !ok || t.Status != models.TermStatusDraft {
		return sql.ErrNoRows
	}
	delete(m.terms, id)
	return nil
}

type mockCarryLedger struct {
	parked  int
	applied int
	parkedFor,
	appliedFor string
}

func (m *mockCarryLedger) ParkCredits(ctx context.Context, schoolID, fromTermID string) (int, error) {
	m.parkedFor = fromTermID
	return m.parked, nil
}

func (m *mockCarryLedger) ApplyCarryForwards(ctx context.Context, schoolID, termID string) (int, error) {
	m.appliedFor = termID
	return m.applied, nil
}

type mockInvoiceGen struct {
	generated    int
	generatedFor string
}

func (m *mockInvoiceGen) GenerateInvoices(ctx context.Context, schoolID, termID string) (int, error) {
	m.generatedFor = termID
	return m.generated, nil
}

func TestTermOpenGeneratesInvoicesThenCarriesForward(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", SchoolID: "sch1", Year: 2026, Term: 1, Status: models.TermStatusDraft},
	}}
	ledger := &mockCarryLedger{parked: 0, applied: 3}
	fees := &mockInvoiceGen{generated: 42}
	svc := NewTermService(repo, ledger, fees, nil, nil)

	term, err := svc.Open(context.Background(), "sch1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TermStatusOpen, term.Status)
	assert.Equal(t, "t1", fees.generatedFor)
	assert.Equal(t, "t1", ledger.appliedFor)
}

func TestTermOpenMapsTransitionErrors(t *testing.T) {
	repo := &mockTermRepo{openErr: repository.ErrTermAlreadyOpen}
	svc := NewTermService(repo, &mockCarryLedger{}, &mockInvoiceGen{}, nil, nil)

	_, err := svc.Open(context.Background(), "sch1", "t2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermTransition.Code, appErrors.FromError(err).Code)

	repo.openErr = repository.ErrTransitionNotAllowed
	_, err = svc.Open(context.Background(), "sch1", "t2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermTransition.Code, appErrors.FromError(err).Code)
}

func TestTermCloseParksCredits(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", SchoolID: "sch1", Year: 2026, Term: 1, Status: models.TermStatusOpen},
	}, current: "t1"}
	ledger := &mockCarryLedger{parked: 5}
	svc := NewTermService(repo, ledger, &mockInvoiceGen{}, nil, nil)

	term, err := svc.Close(context.Background(), "sch1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TermStatusClosed, term.Status)
	assert.Equal(t, "t1", ledger.parkedFor)
}

func TestTermCreateRejectsDuplicateYearTerm(t *testing.T) {
	repo := &mockTermRepo{
		terms:      map[string]models.Term{"t1": {ID: "t1", SchoolID: "sch1", Year: 2026, Term: 1}},
		byYearTerm: map[[2]int]string{{2026, 1}: "t1"},
	}
	svc := NewTermService(repo, &mockCarryLedger{}, &mockInvoiceGen{}, nil, nil)

	_, err := svc.Create(context.Background(), "sch1", models.CreateTermRequest{Year: 2026, Term: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	term, err := svc.Create(context.Background(), "sch1", models.CreateTermRequest{Year: 2026, Term: 2})
	require.NoError(t, err)
	assert.Equal(t, models.TermStatusDraft, term.Status)
}

func TestTermCurrentRequiresOpenTerm(t *testing.T) {
	svc := NewTermService(&mockTermRepo{}, &mockCarryLedger{}, &mockInvoiceGen{}, nil, nil)

	_, err := svc.Current(context.Background(), "sch1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermNotOpen.Code, appErrors.FromError(err).Code)
}
