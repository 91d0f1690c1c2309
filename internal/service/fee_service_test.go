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

type mockFeeRepo struct {
	components []models.FeeComponent
	defaults   []models.ClassFeeDefault
	overrides  []models.StudentFeeOverride
	invoices   map[string]models.Invoice
}

func (m *mockFeeRepo) ListComponents(ctx context.Context, schoolID string) ([]models.FeeComponent, error) {
	return m.components, nil
}

func (m *mockFeeRepo) FindComponent(ctx context.Context, schoolID, id string) (*models.FeeComponent, error) {
	for _, c := range m.components {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) CreateComponent(ctx context.Context, component *models.FeeComponent) error {
	if component.ID == "" {
		component.ID = "comp-" + component.Name
	}
	m.components = append(m.components, *component)
	return nil
}

func (m *mockFeeRepo) UpdateComponent(ctx context.Context, component *models.FeeComponent) error {
	for i := range m.components {
		if m.components[i].ID == component.ID {
			m.components[i] = *component
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockFeeRepo) DeleteComponent(ctx context.Context, schoolID, id string) error {
	return nil
}

func (m *mockFeeRepo) ListClassDefaults(ctx context.Context, schoolID, termID string) ([]models.ClassFeeDefault, error) {
	return m.defaults, nil
}

func (m *mockFeeRepo) UpsertClassDefault(ctx context.Context, d *models.ClassFeeDefault) error {
	m.defaults = append(m.defaults, *d)
	return nil
}

func (m *mockFeeRepo) DeleteClassDefault(ctx context.Context, schoolID, termID, className, componentID string) error {
	return nil
}

func (m *mockFeeRepo) ListStudentOverrides(ctx context.Context, schoolID, termID, studentID string) ([]models.StudentFeeOverride, error) {
	var out []models.StudentFeeOverride
	for _, o := range m.overrides {
		if o.StudentID == studentID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockFeeRepo) UpsertStudentOverride(ctx context.Context, o *models.StudentFeeOverride) error {
	m.overrides = append(m.overrides, *o)
	return nil
}

func (m *mockFeeRepo) DeleteStudentOverride(ctx context.Context, schoolID, termID, studentID, componentID string) error {
	return nil
}

func (m *mockFeeRepo) FindInvoice(ctx context.Context, schoolID, studentID, termID string) (*models.Invoice, error) {
	if inv, ok := m.invoices[studentID]; ok {
		return &inv, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) ListInvoicesByTerm(ctx context.Context, schoolID, termID string) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	return out, nil
}

func (m *mockFeeRepo) InvoicedTotal(ctx context.Context, schoolID, termID string) (float64, error) {
	var total float64
	for _, inv := range m.invoices {
		total += inv.Total
	}
	return total, nil
}

// mockInvoiceLedger mirrors the posting engine's save-and-charge: it persists
// the invoice into the fee repo's map and records the total delta it would
// have charged.
type mockInvoiceLedger struct {
	repo    *mockFeeRepo
	saved   []*models.Invoice
	charges []float64
}

func (m *mockInvoiceLedger) SaveInvoiceCharge(ctx context.Context, invoice *models.Invoice) (*models.LedgerEntry, error) {
	var previousTotal float64
	if existing, ok := m.repo.invoices[invoice.StudentID]; ok {
		previousTotal = existing.Total
		invoice.ID = existing.ID
	}
	if invoice.ID == "" {
		invoice.ID = "inv-" + invoice.StudentID
	}
	if m.repo.invoices == nil {
		m.repo.invoices = make(map[string]models.Invoice)
	}
	m.repo.invoices[invoice.StudentID] = *invoice
	m.saved = append(m.saved, invoice)

	delta := invoice.Total - previousTotal
	m.charges = append(m.charges, delta)
	return &models.LedgerEntry{Amount: delta}, nil
}

func feeFixtures() (*mockFeeRepo, *mockStudentRepo, *mockTermRepo) {
	repo := &mockFeeRepo{
		components: []models.FeeComponent{
			{ID: "comp-tuition", SchoolID: "sch1", Name: "Tuition", DefaultAmount: 10000},
			{ID: "comp-transport", SchoolID: "sch1", Name: "Transport", DefaultAmount: 0},
			{ID: "comp-lunch", SchoolID: "sch1", Name: "Lunch", DefaultAmount: 3000},
		},
		defaults: []models.ClassFeeDefault{
			{SchoolID: "sch1", TermID: "t1", ClassName: "Form 1A", ComponentID: "comp-tuition", Amount: 12000},
			{SchoolID: "sch1", TermID: "t1", ClassName: "Form 1A", ComponentID: "comp-transport", Amount: 2000},
		},
		overrides: []models.StudentFeeOverride{
			{SchoolID: "sch1", TermID: "t1", StudentID: "st1", ComponentID: "comp-tuition", Amount: 6000},
		},
	}
	students := &mockStudentRepo{students: map[string]models.Student{
		"st1": {ID: "st1", SchoolID: "sch1", AdmissionNo: "ADM-001", FullName: "Wanjiru Maina", ClassName: "Form 1A", Active: true},
	}}
	terms := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", SchoolID: "sch1", Year: 2026, Term: 1, Status: models.TermStatusOpen},
	}, current: "t1"}
	return repo, students, terms
}

func TestGenerateInvoicesResolutionOrder(t *testing.T) {
	repo, students, terms := feeFixtures()
	ledger := &mockInvoiceLedger{repo: repo}
	svc := NewFeeService(repo, students, terms, ledger, nil, nil, nil)

	count, err := svc.GenerateInvoices(context.Background(), "sch1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, ledger.saved, 1)
	invoice := ledger.saved[0]

	// Override beats class default beats component default; the zero-amount
	// component stays off the invoice.
	amounts := map[string]float64{}
	for _, item := range invoice.Items {
		amounts[item.ComponentID] = item.Amount
	}
	assert.Equal(t, 6000.0, amounts["comp-tuition"])
	assert.Equal(t, 2000.0, amounts["comp-transport"])
	assert.Equal(t, 3000.0, amounts["comp-lunch"])
	assert.Equal(t, 11000.0, invoice.Total)

	require.Len(t, ledger.charges, 1)
	assert.Equal(t, 11000.0, ledger.charges[0])
}

func TestGenerateInvoicesSkipsInactiveStudents(t *testing.T) {
	repo, students, terms := feeFixtures()
	students.students["st2"] = models.Student{
		ID: "st2", SchoolID: "sch1", AdmissionNo: "ADM-002", FullName: "Mutiso Musyoka", ClassName: "Form 1A", Active: false,
	}
	svc := NewFeeService(repo, students, terms, &mockInvoiceLedger{repo: repo}, nil, nil, nil)

	count, err := svc.GenerateInvoices(context.Background(), "sch1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegenerateInvoiceChargesOnlyDelta(t *testing.T) {
	repo, students, terms := feeFixtures()
	ledger := &mockInvoiceLedger{repo: repo}
	svc := NewFeeService(repo, students, terms, ledger, nil, nil, nil)

	_, err := svc.GenerateInvoices(context.Background(), "sch1", "t1")
	require.NoError(t, err)
	require.Equal(t, []float64{11000.0}, ledger.charges)

	// Raising the override by 1000 should only charge the difference.
	repo.overrides[0].Amount = 7000
	invoice, err := svc.RegenerateInvoice(context.Background(), "sch1", "t1", "st1")
	require.NoError(t, err)
	assert.Equal(t, 12000.0, invoice.Total)
	require.Len(t, ledger.charges, 2)
	assert.Equal(t, 1000.0, ledger.charges[1])
}

func TestFeeEditsRejectedOnClosedTerm(t *testing.T) {
	repo, students, terms := feeFixtures()
	terms.terms["t0"] = models.Term{ID: "t0", SchoolID: "sch1", Year: 2025, Term: 3, Status: models.TermStatusClosed}
	ledger := &mockInvoiceLedger{repo: repo}
	svc := NewFeeService(repo, students, terms, ledger, nil, nil, nil)

	amountReq := models.SetFeeAmountRequest{
		ComponentID: "11111111-1111-1111-1111-111111111111",
		Amount:      5000,
	}

	err := svc.SetClassDefault(context.Background(), "sch1", "t0", "Form 1A", amountReq)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermNotOpen.Code, appErrors.FromError(err).Code)

	err = svc.SetStudentOverride(context.Background(), "sch1", "t0", "st1", amountReq)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermNotOpen.Code, appErrors.FromError(err).Code)

	count, err := svc.GenerateInvoices(context.Background(), "sch1", "t0")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermNotOpen.Code, appErrors.FromError(err).Code)
	assert.Zero(t, count)
	assert.Empty(t, ledger.charges)

	_, err = svc.RegenerateInvoice(context.Background(), "sch1", "t0", "st1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermNotOpen.Code, appErrors.FromError(err).Code)
}

func TestFeeEditsAllowedOnDraftTerm(t *testing.T) {
	repo, students, terms := feeFixtures()
	terms.terms["t2"] = models.Term{ID: "t2", SchoolID: "sch1", Year: 2026, Term: 2, Status: models.TermStatusDraft}
	svc := NewFeeService(repo, students, terms, &mockInvoiceLedger{repo: repo}, nil, nil, nil)

	// Fees are configured on DRAFT terms before they open.
	err := svc.SetClassDefault(context.Background(), "sch1", "t2", "Form 1A", models.SetFeeAmountRequest{
		ComponentID: "11111111-1111-1111-1111-111111111111",
		Amount:      5000,
	})
	require.NoError(t, err)
}

func TestSetDiscountReducesTotalAndSurvivesRegeneration(t *testing.T) {
	repo, students, terms := feeFixtures()
	ledger := &mockInvoiceLedger{repo: repo}
	svc := NewFeeService(repo, students, terms, ledger, nil, nil, nil)

	_, err := svc.GenerateInvoices(context.Background(), "sch1", "t1")
	require.NoError(t, err)

	invoice, err := svc.SetDiscount(context.Background(), "sch1", "t1", "st1", models.SetDiscountRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, invoice.Discount)
	assert.Equal(t, 10000.0, invoice.Total)
	// Only the discount delta hits the ledger.
	require.Len(t, ledger.charges, 2)
	assert.Equal(t, -1000.0, ledger.charges[1])

	// Regeneration rebuilds the lines but keeps the discount.
	regenerated, err := svc.RegenerateInvoice(context.Background(), "sch1", "t1", "st1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, regenerated.Discount)
	assert.Equal(t, 10000.0, regenerated.Total)
}

func TestSetDiscountRejectsMoreThanSubtotal(t *testing.T) {
	repo, students, terms := feeFixtures()
	svc := NewFeeService(repo, students, terms, &mockInvoiceLedger{repo: repo}, nil, nil, nil)

	_, err := svc.GenerateInvoices(context.Background(), "sch1", "t1")
	require.NoError(t, err)

	_, err = svc.SetDiscount(context.Background(), "sch1", "t1", "st1", models.SetDiscountRequest{Amount: 50000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
