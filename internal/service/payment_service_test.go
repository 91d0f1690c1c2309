package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type mockPaymentLedger struct {
	outcome    *repository.PaymentOutcome
	postErr    error
	reverseErr error
	posted     []*models.Payment
	reversed   []string
}

func (m *mockPaymentLedger) PostPayment(ctx context.Context, payment *models.Payment) (*repository.PaymentOutcome, error) {
	if m.postErr != nil {
		return nil, m.postErr
	}
	m.posted = append(m.posted, payment)
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &repository.PaymentOutcome{Payment: payment, AppliedToBalance: payment.Amount}, nil
}

func (m *mockPaymentLedger) ReversePayment(ctx context.Context, schoolID, paymentID string) (*models.Payment, error) {
	if m.reverseErr != nil {
		return nil, m.reverseErr
	}
	m.reversed = append(m.reversed, paymentID)
	return &models.Payment{ID: paymentID, SchoolID: schoolID, Reversed: true}, nil
}

func (m *mockPaymentLedger) ListEntries(ctx context.Context, schoolID, studentID string, limit, offset int) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (m *mockPaymentLedger) Recompute(ctx context.Context, schoolID, studentID string) (*models.Student, error) {
	return nil, nil
}

type mockReceiptNotifier struct {
	queued []models.Student
}

func (m *mockReceiptNotifier) QueueReceiptEmail(student models.Student, outcome *repository.PaymentOutcome) {
	m.queued = append(m.queued, student)
}

type mockDashboardInvalidator struct {
	busted []string
}

func (m *mockDashboardInvalidator) InvalidateDashboard(ctx context.Context, schoolID string) {
	m.busted = append(m.busted, schoolID)
}

// Payment payloads validate student IDs as UUIDs before anything else runs.
const paymentStudentID = "7b1c6de0-54f4-4f43-9f7b-2a1f4f0c9a11"

func paymentFixtures() (*mockTermRepo, *mockStudentRepo) {
	terms := &mockTermRepo{
		terms: map[string]models.Term{
			"t1": {ID: "t1", SchoolID: "sch1", Year: 2026, Term: 2, Status: models.TermStatusOpen},
		},
		current: "t1",
	}
	students := &mockStudentRepo{students: map[string]models.Student{
		paymentStudentID: {
			ID: paymentStudentID, SchoolID: "sch1", AdmissionNo: "ADM-100",
			FullName: "Nafula Wekesa", ClassName: "Form 2A",
			GuardianEmail: "guardian@example.com", Balance: 5000, Active: true,
		},
	}}
	return terms, students
}

func TestRecordPaymentPostsAgainstOpenTerm(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{}
	notifier := &mockReceiptNotifier{}
	svc := NewPaymentService(ledger, nil, terms, students, notifier, nil, nil, nil, nil)

	outcome, err := svc.Record(context.Background(), "sch1", "user-1", models.RecordPaymentRequest{
		StudentID: paymentStudentID,
		Amount:    1500,
		Method:    "CASH",
		Narrative: "Term 2 fees",
	})
	require.NoError(t, err)
	assert.Equal(t, 1500.0, outcome.AppliedToBalance)

	require.Len(t, ledger.posted, 1)
	posted := ledger.posted[0]
	assert.Equal(t, "t1", posted.TermID)
	assert.Equal(t, models.MethodCash, posted.Method)
	require.NotNil(t, posted.RecordedBy)
	assert.Equal(t, "user-1", *posted.RecordedBy)
	assert.Nil(t, posted.Reference)

	require.Len(t, notifier.queued, 1)
	assert.Equal(t, paymentStudentID, notifier.queued[0].ID)
}

func TestRecordPaymentRequiresOpenTerm(t *testing.T) {
	_, students := paymentFixtures()
	svc := NewPaymentService(&mockPaymentLedger{}, nil, &mockTermRepo{}, students, nil, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), "sch1", "", models.RecordPaymentRequest{
		StudentID: paymentStudentID,
		Amount:    1000,
		Method:    "BANK",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermNotOpen.Code, appErrors.FromError(err).Code)
}

func TestRecordPaymentDuplicateReference(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{postErr: repository.ErrDuplicateReference}
	svc := NewPaymentService(ledger, nil, terms, students, nil, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), "sch1", "", models.RecordPaymentRequest{
		StudentID: paymentStudentID,
		Amount:    1000,
		Method:    "BANK",
		Reference: "SLIP-889",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateReference.Code, appErrors.FromError(err).Code)
}

func TestRecordPaymentRejectsMpesaMethod(t *testing.T) {
	terms, students := paymentFixtures()
	svc := NewPaymentService(&mockPaymentLedger{}, nil, terms, students, nil, nil, nil, nil, nil)

	// MPESA payments only arrive through the gateway callback.
	_, err := svc.Record(context.Background(), "sch1", "", models.RecordPaymentRequest{
		StudentID: paymentStudentID,
		Amount:    1000,
		Method:    "MPESA",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReversePaymentAlreadyReversedConflict(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{reverseErr: repository.ErrAlreadyReversed}
	svc := NewPaymentService(ledger, nil, terms, students, nil, nil, nil, nil, nil)

	_, err := svc.Reverse(context.Background(), "sch1", "pay-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentWritesBustDashboardCache(t *testing.T) {
	terms, students := paymentFixtures()
	dashboards := &mockDashboardInvalidator{}
	svc := NewPaymentService(&mockPaymentLedger{}, nil, terms, students, nil, dashboards, nil, nil, nil)

	_, err := svc.Record(context.Background(), "sch1", "", models.RecordPaymentRequest{
		StudentID: paymentStudentID,
		Amount:    1000,
		Method:    "CASH",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"sch1"}, dashboards.busted)

	_, err = svc.Reverse(context.Background(), "sch1", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sch1", "sch1"}, dashboards.busted)
}
