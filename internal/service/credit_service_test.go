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

type mockCreditLedger struct {
	applyErr    error
	refundErr   error
	transferErr error
	applied     []*models.CreditOperation
	refunded    []*models.CreditOperation
	transfers   []*models.CreditTransfer
}

func (m *mockCreditLedger) ApplyCredit(ctx context.Context, op *models.CreditOperation) (*repository.PaymentOutcome, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	m.applied = append(m.applied, op)
	return &repository.PaymentOutcome{AppliedToBalance: op.Amount}, nil
}

func (m *mockCreditLedger) RefundCredit(ctx context.Context, op *models.CreditOperation) (*repository.PaymentOutcome, error) {
	if m.refundErr != nil {
		return nil, m.refundErr
	}
	m.refunded = append(m.refunded, op)
	return &repository.PaymentOutcome{}, nil
}

func (m *mockCreditLedger) TransferCredit(ctx context.Context, transfer *models.CreditTransfer) (*models.CreditTransfer, error) {
	if m.transferErr != nil {
		return nil, m.transferErr
	}
	m.transfers = append(m.transfers, transfer)
	done := *transfer
	done.AppliedToBalance = transfer.Amount
	return &done, nil
}

func TestCreditApplyRecordsOperator(t *testing.T) {
	ledger := &mockCreditLedger{}
	svc := NewCreditService(ledger, nil, nil, nil, nil, nil)

	outcome, err := svc.Apply(context.Background(), "sch1", "bursar-1", models.CreditActionRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Amount:    300,
		Note:      "apply to term balance",
	})
	require.NoError(t, err)
	assert.Equal(t, 300.0, outcome.AppliedToBalance)

	require.Len(t, ledger.applied, 1)
	op := ledger.applied[0]
	assert.Equal(t, "sch1", op.SchoolID)
	require.NotNil(t, op.PerformedBy)
	assert.Equal(t, "bursar-1", *op.PerformedBy)
}

func TestCreditApplyInsufficient(t *testing.T) {
	ledger := &mockCreditLedger{applyErr: repository.ErrInsufficientCredit}
	svc := NewCreditService(ledger, nil, nil, nil, nil, nil)

	_, err := svc.Apply(context.Background(), "sch1", "", models.CreditActionRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Amount:    9000,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientCredit.Code, appErrors.FromError(err).Code)
}

func TestCreditTransferRejectsSameStudent(t *testing.T) {
	svc := NewCreditService(&mockCreditLedger{}, nil, nil, nil, nil, nil)

	_, err := svc.Transfer(context.Background(), "sch1", "", models.CreditTransferRequest{
		FromStudentID: "11111111-1111-1111-1111-111111111111",
		ToStudentID:   "11111111-1111-1111-1111-111111111111",
		Amount:        100,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreditTransferPassesThroughLedger(t *testing.T) {
	ledger := &mockCreditLedger{}
	svc := NewCreditService(ledger, nil, nil, nil, nil, nil)

	done, err := svc.Transfer(context.Background(), "sch1", "admin-1", models.CreditTransferRequest{
		FromStudentID: "11111111-1111-1111-1111-111111111111",
		ToStudentID:   "22222222-2222-2222-2222-222222222222",
		Amount:        250,
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, done.AppliedToBalance)
	require.Len(t, ledger.transfers, 1)
	require.NotNil(t, ledger.transfers[0].PerformedBy)
	assert.Equal(t, "admin-1", *ledger.transfers[0].PerformedBy)
}
