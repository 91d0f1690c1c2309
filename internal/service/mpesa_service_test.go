package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/mpesa"
)

var errDatabaseDown = errors.New("database down")

type mockMpesaGateway struct {
	pushed []mpesa.STKPushRequest
	err    error
}

func (m *mockMpesaGateway) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.pushed = append(m.pushed, req)
	return &mpesa.STKPushResponse{
		MerchantRequestID:   "mr-1",
		CheckoutRequestID:   "ws_CO_1",
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
	}, nil
}

type mockMpesaRepo struct {
	txns     map[string]models.MpesaTransaction
	resolved map[string]bool
}

func (m *mockMpesaRepo) Create(ctx context.Context, txn *models.MpesaTransaction) error {
	if m.txns == nil {
		m.txns = make(map[string]models.MpesaTransaction)
	}
	if txn.ID == "" {
		txn.ID = "mp-" + txn.CheckoutRequestID
	}
	txn.Status = models.MpesaStatusPending
	m.txns[txn.CheckoutRequestID] = *txn
	return nil
}

func (m *mockMpesaRepo) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
	if txn, ok := m.txns[checkoutRequestID]; ok {
		return &txn, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMpesaRepo) FindByID(ctx context.Context, schoolID, id string) (*models.MpesaTransaction, error) {
	for _, txn := range m.txns {
		if txn.ID == id && txn.SchoolID == schoolID {
			return &txn, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockMpesaRepo) Resolve(ctx context.Context, checkoutRequestID string, status models.MpesaStatus, resultCode int, resultDesc string, receipt *string, rawCallback []byte) (bool, error) {
	txn, ok := m.txns[checkoutRequestID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if m.resolved == nil {
		m.resolved = make(map[string]bool)
	}
	if m.resolved[checkoutRequestID] {
		return false, nil
	}
	m.resolved[checkoutRequestID] = true
	txn.Status = status
	txn.ResultCode = &resultCode
	txn.ResultDesc = resultDesc
	txn.Receipt = receipt
	m.txns[checkoutRequestID] = txn
	return true, nil
}

func (m *mockMpesaRepo) ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.MpesaTransaction, error) {
	var out []models.MpesaTransaction
	for _, txn := range m.txns {
		if txn.SchoolID == schoolID && txn.StudentID == studentID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *mockMpesaRepo) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func successCallback(checkoutID string, amount float64, receipt string) []byte {
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "%s",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": %.2f},
						{"Name": "MpesaReceiptNumber", "Value": "%s"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`, checkoutID, amount, receipt))
}

func failureCallback(checkoutID string) []byte {
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "%s",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`, checkoutID))
}

func TestMpesaInitiateWithoutGateway(t *testing.T) {
	terms, students := paymentFixtures()
	svc := NewMpesaService(nil, &mockMpesaRepo{}, &mockPaymentLedger{}, terms, students, nil, nil, "https://api.example.com/callback", nil, nil)

	_, err := svc.Initiate(context.Background(), "sch1", models.STKPushRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Phone:     "+254712345678",
		Amount:    1000,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErrors.FromError(err).Code)
}

func TestMpesaInitiateTracksPendingTransaction(t *testing.T) {
	terms, students := paymentFixtures()
	students.students["11111111-1111-1111-1111-111111111111"] = models.Student{
		ID: "11111111-1111-1111-1111-111111111111", SchoolID: "sch1",
		AdmissionNo: "ADM-200", FullName: "Chebet Langat", ClassName: "Form 3C", Active: true,
	}
	gateway := &mockMpesaGateway{}
	repo := &mockMpesaRepo{}
	svc := NewMpesaService(gateway, repo, &mockPaymentLedger{}, terms, students, nil, nil, "https://api.example.com/callback", nil, nil)

	txn, err := svc.Initiate(context.Background(), "sch1", models.STKPushRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Phone:     "+254712345678",
		Amount:    2500,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MpesaStatusPending, txn.Status)
	assert.Equal(t, "ws_CO_1", txn.CheckoutRequestID)

	require.Len(t, gateway.pushed, 1)
	assert.Equal(t, "ADM-200", gateway.pushed[0].AccountReference)
	assert.Equal(t, "https://api.example.com/callback", gateway.pushed[0].CallbackURL)
}

func TestMpesaCallbackSuccessPostsPayment(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{}
	repo := &mockMpesaRepo{txns: map[string]models.MpesaTransaction{
		"ws_CO_1": {ID: "mp-1", SchoolID: "sch1", StudentID: paymentStudentID, Amount: 2500, CheckoutRequestID: "ws_CO_1", Status: models.MpesaStatusPending},
	}}
	svc := NewMpesaService(&mockMpesaGateway{}, repo, ledger, terms, students, nil, nil, "", nil, nil)

	err := svc.HandleCallback(context.Background(), successCallback("ws_CO_1", 2500, "SBK12XYZ"))
	require.NoError(t, err)

	require.Len(t, ledger.posted, 1)
	posted := ledger.posted[0]
	assert.Equal(t, models.MethodMpesa, posted.Method)
	assert.Equal(t, 2500.0, posted.Amount)
	assert.Equal(t, "t1", posted.TermID)
	require.NotNil(t, posted.Reference)
	assert.Equal(t, "SBK12XYZ", *posted.Reference)
}

func TestMpesaCallbackDuplicateDeliveryIsIgnored(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{}
	repo := &mockMpesaRepo{txns: map[string]models.MpesaTransaction{
		"ws_CO_1": {ID: "mp-1", SchoolID: "sch1", StudentID: paymentStudentID, Amount: 2500, CheckoutRequestID: "ws_CO_1", Status: models.MpesaStatusPending},
	}}
	svc := NewMpesaService(&mockMpesaGateway{}, repo, ledger, terms, students, nil, nil, "", nil, nil)

	raw := successCallback("ws_CO_1", 2500, "SBK12XYZ")
	require.NoError(t, svc.HandleCallback(context.Background(), raw))
	require.NoError(t, svc.HandleCallback(context.Background(), raw))

	assert.Len(t, ledger.posted, 1)
}

func TestMpesaCallbackFailedPostLeavesRowPendingForRetry(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{postErr: errDatabaseDown}
	repo := &mockMpesaRepo{txns: map[string]models.MpesaTransaction{
		"ws_CO_1": {ID: "mp-1", SchoolID: "sch1", StudentID: paymentStudentID, Amount: 2500, CheckoutRequestID: "ws_CO_1", Status: models.MpesaStatusPending},
	}}
	svc := NewMpesaService(&mockMpesaGateway{}, repo, ledger, terms, students, nil, nil, "", nil, nil)

	raw := successCallback("ws_CO_1", 2500, "SBK12XYZ")
	require.Error(t, svc.HandleCallback(context.Background(), raw))

	// The tracking row must stay PENDING so Daraja's redelivery posts it.
	assert.Equal(t, models.MpesaStatusPending, repo.txns["ws_CO_1"].Status)
	assert.Empty(t, ledger.posted)

	ledger.postErr = nil
	require.NoError(t, svc.HandleCallback(context.Background(), raw))
	assert.Len(t, ledger.posted, 1)
	assert.Equal(t, models.MpesaStatusSuccess, repo.txns["ws_CO_1"].Status)
}

func TestMpesaCallbackFailureDoesNotPost(t *testing.T) {
	terms, students := paymentFixtures()
	ledger := &mockPaymentLedger{}
	repo := &mockMpesaRepo{txns: map[string]models.MpesaTransaction{
		"ws_CO_2": {ID: "mp-2", SchoolID: "sch1", StudentID: paymentStudentID, Amount: 1200, CheckoutRequestID: "ws_CO_2", Status: models.MpesaStatusPending},
	}}
	svc := NewMpesaService(&mockMpesaGateway{}, repo, ledger, terms, students, nil, nil, "", nil, nil)

	require.NoError(t, svc.HandleCallback(context.Background(), failureCallback("ws_CO_2")))
	assert.Empty(t, ledger.posted)
	assert.Equal(t, models.MpesaStatusFailed, repo.txns["ws_CO_2"].Status)
}

func TestMpesaCallbackUnknownCheckout(t *testing.T) {
	terms, students := paymentFixtures()
	svc := NewMpesaService(&mockMpesaGateway{}, &mockMpesaRepo{}, &mockPaymentLedger{}, terms, students, nil, nil, "", nil, nil)

	err := svc.HandleCallback(context.Background(), failureCallback("ws_CO_unknown"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
