package mpesa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDarajaStub(t *testing.T, pushStatus int, pushBody map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "stub-token", "expires_in": "3599"})
		case "/mpesa/stkpush/v1/processrequest":
			assert.Equal(t, "Bearer stub-token", r.Header.Get("Authorization"))
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "CustomerPayBillOnline", payload["TransactionType"])
			assert.NotEmpty(t, payload["Password"])
			w.WriteHeader(pushStatus)
			_ = json.NewEncoder(w).Encode(pushBody)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestSTKPushAccepted(t *testing.T) {
	server := newDarajaStub(t, http.StatusOK, map[string]interface{}{
		"MerchantRequestID":   "mr-1",
		"CheckoutRequestID":   "co-1",
		"ResponseCode":        "0",
		"ResponseDescription": "Success. Request accepted for processing",
	})
	defer server.Close()

	client := NewClient(server.URL, Credentials{ConsumerKey: "k", ConsumerSecret: "s", Shortcode: "174379", Passkey: "pk"}, 5*time.Second)

	resp, err := client.STKPush(context.Background(), STKPushRequest{
		Phone:            "254708374149",
		Amount:           2500,
		AccountReference: "ADM-001",
		Description:      "Term fees",
		CallbackURL:      "https://example.com/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "co-1", resp.CheckoutRequestID)
	assert.Equal(t, "mr-1", resp.MerchantRequestID)
}

func TestSTKPushRejected(t *testing.T) {
	server := newDarajaStub(t, http.StatusBadRequest, map[string]interface{}{
		"errorCode":    "400.002.02",
		"errorMessage": "Bad Request - Invalid Amount",
	})
	defer server.Close()

	client := NewClient(server.URL, Credentials{ConsumerKey: "k", ConsumerSecret: "s", Shortcode: "174379", Passkey: "pk"}, 5*time.Second)

	_, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254708374149", Amount: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Amount")
}

func TestTokenCached(t *testing.T) {
	tokenCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			tokenCalls++
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "stub-token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"CheckoutRequestID": "co", "MerchantRequestID": "mr", "ResponseCode": "0",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{ConsumerKey: "k", ConsumerSecret: "s", Shortcode: "174379", Passkey: "pk"}, 5*time.Second)

	for i := 0; i < 3; i++ {
		_, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254700000000", Amount: 100})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}
