package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const cancelledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user."
    }
  }
}`

func TestParseCallbackSuccess(t *testing.T) {
	result, err := ParseCallback([]byte(successCallback))
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, "ws_CO_191220191020363925", result.CheckoutRequestID)
	assert.Equal(t, 1500.00, result.Amount)
	assert.Equal(t, "NLJ7RT61SV", result.Receipt)
	assert.Equal(t, "254708374149", result.Phone)
}

func TestParseCallbackCancelled(t *testing.T) {
	result, err := ParseCallback([]byte(cancelledCallback))
	require.NoError(t, err)

	assert.False(t, result.Success())
	assert.Equal(t, 1032, result.ResultCode)
	assert.Empty(t, result.Receipt)
}

func TestParseCallbackInvalid(t *testing.T) {
	_, err := ParseCallback([]byte(`{"Body":{}}`))
	assert.Error(t, err)

	_, err = ParseCallback([]byte(`not json`))
	assert.Error(t, err)
}
