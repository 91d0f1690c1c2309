package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestMpesaCallbackRejectsWrongToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMpesaHandler(nil, "expected-secret")

	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/mpesa/callback/guessed", []byte(`{}`))
	c.Params = gin.Params{{Key: "token", Value: "guessed"}}

	h.Callback(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMpesaCallbackRejectsWhenTokenUnset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMpesaHandler(nil, "")

	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/mpesa/callback/anything", []byte(`{}`))
	c.Params = gin.Params{{Key: "token", Value: "anything"}}

	h.Callback(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
