package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/adapter/http/dto"
)

func TestRecovererWritesErrorBody(t *testing.T) {
	var logs bytes.Buffer
	h := Recoverer(zerolog.New(&logs))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("projection map is nil")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/wallets/w-1/deposit", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Error)

	assert.Contains(t, logs.String(), `"panic":"projection map is nil"`)
	assert.Contains(t, logs.String(), `"path":"/api/v1/wallets/w-1/deposit"`)
}

func TestRecovererPassesThrough(t *testing.T) {
	h := Recoverer(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	h := Recoverer(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
