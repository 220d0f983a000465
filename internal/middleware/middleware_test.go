package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var seenID string
	var seenLogger *slog.Logger
	h := Logging(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		seenLogger = Logger(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallets", http.NoBody))

	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, w.Header().Get(RequestIDHeader))
	assert.NotSame(t, slog.Default(), seenLogger)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Request completed", entry["msg"])
	assert.Equal(t, seenID, entry["request_id"])
	assert.Equal(t, "/wallets", entry["path"])
	assert.EqualValues(t, http.StatusCreated, entry["status"])
}

func TestLoggerOutsideRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Same(t, slog.Default(), Logger(req.Context()))
	assert.Empty(t, RequestID(req.Context()))
}

func TestRateLimitCountsOnlyListedMethods(t *testing.T) {
	l, err := NewLimiter("2-M")
	require.NoError(t, err)

	h := RateLimit(l, http.MethodPost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method string) int {
		req := httptest.NewRequest(method, "/login", http.NoBody)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	for range 5 {
		assert.Equal(t, http.StatusOK, send(http.MethodGet))
	}
	assert.Equal(t, http.StatusOK, send(http.MethodPost))
	assert.Equal(t, http.StatusOK, send(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost))
}

func TestNewLimiterRejectsBadRate(t *testing.T) {
	_, err := NewLimiter("ten per minute")
	assert.Error(t, err)
}
