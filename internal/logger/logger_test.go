package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf, level)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, "disabled") })
	return &buf
}

func TestAnonymize(t *testing.T) {
	in := "mail alice@example.com token eyJhbGciOiJIUzI1NiJ9.payload user_id=1234"
	out := Anonymize(in)

	assert.NotContains(t, out, "alice@example.com")
	assert.NotContains(t, out, "eyJhbGci")
	assert.Contains(t, out, "[REDACTED_EMAIL]")
	assert.Contains(t, out, "[REDACTED_TOKEN]")
	assert.Contains(t, out, "user_id=[USER_ID]")
}

func TestLogger_ErrorEntry(t *testing.T) {
	buf := captureOutput(t, "debug")

	New().Error("store", "insert failed for bob@example.com", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "store", entry["module"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "insert failed for [REDACTED_EMAIL]", entry["message"])
}

func TestLogger_LevelFilter(t *testing.T) {
	buf := captureOutput(t, "warn")

	l := New()
	l.Info("social", "dropped")
	l.Debug("social", "dropped")
	l.Warn("social", "kept", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestHTTPMiddleware_RequestID(t *testing.T) {
	buf := captureOutput(t, "info")

	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.Equal(t, "http", entry["module"])
	assert.Equal(t, http.MethodGet, entry["method"])
	assert.Equal(t, "/feed", entry["path"])
	assert.Equal(t, "request completed", entry["message"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}
