package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilolend/lvm/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus struct {
	status state.Status
}

func (s staticStatus) Snapshot() state.Status { return s.status }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewStatusServerRequiresSource(t *testing.T) {
	_, err := NewStatusServer(Config{})
	assert.Error(t, err)
}

func TestHealthAndStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-10 * time.Minute)
	hf := 1.62
	src := staticStatus{state.Status{Operations: 3, LastOperation: &last, LastHealthFactor: &hf, UptimeSeconds: 3600}}

	s, err := NewStatusServer(Config{
		Status:          src,
		MaxOperationAge: time.Hour,
		Now:             func() time.Time { return now },
	})
	require.NoError(t, err)

	for _, path := range []string{"/health", "/api/health"} {
		rec := get(t, s.Handler(), path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "OK", body["status"])
		assert.Equal(t, 600.0, body["last_operation_age_seconds"])
	}

	rec := get(t, s.Handler(), "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	var status state.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(3), status.Operations)
	require.NotNil(t, status.LastHealthFactor)
	assert.Equal(t, 1.62, *status.LastHealthFactor)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}

func TestHealthDegradedWhenStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-5 * time.Hour)

	s, err := NewStatusServer(Config{
		Status:          staticStatus{state.Status{LastOperation: &last}},
		MaxOperationAge: time.Hour,
		Now:             func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/health").Code)

	fresh, err := NewStatusServer(Config{
		Status:          staticStatus{state.Status{UptimeSeconds: 7200}},
		MaxOperationAge: time.Hour,
		Now:             func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, fresh.Handler(), "/health").Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("lvm_risk_score 80\n"))
	})
	s, err := NewStatusServer(Config{Status: staticStatus{}, Metrics: metrics})
	require.NoError(t, err)

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lvm_risk_score 80")
}
