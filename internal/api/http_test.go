package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socforge/sentinel/internal/mitre"
	"github.com/socforge/sentinel/internal/model"
	"github.com/socforge/sentinel/internal/store"
)

func newTestMux(t *testing.T) (*http.ServeMux, *store.MemoryStore) {
	t.Helper()

	memStore := store.NewMemoryStore(100, 1000)
	ctx := context.Background()

	alerts := []*model.Alert{
		{
			ID: "aaa111", ThreatType: model.ThreatSSHBruteForce,
			ThreatLevel: model.LevelHigh, SourceIP: "203.0.113.9",
			MITRE: mitre.Lookup(model.ThreatSSHBruteForce),
		},
		{
			ID: "bbb222", ThreatType: model.ThreatPortScanning,
			ThreatLevel: model.LevelMedium, SourceIP: "192.0.2.80",
			MITRE: mitre.Lookup(model.ThreatPortScanning),
		},
	}
	for _, a := range alerts {
		require.NoError(t, memStore.Upsert(ctx, a))
	}

	mux := http.NewServeMux()
	NewHTTPAPI(memStore, nil).SetupRoutes(mux)
	return mux, memStore
}

func getJSON(t *testing.T, mux *http.ServeMux, path string) (int, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestHandleAlerts(t *testing.T) {
	mux, _ := newTestMux(t)

	code, body := getJSON(t, mux, "/alerts")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
}

func TestHandleAlerts_EntityFilter(t *testing.T) {
	mux, _ := newTestMux(t)

	code, body := getJSON(t, mux, "/alerts?entity=203.0.113.9")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}

func TestHandleAlerts_LevelFilter(t *testing.T) {
	mux, _ := newTestMux(t)

	code, body := getJSON(t, mux, "/alerts?level=HIGH")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = getJSON(t, mux, "/alerts?level=medium")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"], "level matching is case-insensitive")

	code, _ = getJSON(t, mux, "/alerts?level=BOGUS")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleAlerts_Limit(t *testing.T) {
	mux, _ := newTestMux(t)

	code, body := getJSON(t, mux, "/alerts?limit=1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}

func TestHandleAlerts_MethodNotAllowed(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleResetAlerts(t *testing.T) {
	mux, memStore := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/reset", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, memStore.Alerts())
}

func TestHandleMITRESummary(t *testing.T) {
	mux, _ := newTestMux(t)

	code, body := getJSON(t, mux, "/mitre/summary")
	assert.Equal(t, http.StatusOK, code)

	summary, ok := body["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), summary["total_alerts"])
}

func TestHandleHealth(t *testing.T) {
	mux, _ := newTestMux(t)

	code, body := getJSON(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleReady(t *testing.T) {
	memStore := store.NewMemoryStore(100, 1000)

	ready := false
	mux := http.NewServeMux()
	NewHTTPAPI(memStore, func() bool { return ready }).SetupRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
