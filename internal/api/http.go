package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socforge/sentinel/internal/mitre"
	"github.com/socforge/sentinel/internal/model"
	"github.com/socforge/sentinel/internal/store"
)

// HTTPAPI exposes analyzed alerts over HTTP.
type HTTPAPI struct {
	store *store.MemoryStore
	ready func() bool
}

// NewHTTPAPI creates a new HTTP API instance. ready reports whether the
// service has finished at least one analysis run; when nil the service is
// considered ready as soon as it is listening.
func NewHTTPAPI(store *store.MemoryStore, ready func() bool) *HTTPAPI {
	return &HTTPAPI{store: store, ready: ready}
}

// SetupRoutes configures HTTP routes
func (api *HTTPAPI) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/alerts", api.handleAlerts)
	mux.HandleFunc("/alerts/reset", api.handleResetAlerts)
	mux.HandleFunc("/mitre/summary", api.handleMITRESummary)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", api.handleHealth)
	mux.HandleFunc("/readyz", api.handleReady)
}

// handleAlerts handles GET /alerts with optional query parameters
func (api *HTTPAPI) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var alerts []*model.Alert

	entity := r.URL.Query().Get("entity")
	level := r.URL.Query().Get("level")
	limitStr := r.URL.Query().Get("limit")

	switch {
	case entity != "":
		alerts = api.store.AlertsByEntity(entity)
	case level != "":
		min, ok := parseThreatLevel(level)
		if !ok {
			http.Error(w, "Invalid level, expected MEDIUM, HIGH or CRITICAL", http.StatusBadRequest)
			return
		}
		alerts = api.store.AlertsByLevel(min)
	default:
		alerts = api.store.Alerts()
	}

	if limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			if limit < len(alerts) {
				alerts = alerts[:limit]
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":    alerts,
		"count":     len(alerts),
		"timestamp": time.Now().UTC(),
	})
}

// handleResetAlerts handles POST /alerts/reset
func (api *HTTPAPI) handleResetAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.store.Clear()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Alerts cleared successfully",
		"timestamp": time.Now().UTC(),
	})
}

// handleMITRESummary handles GET /mitre/summary
func (api *HTTPAPI) handleMITRESummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary := mitre.Summarize(api.store.Alerts())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":   summary,
		"timestamp": time.Now().UTC(),
	})
}

// handleHealth handles GET /healthz
func (api *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"stats":     api.store.Stats(),
	})
}

// handleReady handles GET /readyz
func (api *HTTPAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := api.ready == nil || api.ready()
	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func parseThreatLevel(s string) (model.ThreatLevel, bool) {
	switch model.ThreatLevel(strings.ToUpper(s)) {
	case model.LevelMedium:
		return model.LevelMedium, true
	case model.LevelHigh:
		return model.LevelHigh, true
	case model.LevelCritical:
		return model.LevelCritical, true
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
