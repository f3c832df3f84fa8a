// Package api exposes the HTTP surface: health endpoints, alert and
// dashboard APIs, vital sign ingestion, and the websocket upgrade.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openhms/vitalcore/internal/alerts"
	"github.com/openhms/vitalcore/internal/dashboard"
	"github.com/openhms/vitalcore/internal/metrics"
	"github.com/openhms/vitalcore/internal/patients"
	"github.com/openhms/vitalcore/internal/sysmon"
	"github.com/openhms/vitalcore/internal/websocket"
)

// Deps carries the components the router serves. Nil members degrade the
// matching endpoints instead of panicking.
type Deps struct {
	Engine    *alerts.Engine
	Dashboard *dashboard.Manager
	Patients  *patients.Monitor
	System    *sysmon.Monitor
	Collector *metrics.Collector
	Hub       *websocket.Hub
	Version   string
}

// Router handles HTTP routing.
type Router struct {
	mux       *http.ServeMux
	deps      Deps
	startTime time.Time
}

// NewRouter creates a router with all routes mounted.
func NewRouter(deps Deps) http.Handler {
	r := &Router{
		mux:       http.NewServeMux(),
		deps:      deps,
		startTime: time.Now(),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	alertHandlers := NewAlertHandlers(r.deps.Engine)
	dashboardHandlers := NewDashboardHandlers(r.deps.Dashboard)
	patientHandlers := NewPatientHandlers(r.deps.Patients)

	r.mux.HandleFunc("/health/live", r.handleLive)
	r.mux.HandleFunc("/health/ready", r.handleReady)
	r.mux.HandleFunc("/health/detailed", r.handleDetailed)
	r.mux.HandleFunc("/health/metrics", r.handleMetrics)

	r.mux.HandleFunc("/api/alerts", alertHandlers.HandleAlerts)
	r.mux.HandleFunc("/api/alerts/", alertHandlers.HandleAlerts)

	r.mux.HandleFunc("/api/dashboard", dashboardHandlers.HandleDashboard)
	r.mux.HandleFunc("/api/dashboard/", dashboardHandlers.HandleDashboard)

	r.mux.HandleFunc("/api/patients", patientHandlers.HandlePatients)
	r.mux.HandleFunc("/api/patients/", patientHandlers.HandlePatients)

	r.mux.HandleFunc("/ws", r.handleWebSocket)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasPrefix(req.URL.Path, "/api/") || strings.HasPrefix(req.URL.Path, "/ws") {
		addSecurityHeaders(w)
	}

	start := time.Now()
	r.mux.ServeHTTP(w, req)
	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("Request handled")
}

func addSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	if r.deps.Hub == nil {
		http.Error(w, "WebSocket disabled", http.StatusServiceUnavailable)
		return
	}
	r.deps.Hub.HandleWebSocket(w, req)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
