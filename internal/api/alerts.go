package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openhms/vitalcore/internal/alerts"
)

// AlertHandlers handles alert-related HTTP endpoints.
type AlertHandlers struct {
	engine *alerts.Engine
}

// NewAlertHandlers creates new alert handlers.
func NewAlertHandlers(engine *alerts.Engine) *AlertHandlers {
	return &AlertHandlers{engine: engine}
}

// HandleAlerts routes alert requests to the appropriate handler.
func (h *AlertHandlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		http.Error(w, "Alert engine unavailable", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/alerts")
	path = strings.TrimSuffix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.ListAlerts(w, r)
	case path == "/stats" && r.Method == http.MethodGet:
		h.GetAlertStats(w, r)
	case path == "/rules" && r.Method == http.MethodGet:
		h.GetRules(w, r)
	case strings.HasSuffix(path, "/resolve") && r.Method == http.MethodPost:
		h.ResolveAlert(w, r)
	case path != "" && r.Method == http.MethodGet:
		h.GetAlert(w, r)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// ListAlerts returns alerts matching the query filters.
func (h *AlertHandlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := alerts.Filter{}
	query := r.URL.Query()

	if v := query.Get("type"); v != "" {
		filter.Type = alerts.Type(v)
	}
	if v := query.Get("severity"); v != "" {
		filter.Severity = alerts.Severity(v)
	}
	if v := query.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid resolved value", http.StatusBadRequest)
			return
		}
		filter.Resolved = &resolved
	}
	if v := query.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid since timestamp", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	writeJSON(w, http.StatusOK, h.engine.GetAlerts(filter))
}

// GetAlert returns a single alert by id.
func (h *AlertHandlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/alerts"), "/")
	alert, ok := h.engine.GetAlert(id)
	if !ok {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlert marks an alert resolved.
func (h *AlertHandlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	id := strings.TrimSuffix(path, "/resolve")
	id = strings.Trim(id, "/")
	if id == "" {
		http.Error(w, "Alert id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		ResolvedBy string `json:"resolvedBy"`
	}
	if r.Body != nil {
		// Body is optional; a decode failure on an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.ResolvedBy == "" {
		body.ResolvedBy = "api"
	}

	if !h.engine.ResolveAlert(id, body.ResolvedBy) {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "id": id})
}

// GetAlertStats returns aggregate alert counts.
func (h *AlertHandlers) GetAlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetAlertStats())
}

// GetRules returns the configured alert rules.
func (h *AlertHandlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetRules())
}
