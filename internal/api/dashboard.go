package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openhms/vitalcore/internal/dashboard"
)

// DashboardHandlers handles dashboard HTTP endpoints.
type DashboardHandlers struct {
	manager *dashboard.Manager
}

// NewDashboardHandlers creates new dashboard handlers.
func NewDashboardHandlers(manager *dashboard.Manager) *DashboardHandlers {
	return &DashboardHandlers{manager: manager}
}

// HandleDashboard routes dashboard requests to the appropriate handler.
func (h *DashboardHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		http.Error(w, "Dashboard unavailable", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/dashboard")
	path = strings.TrimSuffix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.GetDashboard(w, r)
	case path == "/config" && r.Method == http.MethodGet:
		h.GetConfig(w, r)
	case path == "/export" && r.Method == http.MethodGet:
		h.Export(w, r)
	case path == "/widgets" && r.Method == http.MethodGet:
		h.GetWidgets(w, r)
	case path == "/widgets" && r.Method == http.MethodPost:
		h.AddWidget(w, r)
	case strings.HasPrefix(path, "/widgets/") && r.Method == http.MethodPut:
		h.UpdateWidget(w, r)
	case strings.HasPrefix(path, "/widgets/") && r.Method == http.MethodDelete:
		h.RemoveWidget(w, r)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// GetDashboard returns the latest aggregate snapshot.
func (h *DashboardHandlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	data, ok := h.manager.GetDashboardData()
	if !ok {
		http.Error(w, "No dashboard data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetConfig returns widgets plus layout and display settings.
func (h *DashboardHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.GetDashboardConfig())
}

// Export streams the snapshot as a JSON or CSV download.
func (h *DashboardHandlers) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	out, err := h.manager.Export(format)
	if err != nil {
		if errors.Is(err, dashboard.ErrNoSnapshot) {
			http.Error(w, "No dashboard data yet", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="dashboard.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(out)
}

// GetWidgets returns the widget registry.
func (h *DashboardHandlers) GetWidgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.GetWidgets())
}

// AddWidget registers a new widget.
func (h *DashboardHandlers) AddWidget(w http.ResponseWriter, r *http.Request) {
	var widget dashboard.Widget
	if err := json.NewDecoder(r.Body).Decode(&widget); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.manager.AddWidget(widget); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "id": widget.ID})
}

// UpdateWidget replaces an existing widget.
func (h *DashboardHandlers) UpdateWidget(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/api/dashboard/widgets/")

	var widget dashboard.Widget
	if err := json.NewDecoder(r.Body).Decode(&widget); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	widget.ID = id

	if err := h.manager.UpdateWidget(widget); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "id": id})
}

// RemoveWidget deletes a widget.
func (h *DashboardHandlers) RemoveWidget(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/api/dashboard/widgets/")
	if !h.manager.RemoveWidget(id) {
		http.Error(w, "Widget not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
