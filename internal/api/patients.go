package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/openhms/vitalcore/internal/patients"
)

// PatientHandlers handles patient monitoring HTTP endpoints.
type PatientHandlers struct {
	monitor *patients.Monitor
}

// NewPatientHandlers creates new patient handlers.
func NewPatientHandlers(monitor *patients.Monitor) *PatientHandlers {
	return &PatientHandlers{monitor: monitor}
}

// HandlePatients routes patient requests to the appropriate handler.
func (h *PatientHandlers) HandlePatients(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		http.Error(w, "Patient monitor unavailable", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/patients")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.ListPatients(w, r)
	case path == "metrics" && r.Method == http.MethodGet:
		h.GetMetrics(w, r)
	case strings.HasSuffix(path, "/vitals") && r.Method == http.MethodPost:
		h.RecordVitals(w, r, strings.TrimSuffix(path, "/vitals"))
	case strings.HasSuffix(path, "/vitals") && r.Method == http.MethodGet:
		h.GetVitalsHistory(w, r, strings.TrimSuffix(path, "/vitals"))
	case strings.HasSuffix(path, "/alerts") && r.Method == http.MethodGet:
		h.GetPatientAlerts(w, r, strings.TrimSuffix(path, "/alerts"))
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// ListPatients returns the ids of patients with recorded vitals.
func (h *PatientHandlers) ListPatients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.GetMonitoredPatients())
}

// GetMetrics returns the trailing-hour patient activity summary.
func (h *PatientHandlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.PatientMetrics())
}

// RecordVitals ingests one vital sign reading for a patient. The patient id
// in the path wins over any id in the body.
func (h *PatientHandlers) RecordVitals(w http.ResponseWriter, r *http.Request, patientID string) {
	if patientID == "" {
		http.Error(w, "Patient id is required", http.StatusBadRequest)
		return
	}

	var vitals patients.VitalSigns
	if err := json.NewDecoder(r.Body).Decode(&vitals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vitals.PatientID = patientID

	if err := h.monitor.RecordVitalSigns(vitals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded", "patientId": patientID})
}

// GetVitalsHistory returns the retained readings for a patient.
func (h *PatientHandlers) GetVitalsHistory(w http.ResponseWriter, r *http.Request, patientID string) {
	writeJSON(w, http.StatusOK, h.monitor.GetVitalsHistory(patientID))
}

// GetPatientAlerts returns the retained alert history for a patient.
func (h *PatientHandlers) GetPatientAlerts(w http.ResponseWriter, r *http.Request, patientID string) {
	writeJSON(w, http.StatusOK, h.monitor.GetPatientAlerts(patientID))
}
