// Package patients evaluates patient vital-sign readings against clinical
// thresholds and maintains bounded per-patient histories of readings and
// alerts.
package patients

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openhms/vitalcore/internal/alerts"
)

// History bounds per patient. Oldest entries are evicted first.
const (
	maxVitalsHistory = 100
	maxAlertHistory  = 50
)

const alertSource = "patient-monitor"

// BloodPressure is a paired systolic/diastolic reading in mmHg.
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// VitalSigns is one patient reading. Optional signals are nil when the
// reading did not include them. Never mutated after creation.
type VitalSigns struct {
	PatientID        string         `json:"patientId"`
	Timestamp        time.Time      `json:"timestamp"`
	HeartRate        *float64       `json:"heartRate,omitempty"`
	BloodPressure    *BloodPressure `json:"bloodPressure,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	RespiratoryRate  *float64       `json:"respiratoryRate,omitempty"`
	OxygenSaturation *float64       `json:"oxygenSaturation,omitempty"`
	Weight           *float64       `json:"weight,omitempty"`
	Height           *float64       `json:"height,omitempty"`
}

// AlertType classifies a patient alert.
type AlertType string

const (
	AlertVitals      AlertType = "vitals"
	AlertMedication  AlertType = "medication"
	AlertAppointment AlertType = "appointment"
	AlertEmergency   AlertType = "emergency"
)

// PatientAlert is the vitals-specific precursor to a generic alert. Every
// produced PatientAlert is also forwarded to the alert engine.
type PatientAlert struct {
	PatientID string          `json:"patientId"`
	Type      AlertType       `json:"type"`
	Severity  alerts.Severity `json:"severity"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Data      map[string]any  `json:"data,omitempty"`
}

// Metrics aggregates patient activity over a trailing one-hour window.
type Metrics struct {
	ActivePatients   int                     `json:"activePatients"`
	TotalReadings    int                     `json:"totalReadings"`
	CriticalPatients int                     `json:"criticalPatients"`
	BySeverity       map[alerts.Severity]int `json:"bySeverity"`
}

type patientRecord struct {
	vitals []VitalSigns
	alerts []PatientAlert
}

// Monitor tracks vital signs per patient and raises clinical alerts.
type Monitor struct {
	mu       sync.RWMutex
	patients map[string]*patientRecord
	engine   *alerts.Engine
	interval time.Duration

	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// NewMonitor creates a patient monitor. The alert engine is a required
// constructor dependency.
func NewMonitor(engine *alerts.Engine, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Monitor{
		patients: make(map[string]*patientRecord),
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the periodic sweep. A second call logs and no-ops.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		log.Info().Msg("Patient monitor already started")
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	log.Info().Dur("interval", m.interval).Msg("Patient monitor started")
}

// Stop cancels the periodic sweep. Safe to call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	if started {
		<-m.doneCh
	}
	log.Info().Msg("Patient monitor stopped")
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs the periodic sweeps and surfaces window-level conditions.
func (m *Monitor) tick() {
	m.checkMedicationReminders()
	m.checkAppointmentReminders()

	metrics := m.PatientMetrics()
	if metrics.CriticalPatients > 0 {
		log.Warn().
			Int("criticalPatients", metrics.CriticalPatients).
			Int("activePatients", metrics.ActivePatients).
			Msg("Patients with critical alerts in the last hour")
	}
}

// checkMedicationReminders is a defined extension point; the reminder
// schedule lives in the clinical application, not this core.
func (m *Monitor) checkMedicationReminders() {
	log.Debug().Msg("Medication reminder sweep")
}

// checkAppointmentReminders is a defined extension point, as above.
func (m *Monitor) checkAppointmentReminders() {
	log.Debug().Msg("Appointment reminder sweep")
}

// RecordVitalSigns stores a reading and evaluates clinical thresholds.
// Each signal independently produces at most one alert.
func (m *Monitor) RecordVitalSigns(vitals VitalSigns) error {
	if vitals.PatientID == "" {
		return fmt.Errorf("patient id is required")
	}
	if vitals.Timestamp.IsZero() {
		vitals.Timestamp = m.now()
	}

	m.mu.Lock()
	record, ok := m.patients[vitals.PatientID]
	if !ok {
		record = &patientRecord{}
		m.patients[vitals.PatientID] = record
	}
	record.vitals = append(record.vitals, vitals)
	if len(record.vitals) > maxVitalsHistory {
		record.vitals = record.vitals[len(record.vitals)-maxVitalsHistory:]
	}
	m.mu.Unlock()

	for _, alert := range evaluateVitals(vitals) {
		m.raise(alert)
	}
	return nil
}

// raise appends to the patient's alert history and forwards to the engine.
func (m *Monitor) raise(alert PatientAlert) {
	m.mu.Lock()
	record, ok := m.patients[alert.PatientID]
	if ok {
		record.alerts = append(record.alerts, alert)
		if len(record.alerts) > maxAlertHistory {
			record.alerts = record.alerts[len(record.alerts)-maxAlertHistory:]
		}
	}
	m.mu.Unlock()

	message := fmt.Sprintf("Patient %s: %s", alert.PatientID, alert.Message)
	m.engine.SendAlert(alerts.TypePatient, alert.Severity, message, alertSource, alert.Data)
}

// evaluateVitals applies the clinical threshold tables to one reading.
func evaluateVitals(vitals VitalSigns) []PatientAlert {
	var out []PatientAlert

	add := func(severity alerts.Severity, message string, data map[string]any) {
		out = append(out, PatientAlert{
			PatientID: vitals.PatientID,
			Type:      AlertVitals,
			Severity:  severity,
			Message:   message,
			Timestamp: vitals.Timestamp,
			Data:      data,
		})
	}

	if hr := vitals.HeartRate; hr != nil {
		switch {
		case *hr < 50 || *hr > 120:
			add(alerts.SeverityCritical,
				fmt.Sprintf("heart rate %.0f bpm outside critical range", *hr),
				map[string]any{"heartRate": *hr})
		case *hr < 60 || *hr > 100:
			add(alerts.SeverityHigh,
				fmt.Sprintf("heart rate %.0f bpm outside normal range (60-100)", *hr),
				map[string]any{"heartRate": *hr})
		}
	}

	if bp := vitals.BloodPressure; bp != nil {
		switch {
		case bp.Systolic > 180 || bp.Diastolic > 110:
			add(alerts.SeverityCritical,
				fmt.Sprintf("blood pressure %.0f/%.0f mmHg critically elevated", bp.Systolic, bp.Diastolic),
				map[string]any{"systolic": bp.Systolic, "diastolic": bp.Diastolic})
		case bp.Systolic > 140 || bp.Diastolic > 90:
			add(alerts.SeverityHigh,
				fmt.Sprintf("blood pressure %.0f/%.0f mmHg elevated", bp.Systolic, bp.Diastolic),
				map[string]any{"systolic": bp.Systolic, "diastolic": bp.Diastolic})
		}
	}

	if temp := vitals.Temperature; temp != nil {
		switch {
		case *temp > 39.5 || *temp < 35.0:
			add(alerts.SeverityCritical,
				fmt.Sprintf("temperature %.1f°C outside critical range", *temp),
				map[string]any{"temperature": *temp})
		case *temp < 36.0 || *temp > 38.0:
			add(alerts.SeverityHigh,
				fmt.Sprintf("temperature %.1f°C outside normal range (36.0-38.0)", *temp),
				map[string]any{"temperature": *temp})
		}
	}

	if spo2 := vitals.OxygenSaturation; spo2 != nil {
		switch {
		case *spo2 < 90:
			add(alerts.SeverityCritical,
				fmt.Sprintf("oxygen saturation %.0f%% critically low", *spo2),
				map[string]any{"oxygenSaturation": *spo2})
		case *spo2 < 95:
			add(alerts.SeverityHigh,
				fmt.Sprintf("oxygen saturation %.0f%% below normal (95%%)", *spo2),
				map[string]any{"oxygenSaturation": *spo2})
		}
	}

	return out
}

// GetVitalsHistory returns the retained readings for a patient, oldest first.
func (m *Monitor) GetVitalsHistory(patientID string) []VitalSigns {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.patients[patientID]
	if !ok {
		return nil
	}
	out := make([]VitalSigns, len(record.vitals))
	copy(out, record.vitals)
	return out
}

// GetPatientAlerts returns the retained alerts for a patient, oldest first.
func (m *Monitor) GetPatientAlerts(patientID string) []PatientAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.patients[patientID]
	if !ok {
		return nil
	}
	out := make([]PatientAlert, len(record.alerts))
	copy(out, record.alerts)
	return out
}

// GetMonitoredPatients returns the ids of all patients with any history.
func (m *Monitor) GetMonitoredPatients() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.patients))
	for id := range m.patients {
		out = append(out, id)
	}
	return out
}

// PatientMetrics aggregates activity over the trailing hour: patients with
// readings, reading counts, patients with critical alerts, and an alert
// severity histogram.
func (m *Monitor) PatientMetrics() Metrics {
	cutoff := m.now().Add(-time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := Metrics{BySeverity: make(map[alerts.Severity]int)}
	for _, record := range m.patients {
		readings := 0
		for _, v := range record.vitals {
			if v.Timestamp.After(cutoff) {
				readings++
			}
		}
		if readings > 0 {
			metrics.ActivePatients++
			metrics.TotalReadings += readings
		}

		critical := false
		for _, a := range record.alerts {
			if a.Timestamp.After(cutoff) {
				metrics.BySeverity[a.Severity]++
				if a.Severity == alerts.SeverityCritical {
					critical = true
				}
			}
		}
		if critical {
			metrics.CriticalPatients++
		}
	}
	return metrics
}
