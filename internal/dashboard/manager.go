// Package dashboard periodically aggregates monitored state into one
// consistent snapshot and maintains the widget registry backing the live
// dashboard.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openhms/vitalcore/internal/alerts"
	"github.com/openhms/vitalcore/internal/metrics"
	"github.com/openhms/vitalcore/internal/patients"
	"github.com/openhms/vitalcore/internal/sysmon"
)

// SystemProvider supplies the system health view.
type SystemProvider interface {
	HealthStatus(ctx context.Context) sysmon.HealthReport
}

// PatientProvider supplies the patient activity window.
type PatientProvider interface {
	PatientMetrics() patients.Metrics
}

// AlertProvider supplies alert aggregates and recent alerts.
type AlertProvider interface {
	GetAlertStats() alerts.Stats
	GetAlerts(filter alerts.Filter) []alerts.Alert
}

// MetricsProvider supplies recorded metric series for chart widgets.
type MetricsProvider interface {
	Metrics(name string, limit int) []metrics.Point
}

// Broadcaster pushes fresh snapshots to live dashboard clients.
type Broadcaster interface {
	Broadcast(messageType string, data any)
}

// Data is the read-only aggregate rebuilt wholesale on every tick. The whole
// structure is swapped at once, never partially updated.
type Data struct {
	Timestamp time.Time                       `json:"timestamp"`
	Health    string                          `json:"health"`
	System    sysmon.Snapshot                 `json:"systemMetrics"`
	Patients  patients.Metrics                `json:"patientMetrics"`
	Services  map[string]sysmon.ServiceStatus `json:"serviceStatus"`
	Alerts    alerts.Stats                    `json:"alerts"`
	Recent    []alerts.Alert                  `json:"recentAlerts"`
}

// Manager builds dashboard snapshots and owns the widget registry.
type Manager struct {
	system      SystemProvider
	patientsSrc PatientProvider
	alertsSrc   AlertProvider
	metricsSrc  MetricsProvider
	broadcaster Broadcaster
	interval    time.Duration

	mu       sync.RWMutex
	snapshot *Data
	widgets  map[string]*Widget

	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a dashboard manager with the default widget registry
// seeded. The broadcaster may be nil when live pushes are disabled.
func NewManager(system SystemProvider, patientsSrc PatientProvider, alertsSrc AlertProvider, metricsSrc MetricsProvider, broadcaster Broadcaster, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &Manager{
		system:      system,
		patientsSrc: patientsSrc,
		alertsSrc:   alertsSrc,
		metricsSrc:  metricsSrc,
		broadcaster: broadcaster,
		interval:    interval,
		widgets:     make(map[string]*Widget),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	for _, widget := range defaultWidgets() {
		m.widgets[widget.ID] = widget
	}
	return m
}

// Start launches the aggregation loop. A second call logs and no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		log.Info().Msg("Dashboard manager already started")
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	log.Info().Dur("interval", m.interval).Msg("Dashboard manager started")
}

// Stop cancels the aggregation loop. Safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	if started {
		<-m.doneCh
	}
	log.Info().Msg("Dashboard manager stopped")
}

func (m *Manager) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(context.Background())

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(context.Background())
		}
	}
}

// tick rebuilds the snapshot, swaps it in atomically, refreshes widget data,
// and pushes the new snapshot to live clients.
func (m *Manager) tick(ctx context.Context) {
	health := m.system.HealthStatus(ctx)

	snapshot := &Data{
		Timestamp: time.Now(),
		Health:    health.Status,
		System:    health.Metrics,
		Patients:  m.patientsSrc.PatientMetrics(),
		Services:  health.Services,
		Alerts:    m.alertsSrc.GetAlertStats(),
		Recent:    m.alertsSrc.GetAlerts(alerts.Filter{Limit: 10}),
	}

	m.mu.Lock()
	m.snapshot = snapshot
	m.refreshWidgetsLocked(snapshot)
	broadcaster := m.broadcaster
	m.mu.Unlock()

	if broadcaster != nil {
		broadcaster.Broadcast("dashboard", snapshot)
	}
}

// GetDashboardData returns the latest complete snapshot, or false before the
// first tick has finished.
func (m *Manager) GetDashboardData() (Data, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return Data{}, false
	}
	return *m.snapshot, true
}

// AddWidget registers a widget. An existing widget with the same id is
// replaced.
func (m *Manager) AddWidget(widget Widget) error {
	if widget.ID == "" {
		return fmt.Errorf("widget id is required")
	}
	if !widget.Type.valid() {
		return fmt.Errorf("unknown widget type %q", widget.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets[widget.ID] = &widget
	return nil
}

// RemoveWidget deletes a widget from the registry.
func (m *Manager) RemoveWidget(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.widgets[id]; !ok {
		return false
	}
	delete(m.widgets, id)
	return true
}

// UpdateWidget replaces the stored widget with the same id.
func (m *Manager) UpdateWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.widgets[widget.ID]; !ok {
		return fmt.Errorf("widget %q not found", widget.ID)
	}
	m.widgets[widget.ID] = &widget
	return nil
}

// GetWidget returns a copy of the widget with the given id.
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	widget, ok := m.widgets[id]
	if !ok {
		return Widget{}, false
	}
	return *widget, true
}

// GetWidgets returns copies of all registered widgets.
func (m *Manager) GetWidgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Widget, 0, len(m.widgets))
	for _, widget := range m.widgets {
		out = append(out, *widget)
	}
	return out
}

// DashboardConfig bundles the widget registry with the static layout grid
// and display settings consumed by the frontend.
type DashboardConfig struct {
	Widgets  []Widget       `json:"widgets"`
	Layout   LayoutGrid     `json:"layout"`
	Settings map[string]any `json:"settings"`
}

// LayoutGrid is the static dashboard arrangement.
type LayoutGrid struct {
	Columns int         `json:"columns"`
	Rows    []LayoutRow `json:"rows"`
}

// LayoutRow places widgets on one grid row.
type LayoutRow struct {
	Widgets []string `json:"widgets"`
	Height  int      `json:"height"`
}

// GetDashboardConfig returns widgets plus the static layout and settings.
func (m *Manager) GetDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Widgets: m.GetWidgets(),
		Layout: LayoutGrid{
			Columns: 12,
			Rows: []LayoutRow{
				{Widgets: []string{"system-metrics", "patient-overview"}, Height: 4},
				{Widgets: []string{"cpu-history", "service-status"}, Height: 4},
				{Widgets: []string{"alerts-summary", "recent-alerts"}, Height: 4},
			},
		},
		Settings: map[string]any{
			"theme":           "light",
			"refreshInterval": m.interval.Milliseconds(),
			"timezone":        "UTC",
		},
	}
}
