package dashboard

import (
	"fmt"
	"time"
)

// WidgetType selects which WidgetData variant a widget carries.
type WidgetType string

const (
	WidgetChart  WidgetType = "chart"
	WidgetMetric WidgetType = "metric"
	WidgetAlert  WidgetType = "alert"
	WidgetStatus WidgetType = "status"
	WidgetTable  WidgetType = "table"
)

func (t WidgetType) valid() bool {
	switch t {
	case WidgetChart, WidgetMetric, WidgetAlert, WidgetStatus, WidgetTable:
		return true
	}
	return false
}

// Widget is one dashboard tile. Data holds exactly the variant matching Type;
// the other variants stay nil.
type Widget struct {
	ID              string         `json:"id"`
	Type            WidgetType     `json:"type"`
	Title           string         `json:"title"`
	Data            WidgetData     `json:"data"`
	Config          map[string]any `json:"config,omitempty"`
	RefreshInterval time.Duration  `json:"refreshInterval"`
}

// WidgetData is a tagged union keyed by the owning widget's Type.
type WidgetData struct {
	Metric *MetricPayload `json:"metric,omitempty"`
	Status *StatusPayload `json:"status,omitempty"`
	Alerts *AlertPayload  `json:"alerts,omitempty"`
	Table  *TablePayload  `json:"table,omitempty"`
	Chart  *ChartPayload  `json:"chart,omitempty"`
}

// MetricPayload is a set of labeled scalar cards.
type MetricPayload struct {
	Cards []MetricCard `json:"cards"`
}

// MetricCard is one labeled scalar value.
type MetricCard struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// StatusPayload reports per-service health.
type StatusPayload struct {
	Services map[string]ServiceCell `json:"services"`
}

// ServiceCell is one service's status line.
type ServiceCell struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTimeMs"`
	Error        string `json:"error,omitempty"`
}

// AlertPayload summarizes current alert counts.
type AlertPayload struct {
	Unresolved int            `json:"unresolved"`
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
}

// TablePayload is a generic column/row grid.
type TablePayload struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ChartPayload is one or more time series.
type ChartPayload struct {
	Series []ChartSeries `json:"series"`
}

// ChartSeries is a named sequence of timestamped values.
type ChartSeries struct {
	Name   string       `json:"name"`
	Points []ChartPoint `json:"points"`
}

// ChartPoint is one sample on a chart.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

func defaultWidgets() []*Widget {
	return []*Widget{
		{
			ID:              "system-metrics",
			Type:            WidgetMetric,
			Title:           "System Metrics",
			RefreshInterval: 15 * time.Second,
		},
		{
			ID:              "patient-overview",
			Type:            WidgetMetric,
			Title:           "Patient Overview",
			RefreshInterval: 30 * time.Second,
		},
		{
			ID:              "cpu-history",
			Type:            WidgetChart,
			Title:           "CPU Usage",
			Config:          map[string]any{"metric": "system_cpu_usage_percent", "points": 60},
			RefreshInterval: 15 * time.Second,
		},
		{
			ID:              "service-status",
			Type:            WidgetStatus,
			Title:           "Service Status",
			RefreshInterval: 30 * time.Second,
		},
		{
			ID:              "alerts-summary",
			Type:            WidgetAlert,
			Title:           "Alerts",
			RefreshInterval: 15 * time.Second,
		},
		{
			ID:              "recent-alerts",
			Type:            WidgetTable,
			Title:           "Recent Alerts",
			RefreshInterval: 15 * time.Second,
		},
	}
}

// refreshWidgetsLocked recomputes widget payloads from the freshly built
// snapshot. Caller holds m.mu.
func (m *Manager) refreshWidgetsLocked(snapshot *Data) {
	for _, widget := range m.widgets {
		widget.Data = m.buildWidgetData(widget, snapshot)
	}
}

func (m *Manager) buildWidgetData(widget *Widget, snapshot *Data) WidgetData {
	switch widget.Type {
	case WidgetMetric:
		if widget.ID == "patient-overview" {
			return WidgetData{Metric: patientCards(snapshot)}
		}
		return WidgetData{Metric: systemCards(snapshot)}
	case WidgetStatus:
		return WidgetData{Status: statusPayload(snapshot)}
	case WidgetAlert:
		return WidgetData{Alerts: alertPayload(snapshot)}
	case WidgetTable:
		return WidgetData{Table: recentAlertsTable(snapshot)}
	case WidgetChart:
		return WidgetData{Chart: m.chartPayload(widget)}
	}
	return WidgetData{}
}

func systemCards(snapshot *Data) *MetricPayload {
	return &MetricPayload{Cards: []MetricCard{
		{Label: "CPU Usage", Value: snapshot.System.CPU.UsagePercent, Unit: "%"},
		{Label: "Memory Usage", Value: snapshot.System.Memory.UsagePercent, Unit: "%"},
		{Label: "Disk Usage", Value: snapshot.System.Disk.UsagePercent, Unit: "%"},
		{Label: "Uptime", Value: snapshot.System.Uptime.Seconds(), Unit: "s"},
	}}
}

func patientCards(snapshot *Data) *MetricPayload {
	return &MetricPayload{Cards: []MetricCard{
		{Label: "Active Patients", Value: float64(snapshot.Patients.ActivePatients)},
		{Label: "Readings (1h)", Value: float64(snapshot.Patients.TotalReadings)},
		{Label: "Critical Patients", Value: float64(snapshot.Patients.CriticalPatients)},
	}}
}

func statusPayload(snapshot *Data) *StatusPayload {
	services := make(map[string]ServiceCell, len(snapshot.Services))
	for name, status := range snapshot.Services {
		services[name] = ServiceCell{
			Status:       status.Status,
			ResponseTime: status.ResponseTime,
			Error:        status.Error,
		}
	}
	return &StatusPayload{Services: services}
}

func alertPayload(snapshot *Data) *AlertPayload {
	bySeverity := make(map[string]int, len(snapshot.Alerts.BySeverity))
	for severity, count := range snapshot.Alerts.BySeverity {
		bySeverity[string(severity)] = count
	}
	return &AlertPayload{
		Unresolved: snapshot.Alerts.Unresolved,
		Total:      snapshot.Alerts.Total,
		BySeverity: bySeverity,
	}
}

func recentAlertsTable(snapshot *Data) *TablePayload {
	rows := make([][]string, 0, len(snapshot.Recent))
	for _, alert := range snapshot.Recent {
		rows = append(rows, []string{
			alert.Timestamp.Format(time.RFC3339),
			string(alert.Severity),
			string(alert.Type),
			alert.Source,
			alert.Message,
			fmt.Sprintf("%t", alert.Resolved),
		})
	}
	return &TablePayload{
		Columns: []string{"time", "severity", "type", "source", "message", "resolved"},
		Rows:    rows,
	}
}

func (m *Manager) chartPayload(widget *Widget) *ChartPayload {
	if m.metricsSrc == nil {
		return &ChartPayload{}
	}

	metricName := "system_cpu_usage_percent"
	limit := 60
	if widget.Config != nil {
		if name, ok := widget.Config["metric"].(string); ok && name != "" {
			metricName = name
		}
		if n, ok := widget.Config["points"].(int); ok && n > 0 {
			limit = n
		}
	}

	points := m.metricsSrc.Metrics(metricName, limit)
	series := ChartSeries{Name: metricName, Points: make([]ChartPoint, 0, len(points))}
	for _, point := range points {
		series.Points = append(series.Points, ChartPoint{Timestamp: point.Timestamp, Value: point.Value})
	}
	return &ChartPayload{Series: []ChartSeries{series}}
}
