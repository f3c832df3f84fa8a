package dashboard

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ErrNoSnapshot is returned when an export is requested before the first
// aggregation tick has completed.
var ErrNoSnapshot = errors.New("dashboard: no snapshot available yet")

// Export serializes the latest snapshot. Supported formats are "json" and
// "csv"; the CSV form is one timestamp,metric,value row per scalar.
func (m *Manager) Export(format string) ([]byte, error) {
	m.mu.RLock()
	snapshot := m.snapshot
	m.mu.RUnlock()

	if snapshot == nil {
		return nil, ErrNoSnapshot
	}

	switch format {
	case "json":
		return json.MarshalIndent(snapshot, "", "  ")
	case "csv":
		return exportCSV(snapshot)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func exportCSV(snapshot *Data) ([]byte, error) {
	scalars := map[string]float64{
		"system.cpu.usage_percent":    snapshot.System.CPU.UsagePercent,
		"system.cpu.cores":            float64(snapshot.System.CPU.Cores),
		"system.memory.total":         float64(snapshot.System.Memory.Total),
		"system.memory.used":          float64(snapshot.System.Memory.Used),
		"system.memory.usage_percent": snapshot.System.Memory.UsagePercent,
		"system.disk.total":           float64(snapshot.System.Disk.Total),
		"system.disk.used":            float64(snapshot.System.Disk.Used),
		"system.disk.usage_percent":   snapshot.System.Disk.UsagePercent,
		"system.network.inbound":      float64(snapshot.System.Network.Inbound),
		"system.network.outbound":     float64(snapshot.System.Network.Outbound),
		"system.uptime_seconds":       snapshot.System.Uptime.Seconds(),
		"patients.active":             float64(snapshot.Patients.ActivePatients),
		"patients.readings":           float64(snapshot.Patients.TotalReadings),
		"patients.critical":           float64(snapshot.Patients.CriticalPatients),
		"alerts.total":                float64(snapshot.Alerts.Total),
		"alerts.unresolved":           float64(snapshot.Alerts.Unresolved),
		"alerts.resolved":             float64(snapshot.Alerts.Resolved),
	}
	for severity, count := range snapshot.Alerts.BySeverity {
		scalars["alerts.severity."+string(severity)] = float64(count)
	}

	names := make([]string, 0, len(scalars))
	for name := range scalars {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "metric", "value"}); err != nil {
		return nil, err
	}
	ts := snapshot.Timestamp.Format(time.RFC3339)
	for _, name := range names {
		row := []string{ts, name, strconv.FormatFloat(scalars[name], 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
