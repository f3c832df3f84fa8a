package sysmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhms/vitalcore/internal/alerts"
	"github.com/openhms/vitalcore/internal/metrics"
)

func newTestMonitor(collect func(ctx context.Context) (Snapshot, error)) (*Monitor, *metrics.Collector, *alerts.Engine) {
	collector := metrics.NewCollector(1000)
	// No cooldown rules so every breach in a test fires an alert.
	engine := alerts.NewEngine(alerts.DefaultEngineConfig(), nil)
	for _, rule := range engine.GetRules() {
		engine.RemoveRule(rule.ID)
	}

	m := NewMonitor(collector, engine, Config{
		Interval: time.Hour,
		Thresholds: Thresholds{
			CPU:    80,
			Memory: 85,
			Disk:   90,
		},
	})
	if collect != nil {
		m.collect = collect
	}
	return m, collector, engine
}

func snapshotWith(cpu, memory, disk float64) Snapshot {
	return Snapshot{
		Timestamp: time.Now(),
		CPU:       CPUStats{UsagePercent: cpu, Cores: 8, LoadAverage: []float64{1.2, 1.0, 0.8}},
		Memory:    MemoryStats{Total: 16 << 30, Used: 8 << 30, Free: 8 << 30, UsagePercent: memory},
		Disk:      DiskStats{Total: 500 << 30, Used: 250 << 30, Free: 250 << 30, UsagePercent: disk},
		Network:   NetworkStats{Inbound: 1000, Outbound: 2000},
		Uptime:    48 * time.Hour,
	}
}

func TestTickRecordsMetrics(t *testing.T) {
	snap := snapshotWith(42, 50, 60)
	m, collector, _ := newTestMonitor(func(context.Context) (Snapshot, error) {
		return snap, nil
	})

	m.tick(context.Background())

	cpu, ok := collector.Latest("system_cpu_usage_percent")
	require.True(t, ok)
	assert.Equal(t, 42.0, cpu.Value)

	load, ok := collector.Latest("system_load_average_1m")
	require.True(t, ok)
	assert.Equal(t, 1.2, load.Value)

	uptime, ok := collector.Latest("system_uptime_seconds")
	require.True(t, ok)
	assert.Equal(t, (48 * time.Hour).Seconds(), uptime.Value)
}

func TestThresholdEscalation(t *testing.T) {
	cases := []struct {
		name     string
		cpu      float64
		alerts   int
		severity alerts.Severity
	}{
		{"below threshold", 60, 0, ""},
		{"above threshold", 82, 1, alerts.SeverityHigh},
		{"past critical cutoff", 97, 1, alerts.SeverityCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _, engine := newTestMonitor(func(context.Context) (Snapshot, error) {
				return snapshotWith(tc.cpu, 50, 60), nil
			})

			m.tick(context.Background())

			fired := engine.GetAlerts(alerts.Filter{Type: alerts.TypeSystem})
			require.Len(t, fired, tc.alerts)
			if tc.alerts > 0 {
				assert.Equal(t, tc.severity, fired[0].Severity)
				assert.Equal(t, "system-monitor", fired[0].Source)
				assert.Equal(t, tc.cpu, fired[0].Data["value"])
				assert.Equal(t, 80.0, fired[0].Data["threshold"])
			}
		})
	}
}

func TestMemoryAndDiskThresholds(t *testing.T) {
	m, _, engine := newTestMonitor(func(context.Context) (Snapshot, error) {
		return snapshotWith(50, 96, 99), nil
	})

	m.tick(context.Background())

	fired := engine.GetAlerts(alerts.Filter{Severity: alerts.SeverityCritical})
	require.Len(t, fired, 2)
}

func TestCollectionFailureSkipsCycle(t *testing.T) {
	m, collector, engine := newTestMonitor(func(context.Context) (Snapshot, error) {
		return Snapshot{}, errors.New("proc not mounted")
	})

	m.tick(context.Background())

	assert.Empty(t, collector.Names())
	assert.Empty(t, engine.GetAlerts(alerts.Filter{}))
}

func TestStartStopIdempotent(t *testing.T) {
	m, _, _ := newTestMonitor(func(context.Context) (Snapshot, error) {
		return snapshotWith(10, 10, 10), nil
	})

	m.Start()
	m.Start() // logs and no-ops
	m.Stop()
	m.Stop() // safe when already stopped
}
