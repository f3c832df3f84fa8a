package sysmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openhms/vitalcore/internal/alerts"
	"github.com/openhms/vitalcore/internal/metrics"
)

// Thresholds holds the configured resource usage limits in percent.
type Thresholds struct {
	CPU    float64
	Memory float64
	Disk   float64
}

// Escalation cutoffs. Usage past these is critical regardless of the
// configured threshold.
const (
	cpuCriticalCutoff    = 95
	memoryCriticalCutoff = 95
	diskCriticalCutoff   = 98
)

const alertSource = "system-monitor"

// Config holds monitor tunables.
type Config struct {
	Interval     time.Duration
	Thresholds   Thresholds
	ProbeTargets map[string]string // service name -> health URL
	ProbeTimeout time.Duration
}

// Monitor periodically samples system resources, records metrics, and raises
// threshold alerts.
type Monitor struct {
	collector *metrics.Collector
	engine    *alerts.Engine
	config    Config

	// collect is swappable for tests.
	collect func(ctx context.Context) (Snapshot, error)

	db Pinger

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a system monitor. collector and engine are required
// constructor dependencies.
func NewMonitor(collector *metrics.Collector, engine *alerts.Engine, config Config) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	return &Monitor{
		collector: collector,
		engine:    engine,
		config:    config,
		collect:   Collect,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the sampling loop. A second call logs and no-ops.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		log.Info().Msg("System monitor already started")
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	log.Info().
		Dur("interval", m.config.Interval).
		Float64("cpuThreshold", m.config.Thresholds.CPU).
		Float64("memoryThreshold", m.config.Thresholds.Memory).
		Float64("diskThreshold", m.config.Thresholds.Disk).
		Msg("System monitor started")
}

// Stop cancels the sampling loop. Safe to call when not running; in-flight
// probe calls are not interrupted.
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
	log.Info().Msg("System monitor stopped")
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// First sample immediately rather than waiting a full interval.
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

// tick samples once: record metrics, then evaluate thresholds. Recording
// happens-before evaluation happens-before alert dispatch.
func (m *Monitor) tick(ctx context.Context) {
	snapshot, err := m.collect(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("System metrics collection failed, skipping cycle")
		return
	}

	m.recordSnapshot(snapshot)
	m.checkThresholds(snapshot)
}

func (m *Monitor) recordSnapshot(s Snapshot) {
	ts := s.Timestamp

	m.collector.Record("system_cpu_usage_percent", s.CPU.UsagePercent, ts, nil)
	m.collector.Record("system_cpu_cores", float64(s.CPU.Cores), ts, nil)
	if len(s.CPU.LoadAverage) == 3 {
		m.collector.Record("system_load_average_1m", s.CPU.LoadAverage[0], ts, nil)
		m.collector.Record("system_load_average_5m", s.CPU.LoadAverage[1], ts, nil)
		m.collector.Record("system_load_average_15m", s.CPU.LoadAverage[2], ts, nil)
	}

	m.collector.Record("system_memory_total_bytes", float64(s.Memory.Total), ts, nil)
	m.collector.Record("system_memory_free_bytes", float64(s.Memory.Free), ts, nil)
	m.collector.Record("system_memory_used_bytes", float64(s.Memory.Used), ts, nil)
	m.collector.Record("system_memory_usage_percent", s.Memory.UsagePercent, ts, nil)

	m.collector.Record("system_disk_total_bytes", float64(s.Disk.Total), ts, nil)
	m.collector.Record("system_disk_free_bytes", float64(s.Disk.Free), ts, nil)
	m.collector.Record("system_disk_used_bytes", float64(s.Disk.Used), ts, nil)
	m.collector.Record("system_disk_usage_percent", s.Disk.UsagePercent, ts, nil)

	m.collector.Record("system_network_in_bytes", float64(s.Network.Inbound), ts, nil)
	m.collector.Record("system_network_out_bytes", float64(s.Network.Outbound), ts, nil)

	m.collector.Record("system_uptime_seconds", s.Uptime.Seconds(), ts, nil)
}

func (m *Monitor) checkThresholds(s Snapshot) {
	m.checkResource("CPU", s.CPU.UsagePercent, m.config.Thresholds.CPU, cpuCriticalCutoff)
	m.checkResource("Memory", s.Memory.UsagePercent, m.config.Thresholds.Memory, memoryCriticalCutoff)
	m.checkResource("Disk", s.Disk.UsagePercent, m.config.Thresholds.Disk, diskCriticalCutoff)
}

func (m *Monitor) checkResource(name string, value, threshold, criticalCutoff float64) {
	if threshold <= 0 || value <= threshold {
		return
	}

	severity := alerts.SeverityHigh
	if value > criticalCutoff {
		severity = alerts.SeverityCritical
	}

	message := fmt.Sprintf("%s usage at %.1f%% (threshold %.1f%%)", name, value, threshold)
	m.engine.SendAlert(alerts.TypeSystem, severity, message, alertSource, map[string]any{
		"metric":    name,
		"value":     value,
		"threshold": threshold,
	})
}
