package sysmon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Overall health classification.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// Pinger is the database collaborator consumed opportunistically by health
// checks. Its absence degrades health status but is never fatal.
type Pinger interface {
	Ping() error
	ConnectionInfo() map[string]any
}

// ServiceStatus is the probe outcome for one dependent service.
type ServiceStatus struct {
	Status       string `json:"status"` // ok, error, unavailable
	Error        string `json:"error,omitempty"`
	ResponseTime int64  `json:"responseTimeMs,omitempty"`
}

// ResourceCheck is one threshold evaluation inside a health report.
type ResourceCheck struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	Critical  bool    `json:"critical"`
}

// HealthReport is the aggregate outcome of a health evaluation.
type HealthReport struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Checks    map[string]ResourceCheck `json:"checks"`
	Services  map[string]ServiceStatus `json:"services"`
	Metrics   Snapshot                 `json:"metrics"`
}

// SetDatabase attaches the database collaborator used by health checks.
func (m *Monitor) SetDatabase(db Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = db
}

// HealthStatus recomputes a fresh snapshot, evaluates resource thresholds,
// and probes every dependent service. Probe failures mark that service as
// errored without failing the whole report.
func (m *Monitor) HealthStatus(ctx context.Context) HealthReport {
	snapshot, err := m.collect(ctx)
	report := HealthReport{
		Timestamp: time.Now(),
		Checks:    make(map[string]ResourceCheck),
		Services:  make(map[string]ServiceStatus),
		Metrics:   snapshot,
	}
	if err != nil {
		// A failed collection leaves zeroed metrics; the checks below
		// then trivially pass, so flag it through the service map.
		report.Services["collector"] = ServiceStatus{Status: "error", Error: err.Error()}
	}

	report.Checks["cpu"] = resourceCheck(snapshot.CPU.UsagePercent, m.config.Thresholds.CPU, cpuCriticalCutoff)
	report.Checks["memory"] = resourceCheck(snapshot.Memory.UsagePercent, m.config.Thresholds.Memory, memoryCriticalCutoff)
	report.Checks["disk"] = resourceCheck(snapshot.Disk.UsagePercent, m.config.Thresholds.Disk, diskCriticalCutoff)

	m.probeServices(ctx, report.Services)
	m.checkDatabase(report.Services)

	report.Status = classify(report)
	return report
}

func resourceCheck(value, threshold, criticalCutoff float64) ResourceCheck {
	return ResourceCheck{
		Value:     value,
		Threshold: threshold,
		Passed:    threshold <= 0 || value <= threshold,
		Critical:  value > criticalCutoff,
	}
}

// probeServices checks each dependent service's health endpoint. Probes run
// concurrently and are individually time-bounded so one unreachable
// dependency cannot stall the others.
func (m *Monitor) probeServices(ctx context.Context, services map[string]ServiceStatus) {
	if len(m.config.ProbeTargets) == 0 {
		return
	}

	client := &http.Client{Timeout: m.config.ProbeTimeout}

	var (
		resultMu sync.Mutex
		g, gctx  = errgroup.WithContext(ctx)
	)

	for name, url := range m.config.ProbeTargets {
		name, url := name, url
		g.Go(func() error {
			status := m.probeOne(gctx, client, url)
			resultMu.Lock()
			services[name] = status
			resultMu.Unlock()
			// Probe failures are recorded, never propagated.
			return nil
		})
	}
	g.Wait()
}

func (m *Monitor) probeOne(ctx context.Context, client *http.Client, url string) ServiceStatus {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return ServiceStatus{Status: "error", Error: err.Error()}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ServiceStatus{Status: "error", Error: err.Error(), ResponseTime: elapsed}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ServiceStatus{
			Status:       "error",
			Error:        fmt.Sprintf("unexpected status %d", resp.StatusCode),
			ResponseTime: elapsed,
		}
	}
	return ServiceStatus{Status: "ok", ResponseTime: elapsed}
}

func (m *Monitor) checkDatabase(services map[string]ServiceStatus) {
	m.mu.Lock()
	db := m.db
	m.mu.Unlock()

	if db == nil {
		services["database"] = ServiceStatus{Status: "unavailable"}
		return
	}
	if err := db.Ping(); err != nil {
		services["database"] = ServiceStatus{Status: "error", Error: err.Error()}
		return
	}
	services["database"] = ServiceStatus{Status: "ok"}
}

// classify derives the overall status: critical when any metric is past its
// critical cutoff, warning when any check or probe fails, healthy otherwise.
func classify(report HealthReport) string {
	status := StatusHealthy
	for _, check := range report.Checks {
		if check.Critical {
			return StatusCritical
		}
		if !check.Passed {
			status = StatusWarning
		}
	}
	for _, service := range report.Services {
		if service.Status != "ok" {
			if status == StatusHealthy {
				status = StatusWarning
			}
		}
	}
	return status
}
