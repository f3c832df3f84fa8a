package api

import (
	"net/http"
	"time"
)

// handleLive reports process liveness. It never fails while the process can
// serve requests.
func (r *Router) handleLive(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// handleReady reports whether every subsystem has been wired. Serving 503
// here keeps load balancers away until startup finishes.
func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := r.deps.Engine != nil &&
		r.deps.Dashboard != nil &&
		r.deps.Patients != nil &&
		r.deps.System != nil &&
		r.deps.Collector != nil

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{
		"status":         state,
		"services_ready": ready,
		"timestamp":      time.Now().Unix(),
	})
}

// handleDetailed runs a full health evaluation: resource checks, service
// probes, and database reachability.
func (r *Router) handleDetailed(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.deps.System == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"error":     "system monitor unavailable",
			"timestamp": time.Now().Unix(),
		})
		return
	}

	report := r.deps.System.HealthStatus(req.Context())

	payload := map[string]any{
		"status":    report.Status,
		"timestamp": report.Timestamp.Unix(),
		"uptime":    time.Since(r.startTime).Seconds(),
		"version":   r.deps.Version,
		"checks":    report.Checks,
		"services":  report.Services,
		"performance": map[string]any{
			"cpuUsagePercent":    report.Metrics.CPU.UsagePercent,
			"memoryUsagePercent": report.Metrics.Memory.UsagePercent,
			"diskUsagePercent":   report.Metrics.Disk.UsagePercent,
		},
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleMetrics serves the recorded pipeline metrics in Prometheus text
// exposition format.
func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if r.deps.Collector == nil {
		w.Write([]byte("# metrics collector unavailable\n"))
		return
	}
	w.Write([]byte(r.deps.Collector.PrometheusMetrics()))
}
