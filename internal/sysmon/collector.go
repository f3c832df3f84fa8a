// Package sysmon samples OS-level resource usage on a fixed cadence, fans the
// readings into the metrics collector, and raises alerts on threshold
// breaches.
package sysmon

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gohost "github.com/shirou/gopsutil/v4/host"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
)

// System call wrappers for testing
var (
	cpuCounts     = gocpu.CountsWithContext
	cpuPercent    = gocpu.PercentWithContext
	loadAvg       = goload.AvgWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	diskUsage     = godisk.UsageWithContext
	netIOCounters = gonet.IOCountersWithContext
	hostUptime    = gohost.UptimeWithContext
)

// CPUStats describes processor utilisation at sample time.
type CPUStats struct {
	UsagePercent float64   `json:"usagePercent"`
	Cores        int       `json:"cores"`
	LoadAverage  []float64 `json:"loadAverage"`
}

// MemoryStats describes physical memory utilisation.
type MemoryStats struct {
	Total        uint64  `json:"total"`
	Free         uint64  `json:"free"`
	Used         uint64  `json:"used"`
	UsagePercent float64 `json:"usagePercent"`
}

// DiskStats describes root filesystem utilisation.
type DiskStats struct {
	Total        uint64  `json:"total"`
	Free         uint64  `json:"free"`
	Used         uint64  `json:"used"`
	UsagePercent float64 `json:"usagePercent"`
}

// NetworkStats describes cumulative network traffic.
type NetworkStats struct {
	Inbound  uint64 `json:"inbound"`
	Outbound uint64 `json:"outbound"`
}

// Snapshot is a point-in-time sample of host resource utilisation. It is
// produced fresh on every tick; its fields are fanned out into individual
// metric points rather than retained whole.
type Snapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	CPU       CPUStats      `json:"cpu"`
	Memory    MemoryStats   `json:"memory"`
	Disk      DiskStats     `json:"disk"`
	Network   NetworkStats  `json:"network"`
	Uptime    time.Duration `json:"uptime"`
}

// Collect gathers a snapshot. Individual collection failures are logged and
// leave that section zeroed; a degraded snapshot is still usable.
func Collect(ctx context.Context) (Snapshot, error) {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	snapshot := Snapshot{Timestamp: time.Now()}

	if cores, err := cpuCounts(collectCtx, true); err == nil {
		snapshot.CPU.Cores = cores
	} else {
		log.Warn().Err(err).Msg("Failed to count CPU cores")
	}

	if usage, err := collectCPUUsage(collectCtx); err == nil {
		snapshot.CPU.UsagePercent = usage
	} else {
		log.Warn().Err(err).Msg("Failed to sample CPU usage")
	}

	if avg, err := loadAvg(collectCtx); err == nil && avg != nil {
		snapshot.CPU.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	} else if err != nil {
		log.Warn().Err(err).Msg("Failed to read load average")
	}

	if memStats, err := virtualMemory(collectCtx); err == nil {
		snapshot.Memory = MemoryStats{
			Total:        memStats.Total,
			Free:         memStats.Available,
			Used:         memStats.Used,
			UsagePercent: memStats.UsedPercent,
		}
	} else {
		log.Warn().Err(err).Msg("Failed to read memory stats")
	}

	if usage, err := diskUsage(collectCtx, "/"); err == nil && usage != nil {
		snapshot.Disk = DiskStats{
			Total:        usage.Total,
			Free:         usage.Free,
			Used:         usage.Used,
			UsagePercent: usage.UsedPercent,
		}
	} else if err != nil {
		log.Warn().Err(err).Msg("Failed to read disk stats")
	}

	if counters, err := netIOCounters(collectCtx, false); err == nil && len(counters) > 0 {
		snapshot.Network = NetworkStats{
			Inbound:  counters[0].BytesRecv,
			Outbound: counters[0].BytesSent,
		}
	} else if err != nil {
		log.Warn().Err(err).Msg("Failed to read network counters")
	}

	if uptime, err := hostUptime(collectCtx); err == nil {
		snapshot.Uptime = time.Duration(uptime) * time.Second
	} else {
		log.Warn().Err(err).Msg("Failed to read host uptime")
	}

	return snapshot, nil
}

func collectCPUUsage(ctx context.Context) (float64, error) {
	percentages, err := cpuPercent(ctx, time.Second, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, nil
	}

	usage := percentages[0]
	if usage < 0 {
		usage = 0
	}
	if usage > 100 {
		usage = 100
	}
	return usage, nil
}
