package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.SystemInterval)
	assert.Equal(t, 60*time.Second, cfg.PatientInterval)
	assert.Equal(t, 15*time.Second, cfg.DashboardInterval)
	assert.Equal(t, 80.0, cfg.CPUThreshold)
	assert.Equal(t, 10000, cfg.MetricsMaxPoints)
	assert.Equal(t, 90, cfg.AlertRetentionDays)
	assert.Equal(t, []string{"websocket"}, cfg.AlertChannels["low"])
	assert.Equal(t, []string{"email", "websocket"}, cfg.AlertChannels["critical"])
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CPU_THRESHOLD", "70.5")
	t.Setenv("SYSTEM_MONITOR_INTERVAL", "10s")
	t.Setenv("ALERT_RETENTION_DAYS", "30")
	t.Setenv("EMAIL_TO", "oncall@example.com, ops@example.com")
	t.Setenv("WEBSOCKET_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 70.5, cfg.CPUThreshold)
	assert.Equal(t, 10*time.Second, cfg.SystemInterval)
	assert.Equal(t, 30, cfg.AlertRetentionDays)
	assert.Equal(t, []string{"oncall@example.com", "ops@example.com"}, cfg.EmailTo)
	assert.False(t, cfg.WebSocketEnabled)
}

func TestLoadInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("SYSTEM_MONITOR_INTERVAL", "soon")
	t.Setenv("MEMORY_THRESHOLD", "very high")

	cfg := Load()

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.SystemInterval)
	assert.Equal(t, 85.0, cfg.MemoryThreshold)
}

func TestParseChannelMap(t *testing.T) {
	parsed := parseChannelMap("low=websocket;high=email,websocket;=email;bad")
	require.Len(t, parsed, 2)
	assert.Equal(t, []string{"websocket"}, parsed["low"])
	assert.Equal(t, []string{"email", "websocket"}, parsed["high"])
}

func TestParseTargetMap(t *testing.T) {
	t.Setenv("PROBE_TARGETS", "database=http://db:5432/health;api=http://api/health")
	cfg := Load()
	require.Len(t, cfg.ProbeTargets, 2)
	assert.Equal(t, "http://db:5432/health", cfg.ProbeTargets["database"])
	assert.Equal(t, "http://api/health", cfg.ProbeTargets["api"])
}
