// Package config loads environment-sourced configuration for the monitoring core.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all tunables for the monitoring core.
type Config struct {
	// Server settings
	Host        string
	Port        int
	MetricsPort int
	DataDir     string
	PublicURL   string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Polling intervals
	SystemInterval    time.Duration
	PatientInterval   time.Duration
	DashboardInterval time.Duration

	// Resource thresholds (percent, except response time)
	CPUThreshold          float64
	MemoryThreshold       float64
	DiskThreshold         float64
	ResponseTimeThreshold time.Duration

	// Retention
	MetricsMaxPoints   int
	MetricsMaxAge      time.Duration
	AlertRetentionDays int

	// Alert notification channels keyed by severity
	// (e.g. "medium" -> ["email", "websocket"]).
	AlertChannels map[string][]string

	// WebSocket settings
	WebSocketEnabled   bool
	WebSocketHeartbeat time.Duration

	// Email (SMTP) settings
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string
	EmailTo   []string

	// Health probe targets, name -> URL
	ProbeTargets map[string]string

	// Metrics persistence
	PersistMetrics bool
}

// DefaultChannels returns the default severity -> channel routing.
func DefaultChannels() map[string][]string {
	return map[string][]string{
		"low":      {"websocket"},
		"medium":   {"email", "websocket"},
		"high":     {"email", "websocket"},
		"critical": {"email", "websocket"},
	}
}

// Load builds a Config from defaults, an optional .env file, and environment overrides.
func Load() *Config {
	dataDir := "/var/lib/vitalcore"
	if dir := os.Getenv("VITALCORE_DATA_DIR"); dir != "" {
		dataDir = dir
	}

	// Load .env from the data dir if present, then the working directory.
	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		}
	}
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded configuration from .env in current directory")
	}

	cfg := &Config{
		Host:                  "0.0.0.0",
		Port:                  3000,
		MetricsPort:           9091,
		DataDir:               dataDir,
		LogLevel:              "info",
		LogFormat:             "auto",
		SystemInterval:        30 * time.Second,
		PatientInterval:       60 * time.Second,
		DashboardInterval:     15 * time.Second,
		CPUThreshold:          80,
		MemoryThreshold:       85,
		DiskThreshold:         90,
		ResponseTimeThreshold: 5 * time.Second,
		MetricsMaxPoints:      10000,
		MetricsMaxAge:         24 * time.Hour,
		AlertRetentionDays:    90,
		AlertChannels:         DefaultChannels(),
		WebSocketEnabled:      true,
		WebSocketHeartbeat:    30 * time.Second,
		SMTPPort:              587,
		ProbeTargets:          map[string]string{},
	}

	applyEnvOverrides(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.MetricsPort = p
		}
	}
	if url := os.Getenv("PUBLIC_URL"); url != "" {
		cfg.PublicURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	applyDuration("SYSTEM_MONITOR_INTERVAL", &cfg.SystemInterval)
	applyDuration("PATIENT_MONITOR_INTERVAL", &cfg.PatientInterval)
	applyDuration("DASHBOARD_INTERVAL", &cfg.DashboardInterval)
	applyDuration("METRICS_MAX_AGE", &cfg.MetricsMaxAge)
	applyDuration("RESPONSE_TIME_THRESHOLD", &cfg.ResponseTimeThreshold)
	applyDuration("WEBSOCKET_HEARTBEAT", &cfg.WebSocketHeartbeat)

	applyFloat("CPU_THRESHOLD", &cfg.CPUThreshold)
	applyFloat("MEMORY_THRESHOLD", &cfg.MemoryThreshold)
	applyFloat("DISK_THRESHOLD", &cfg.DiskThreshold)

	applyInt("METRICS_MAX_POINTS", &cfg.MetricsMaxPoints)
	applyInt("ALERT_RETENTION_DAYS", &cfg.AlertRetentionDays)
	applyInt("SMTP_PORT", &cfg.SMTPPort)

	applyBool("WEBSOCKET_ENABLED", &cfg.WebSocketEnabled)
	applyBool("PERSIST_METRICS", &cfg.PersistMetrics)

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}
	if user := os.Getenv("SMTP_USER"); user != "" {
		cfg.SMTPUser = user
	}
	if pass := os.Getenv("SMTP_PASS"); pass != "" {
		cfg.SMTPPass = pass
	}
	if from := os.Getenv("EMAIL_FROM"); from != "" {
		cfg.EmailFrom = from
	}
	if to := os.Getenv("EMAIL_TO"); to != "" {
		cfg.EmailTo = splitAndTrim(to, ",")
	}

	if channels := os.Getenv("ALERT_CHANNELS"); channels != "" {
		if parsed := parseChannelMap(channels); len(parsed) > 0 {
			cfg.AlertChannels = parsed
		}
	}
	if targets := os.Getenv("PROBE_TARGETS"); targets != "" {
		cfg.ProbeTargets = parseTargetMap(targets)
	}
}

func applyDuration(key string, dst *time.Duration) {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			*dst = d
		} else {
			log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration, keeping default")
		}
	}
}

func applyInt(key string, dst *int) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		} else {
			log.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer, keeping default")
		}
	}
}

func applyFloat(key string, dst *float64) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = v
		} else {
			log.Warn().Str("key", key).Str("value", raw).Msg("Invalid number, keeping default")
		}
	}
}

func applyBool(key string, dst *bool) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			*dst = v
		}
	}
}

// parseChannelMap parses "low=websocket;medium=email,websocket" into a routing map.
func parseChannelMap(raw string) map[string][]string {
	out := make(map[string][]string)
	for _, entry := range splitAndTrim(raw, ";") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		severity := strings.ToLower(strings.TrimSpace(parts[0]))
		channels := splitAndTrim(parts[1], ",")
		if severity != "" && len(channels) > 0 {
			out[severity] = channels
		}
	}
	return out
}

// parseTargetMap parses "database=http://db:5432/health;api=http://api/health".
func parseTargetMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, entry := range splitAndTrim(raw, ";") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		url := strings.TrimSpace(parts[1])
		if name != "" && url != "" {
			out[name] = url
		}
	}
	return out
}

func splitAndTrim(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
