package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openhms/vitalcore/internal/alerts"
	"github.com/openhms/vitalcore/internal/api"
	"github.com/openhms/vitalcore/internal/config"
	"github.com/openhms/vitalcore/internal/dashboard"
	"github.com/openhms/vitalcore/internal/logging"
	"github.com/openhms/vitalcore/internal/metrics"
	"github.com/openhms/vitalcore/internal/notifications"
	"github.com/openhms/vitalcore/internal/patients"
	"github.com/openhms/vitalcore/internal/sysmon"
	"github.com/openhms/vitalcore/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "vitalcore",
	Short:   "VitalCore - hospital platform monitoring and alerting core",
	Long:    `VitalCore monitors host resources, clinical vital signs, and dependent services, and routes alerts to email and websocket channels`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("VitalCore %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup logs, reconfigured once config loads.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "vitalcore",
	})

	cfg := config.Load()

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "vitalcore",
	})

	log.Info().Msg("Starting VitalCore monitoring server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startMetricsServer(ctx, fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort))

	collector := metrics.NewCollector(cfg.MetricsMaxPoints)

	var store *metrics.Store
	if cfg.PersistMetrics {
		storeCfg := metrics.DefaultStoreConfig(cfg.DataDir)
		var err error
		store, err = metrics.NewStore(storeCfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open metrics store, continuing without persistence")
		} else {
			collector.SetStore(store)
			defer store.Close()
		}
	}

	var hub *websocket.Hub
	if cfg.WebSocketEnabled {
		hub = websocket.NewHub(cfg.WebSocketHeartbeat)
		go hub.Run()
		defer hub.Stop()
	}

	notifier := notifications.NewManager(notifications.EmailConfig{
		Enabled:  cfg.SMTPHost != "",
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
		To:       cfg.EmailTo,
	}, hub)

	engineCfg := alerts.DefaultEngineConfig()
	engineCfg.Retention = time.Duration(cfg.AlertRetentionDays) * 24 * time.Hour
	if channels := severityChannels(cfg.AlertChannels); len(channels) > 0 {
		engineCfg.Channels = channels
	}
	engine := alerts.NewEngine(engineCfg, notifier)
	engine.Start()
	defer engine.Stop()

	system := sysmon.NewMonitor(collector, engine, sysmon.Config{
		Interval: cfg.SystemInterval,
		Thresholds: sysmon.Thresholds{
			CPU:    cfg.CPUThreshold,
			Memory: cfg.MemoryThreshold,
			Disk:   cfg.DiskThreshold,
		},
		ProbeTargets: cfg.ProbeTargets,
		ProbeTimeout: cfg.ResponseTimeThreshold,
	})
	if store != nil {
		system.SetDatabase(store)
	}
	system.Start()
	defer system.Stop()

	patientMonitor := patients.NewMonitor(engine, cfg.PatientInterval)
	patientMonitor.Start()
	defer patientMonitor.Stop()

	var broadcaster dashboard.Broadcaster
	if hub != nil {
		broadcaster = hub
	}
	dashboardManager := dashboard.NewManager(system, patientMonitor, engine, collector, broadcaster, cfg.DashboardInterval)
	dashboardManager.Start()
	defer dashboardManager.Stop()

	router := api.NewRouter(api.Deps{
		Engine:    engine,
		Dashboard: dashboardManager,
		Patients:  patientMonitor,
		System:    system,
		Collector: collector,
		Hub:       hub,
		Version:   Version,
	})

	// ReadHeaderTimeout instead of ReadTimeout so the deadline does not
	// outlive websocket upgrades.
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down HTTP server cleanly")
	}
}

// severityChannels converts the string-keyed config map to the engine's
// severity-keyed routing table, dropping unknown severities.
func severityChannels(channels map[string][]string) map[alerts.Severity][]string {
	out := make(map[alerts.Severity][]string, len(channels))
	for severity, list := range channels {
		switch s := alerts.Severity(severity); s {
		case alerts.SeverityLow, alerts.SeverityMedium, alerts.SeverityHigh, alerts.SeverityCritical:
			out[s] = list
		default:
			log.Warn().Str("severity", severity).Msg("Ignoring channels for unknown severity")
		}
	}
	return out
}
