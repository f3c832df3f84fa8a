package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alert lifecycle metrics
	AlertsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vitalcore_alerts_active",
			Help: "Number of currently unresolved alerts by severity and type",
		},
		[]string{"severity", "type"},
	)

	AlertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalcore_alerts_fired_total",
			Help: "Total number of alerts fired by severity and type",
		},
		[]string{"severity", "type"},
	)

	AlertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalcore_alerts_resolved_total",
			Help: "Total number of alerts resolved by type",
		},
		[]string{"type"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalcore_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by reason",
		},
		[]string{"reason"}, // cooldown, disabled_rule
	)

	NotificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalcore_notification_failures_total",
			Help: "Total number of failed notification deliveries by channel",
		},
		[]string{"channel"},
	)

	AlertsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalcore_alerts_swept_total",
			Help: "Total number of resolved alerts removed by the retention sweep",
		},
	)
)

// RecordAlertFired records a newly fired alert.
func RecordAlertFired(severity, alertType string) {
	AlertsFiredTotal.WithLabelValues(severity, alertType).Inc()
	AlertsActive.WithLabelValues(severity, alertType).Inc()
}

// RecordAlertResolved records a resolved alert.
func RecordAlertResolved(severity, alertType string) {
	AlertsResolvedTotal.WithLabelValues(alertType).Inc()
	AlertsActive.WithLabelValues(severity, alertType).Dec()
}

// RecordAlertSuppressed records a suppressed alert.
func RecordAlertSuppressed(reason string) {
	AlertsSuppressedTotal.WithLabelValues(reason).Inc()
}

// RecordNotificationFailure records a failed delivery attempt on a channel.
func RecordNotificationFailure(channel string) {
	NotificationFailuresTotal.WithLabelValues(channel).Inc()
}

// RecordAlertsSwept records alerts removed by the retention sweep.
func RecordAlertsSwept(count int) {
	AlertsSweptTotal.Add(float64(count))
}
