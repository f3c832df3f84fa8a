// Package alerts implements the central alert registry: rule catalog,
// cooldown suppression, alert lifecycle, severity-based notification routing,
// and the retention sweep for resolved alerts.
package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openhms/vitalcore/internal/metrics"
)

// Type classifies the origin of an alert.
type Type string

const (
	TypeSystem   Type = "system"
	TypePatient  Type = "patient"
	TypeService  Type = "service"
	TypeSecurity Type = "security"
)

// Severity is the ordinal classification driving escalation and routing.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a persisted record of a threshold breach or detected condition.
type Alert struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source"`
	Data       map[string]any `json:"data,omitempty"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy string         `json:"resolvedBy,omitempty"`
}

// Clone returns a copy of the alert safe to hand to other goroutines.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	clone := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		clone.ResolvedAt = &t
	}
	if a.Data != nil {
		data := make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			data[k] = v
		}
		clone.Data = data
	}
	return &clone
}

// Rule is a catalog entry used to look up cooldowns and default thresholds.
// Rules are matched to alerts by (type, severity), not by id.
type Rule struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      Type          `json:"type"`
	Severity  Severity      `json:"severity"`
	Condition string        `json:"condition"`
	Threshold float64       `json:"threshold,omitempty"`
	Enabled   bool          `json:"enabled"`
	Cooldown  time.Duration `json:"cooldown,omitempty"`
}

// Notifier delivers alert notifications. Implemented by the notifications
// package; failures are best-effort and never affect alert persistence.
type Notifier interface {
	SendEmail(subject, body string) error
	SendWebSocketMessage(channel string, payload any) error
}

// Filter narrows GetAlerts results.
type Filter struct {
	Type     Type
	Severity Severity
	Resolved *bool
	Since    time.Time
	Limit    int
}

// Stats summarizes the alert registry.
type Stats struct {
	Total      int              `json:"total"`
	Unresolved int              `json:"unresolved"`
	Resolved   int              `json:"resolved"`
	BySeverity map[Severity]int `json:"bySeverity"`
	ByType     map[Type]int     `json:"byType"`
}

// EngineConfig holds engine tunables.
type EngineConfig struct {
	// Retention is how long resolved alerts are kept before the sweep
	// removes them.
	Retention time.Duration
	// SweepInterval is the cadence of the retention sweep.
	SweepInterval time.Duration
	// Channels maps severity to an ordered list of notification channels
	// ("email", "websocket").
	Channels map[Severity][]string
}

// DefaultEngineConfig returns the default retention and routing settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Retention:     90 * 24 * time.Hour,
		SweepInterval: time.Hour,
		Channels: map[Severity][]string{
			SeverityLow:      {"websocket"},
			SeverityMedium:   {"email", "websocket"},
			SeverityHigh:     {"email", "websocket"},
			SeverityCritical: {"email", "websocket"},
		},
	}
}

// Engine is the central alert registry.
type Engine struct {
	mu             sync.RWMutex
	config         EngineConfig
	alerts         map[string]*Alert
	rules          map[string]Rule
	lastAlertTimes map[string]time.Time
	notifier       Notifier

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool

	now func() time.Time
}

// NewEngine creates an alert engine with the default rule catalog seeded.
// The notifier may be nil; alerts are then stored without any delivery.
func NewEngine(config EngineConfig, notifier Notifier) *Engine {
	if config.Retention <= 0 {
		config.Retention = 90 * 24 * time.Hour
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Hour
	}
	if config.Channels == nil {
		config.Channels = DefaultEngineConfig().Channels
	}

	e := &Engine{
		config:         config,
		alerts:         make(map[string]*Alert),
		rules:          make(map[string]Rule),
		lastAlertTimes: make(map[string]time.Time),
		notifier:       notifier,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		now:            time.Now,
	}

	for _, rule := range defaultRules() {
		e.rules[rule.ID] = rule
	}

	return e
}

func defaultRules() []Rule {
	return []Rule{
		{
			ID:        "high-cpu",
			Name:      "High CPU usage",
			Type:      TypeSystem,
			Severity:  SeverityHigh,
			Condition: "cpu_usage > threshold",
			Threshold: 80,
			Enabled:   true,
			Cooldown:  5 * time.Minute,
		},
		{
			ID:        "high-memory",
			Name:      "High memory usage",
			Type:      TypeSystem,
			Severity:  SeverityMedium,
			Condition: "memory_usage > threshold",
			Threshold: 85,
			Enabled:   true,
			Cooldown:  5 * time.Minute,
		},
		{
			ID:        "critical-resource",
			Name:      "Critical resource usage",
			Type:      TypeSystem,
			Severity:  SeverityCritical,
			Condition: "usage > critical threshold",
			Enabled:   true,
			Cooldown:  2 * time.Minute,
		},
		{
			ID:        "service-down",
			Name:      "Dependent service unavailable",
			Type:      TypeService,
			Severity:  SeverityCritical,
			Condition: "health probe failed",
			Enabled:   true,
			Cooldown:  time.Minute,
		},
		{
			ID:        "patient-critical",
			Name:      "Critical patient vital signs",
			Type:      TypePatient,
			Severity:  SeverityCritical,
			Condition: "vital signs outside critical range",
			Enabled:   true,
			Cooldown:  2 * time.Minute,
		},
		{
			ID:        "patient-warning",
			Name:      "Abnormal patient vital signs",
			Type:      TypePatient,
			Severity:  SeverityHigh,
			Condition: "vital signs outside normal range",
			Enabled:   true,
			Cooldown:  5 * time.Minute,
		},
	}
}

// Start launches the retention sweep. A second call logs and no-ops.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		log.Info().Msg("Alert engine already started")
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.sweepLoop()
	log.Info().
		Dur("retention", e.config.Retention).
		Dur("sweepInterval", e.config.SweepInterval).
		Msg("Alert engine started")
}

// Stop cancels the retention sweep. Safe to call when not running.
func (e *Engine) Stop() {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	if started {
		<-e.doneCh
	}
	log.Info().Msg("Alert engine stopped")
}

func (e *Engine) sweepLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweepResolved()
		}
	}
}

// SendAlert records a new alert and dispatches notifications asynchronously.
// When the matching rule's cooldown suppresses the alert, an empty id is
// returned and nothing is stored.
func (e *Engine) SendAlert(alertType Type, severity Severity, message, source string, data map[string]any) string {
	now := e.now()
	key := throttleKey(alertType, severity, source)

	e.mu.Lock()

	// Cooldown lookup matches by (type, severity) only while the throttle
	// key includes the source. This coupling is intentional: a rule's
	// cooldown is discovered per severity class but enforced per source.
	if rule, ok := e.findRuleLocked(alertType, severity); ok && rule.Cooldown > 0 {
		if last, seen := e.lastAlertTimes[key]; seen && now.Sub(last) < rule.Cooldown {
			e.mu.Unlock()
			metrics.RecordAlertSuppressed("cooldown")
			log.Debug().
				Str("key", key).
				Dur("cooldown", rule.Cooldown).
				Msg("Alert suppressed by cooldown")
			return ""
		}
	}

	alert := &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: now,
		Source:    source,
		Data:      data,
	}

	e.alerts[alert.ID] = alert
	e.lastAlertTimes[key] = now
	notifier := e.notifier
	channels := e.channelsForLocked(severity)
	e.mu.Unlock()

	metrics.RecordAlertFired(string(severity), string(alertType))
	log.Info().
		Str("id", alert.ID).
		Str("type", string(alertType)).
		Str("severity", string(severity)).
		Str("source", source).
		Msg(message)

	if notifier != nil {
		go e.notify(alert.Clone(), channels, notifier)
	}

	return alert.ID
}

func throttleKey(alertType Type, severity Severity, source string) string {
	return string(alertType) + "|" + string(severity) + "|" + source
}

// findRuleLocked returns the first enabled rule matching (type, severity).
func (e *Engine) findRuleLocked(alertType Type, severity Severity) (Rule, bool) {
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rule := e.rules[id]
		if rule.Enabled && rule.Type == alertType && rule.Severity == severity {
			return rule, true
		}
	}
	return Rule{}, false
}

func (e *Engine) channelsForLocked(severity Severity) []string {
	channels := e.config.Channels[severity]
	out := make([]string, len(channels))
	copy(out, channels)
	return out
}

// notify attempts each channel independently. Failures are logged and
// recorded, never surfaced to the SendAlert caller.
func (e *Engine) notify(alert *Alert, channels []string, notifier Notifier) {
	for _, channel := range channels {
		var err error
		switch channel {
		case "email":
			subject := fmt.Sprintf("[%s] %s alert from %s", alert.Severity, alert.Type, alert.Source)
			err = notifier.SendEmail(subject, alert.Message)
		case "websocket":
			err = notifier.SendWebSocketMessage("alerts", alert)
		default:
			log.Warn().Str("channel", channel).Msg("Unknown notification channel")
			continue
		}

		if err != nil {
			metrics.RecordNotificationFailure(channel)
			log.Error().
				Err(err).
				Str("channel", channel).
				Str("alert", alert.ID).
				Msg("Failed to deliver alert notification")
		}
	}
}

// ResolveAlert marks an alert resolved. It returns false when the alert does
// not exist or is already resolved; resolution is terminal.
func (e *Engine) ResolveAlert(id, resolvedBy string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.alerts[id]
	if !ok || alert.Resolved {
		return false
	}

	now := e.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = resolvedBy

	metrics.RecordAlertResolved(string(alert.Severity), string(alert.Type))
	log.Info().
		Str("id", id).
		Str("resolvedBy", resolvedBy).
		Msg("Alert resolved")
	return true
}

// GetAlert returns a copy of the alert with the given id.
func (e *Engine) GetAlert(id string) (Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alert, ok := e.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return *alert.Clone(), true
}

// GetAlerts returns alerts matching the filter, newest first.
func (e *Engine) GetAlerts(filter Filter) []Alert {
	e.mu.RLock()
	out := make([]Alert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		if filter.Type != "" && alert.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.Resolved != nil && alert.Resolved != *filter.Resolved {
			continue
		}
		if !filter.Since.IsZero() && alert.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, *alert.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// GetAlertStats returns totals partitioned by severity and type.
func (e *Engine) GetAlertStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{
		BySeverity: make(map[Severity]int),
		ByType:     make(map[Type]int),
	}
	for _, alert := range e.alerts {
		stats.Total++
		if alert.Resolved {
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
		stats.BySeverity[alert.Severity]++
		stats.ByType[alert.Type]++
	}
	return stats
}

// AddRule registers or replaces a rule in the catalog.
func (e *Engine) AddRule(rule Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.ID] = rule
	log.Info().Str("rule", rule.ID).Msg("Alert rule added")
	return nil
}

// RemoveRule deletes a rule from the catalog.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	log.Info().Str("rule", id).Msg("Alert rule removed")
	return true
}

// GetRules returns the rule catalog sorted by id.
func (e *Engine) GetRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sweepResolved removes resolved alerts older than the retention window.
// Unresolved alerts are never swept regardless of age.
func (e *Engine) sweepResolved() {
	cutoff := e.now().Add(-e.config.Retention)

	e.mu.Lock()
	removed := 0
	for id, alert := range e.alerts {
		if alert.Resolved && alert.Timestamp.Before(cutoff) {
			delete(e.alerts, id)
			removed++
		}
	}
	e.mu.Unlock()

	if removed > 0 {
		metrics.RecordAlertsSwept(removed)
		log.Info().
			Int("removed", removed).
			Time("cutoff", cutoff).
			Msg("Alert retention sweep completed")
	}
}
