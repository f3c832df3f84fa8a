package alerts

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	emails   []string
	messages []any
	emailErr error
	wsErr    error
}

func (f *fakeNotifier) SendEmail(subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emailErr != nil {
		return f.emailErr
	}
	f.emails = append(f.emails, subject)
	return nil
}

func (f *fakeNotifier) SendWebSocketMessage(channel string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wsErr != nil {
		return f.wsErr
	}
	f.messages = append(f.messages, payload)
	return nil
}

func (f *fakeNotifier) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails), len(f.messages)
}

func newTestEngine() *Engine {
	return NewEngine(DefaultEngineConfig(), nil)
}

func TestSendAlertStoresAlert(t *testing.T) {
	e := newTestEngine()

	id := e.SendAlert(TypeSystem, SeverityHigh, "CPU usage at 85%", "system-monitor", map[string]any{"value": 85.0})
	require.NotEmpty(t, id)

	alert, ok := e.GetAlert(id)
	require.True(t, ok)
	assert.Equal(t, TypeSystem, alert.Type)
	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.Equal(t, "system-monitor", alert.Source)
	assert.False(t, alert.Resolved)
	assert.Equal(t, 85.0, alert.Data["value"])
}

func TestCooldownSuppression(t *testing.T) {
	e := newTestEngine()

	first := e.SendAlert(TypeSystem, SeverityHigh, "CPU usage at 85%", "system-monitor", nil)
	require.NotEmpty(t, first)

	// Same (type, severity, source) within the rule cooldown is suppressed
	// entirely: empty id, nothing stored.
	second := e.SendAlert(TypeSystem, SeverityHigh, "CPU usage at 88%", "system-monitor", nil)
	assert.Empty(t, second)
	assert.Equal(t, 1, e.GetAlertStats().Total)

	// A different source forms a different throttle key.
	third := e.SendAlert(TypeSystem, SeverityHigh, "CPU usage at 85%", "other-monitor", nil)
	assert.NotEmpty(t, third)
	assert.Equal(t, 2, e.GetAlertStats().Total)
}

func TestCooldownExpiry(t *testing.T) {
	e := newTestEngine()

	current := time.Now()
	e.now = func() time.Time { return current }

	require.NotEmpty(t, e.SendAlert(TypeSystem, SeverityHigh, "CPU usage high", "system-monitor", nil))
	assert.Empty(t, e.SendAlert(TypeSystem, SeverityHigh, "CPU usage high", "system-monitor", nil))

	current = current.Add(6 * time.Minute) // past the 5m high-cpu cooldown
	assert.NotEmpty(t, e.SendAlert(TypeSystem, SeverityHigh, "CPU usage high", "system-monitor", nil))
}

func TestNoMatchingRuleNeverSuppresses(t *testing.T) {
	e := newTestEngine()

	// No default rule exists for (security, low).
	first := e.SendAlert(TypeSecurity, SeverityLow, "odd login pattern", "auth", nil)
	second := e.SendAlert(TypeSecurity, SeverityLow, "odd login pattern", "auth", nil)
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
}

func TestDisabledRuleSkipsCooldown(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.AddRule(Rule{
		ID:       "high-cpu",
		Name:     "High CPU usage",
		Type:     TypeSystem,
		Severity: SeverityHigh,
		Enabled:  false,
		Cooldown: 5 * time.Minute,
	}))

	assert.NotEmpty(t, e.SendAlert(TypeSystem, SeverityHigh, "a", "system-monitor", nil))
	assert.NotEmpty(t, e.SendAlert(TypeSystem, SeverityHigh, "b", "system-monitor", nil))
}

func TestResolveAlertIdempotent(t *testing.T) {
	e := newTestEngine()

	id := e.SendAlert(TypePatient, SeverityCritical, "heart rate critical", "patient-monitor", nil)
	require.NotEmpty(t, id)

	assert.True(t, e.ResolveAlert(id, "dr-jones"))

	alert, ok := e.GetAlert(id)
	require.True(t, ok)
	assert.True(t, alert.Resolved)
	require.NotNil(t, alert.ResolvedAt)
	assert.Equal(t, "dr-jones", alert.ResolvedBy)

	// Second resolve reports failure, state unchanged.
	assert.False(t, e.ResolveAlert(id, "dr-smith"))
	alert, _ = e.GetAlert(id)
	assert.Equal(t, "dr-jones", alert.ResolvedBy)

	// Unknown id.
	assert.False(t, e.ResolveAlert("no-such-alert", ""))
}

func TestGetAlertsFiltering(t *testing.T) {
	e := newTestEngine()
	current := time.Now()
	e.now = func() time.Time { return current }

	sysID := e.SendAlert(TypeSystem, SeverityHigh, "cpu", "system-monitor", nil)
	current = current.Add(time.Minute)
	patID := e.SendAlert(TypePatient, SeverityCritical, "hr", "patient-monitor", nil)
	current = current.Add(time.Minute)
	svcID := e.SendAlert(TypeService, SeverityCritical, "db down", "system-monitor", nil)
	require.NotEmpty(t, sysID)
	require.NotEmpty(t, patID)
	require.NotEmpty(t, svcID)
	e.ResolveAlert(sysID, "ops")

	// Newest first.
	all := e.GetAlerts(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, svcID, all[0].ID)
	assert.Equal(t, sysID, all[2].ID)

	byType := e.GetAlerts(Filter{Type: TypePatient})
	require.Len(t, byType, 1)
	assert.Equal(t, patID, byType[0].ID)

	bySeverity := e.GetAlerts(Filter{Severity: SeverityCritical})
	assert.Len(t, bySeverity, 2)

	resolved := true
	assert.Len(t, e.GetAlerts(Filter{Resolved: &resolved}), 1)
	unresolved := false
	assert.Len(t, e.GetAlerts(Filter{Resolved: &unresolved}), 2)

	since := e.GetAlerts(Filter{Since: current.Add(-90 * time.Second)})
	assert.Len(t, since, 2)

	limited := e.GetAlerts(Filter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, svcID, limited[0].ID)
}

func TestGetAlertStats(t *testing.T) {
	e := newTestEngine()

	id := e.SendAlert(TypeSystem, SeverityHigh, "cpu", "system-monitor", nil)
	e.SendAlert(TypePatient, SeverityCritical, "hr", "patient-monitor", nil)
	e.SendAlert(TypePatient, SeverityHigh, "bp", "other", nil)
	e.ResolveAlert(id, "ops")

	stats := e.GetAlertStats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 2, stats.Unresolved)
	assert.Equal(t, 2, stats.BySeverity[SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[SeverityCritical])
	assert.Equal(t, 2, stats.ByType[TypePatient])
	assert.Equal(t, 1, stats.ByType[TypeSystem])
}

func TestRetentionSweep(t *testing.T) {
	e := newTestEngine()
	current := time.Now()
	e.now = func() time.Time { return current }

	oldResolved := e.SendAlert(TypeSystem, SeverityHigh, "old resolved", "a", nil)
	oldOpen := e.SendAlert(TypeSystem, SeverityHigh, "old unresolved", "b", nil)
	require.True(t, e.ResolveAlert(oldResolved, "ops"))

	current = current.Add(91 * 24 * time.Hour)
	recent := e.SendAlert(TypeSystem, SeverityHigh, "recent", "a", nil)
	require.True(t, e.ResolveAlert(recent, "ops"))

	e.sweepResolved()

	_, ok := e.GetAlert(oldResolved)
	assert.False(t, ok, "resolved alert past retention must be swept")
	_, ok = e.GetAlert(oldOpen)
	assert.True(t, ok, "unresolved alerts are never swept")
	_, ok = e.GetAlert(recent)
	assert.True(t, ok, "recent resolved alerts are kept")
}

func TestNotificationRouting(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewEngine(DefaultEngineConfig(), notifier)

	require.NotEmpty(t, e.SendAlert(TypeSystem, SeverityLow, "minor", "system-monitor", nil))
	require.Eventually(t, func() bool {
		emails, messages := notifier.counts()
		return emails == 0 && messages == 1
	}, time.Second, 10*time.Millisecond, "low severity routes to websocket only")

	require.NotEmpty(t, e.SendAlert(TypeSystem, SeverityCritical, "major", "system-monitor", nil))
	require.Eventually(t, func() bool {
		emails, messages := notifier.counts()
		return emails == 1 && messages == 2
	}, time.Second, 10*time.Millisecond, "critical severity routes to email and websocket")
}

func TestNotificationFailureDoesNotBlockOtherChannels(t *testing.T) {
	notifier := &fakeNotifier{emailErr: errors.New("smtp unreachable")}
	e := NewEngine(DefaultEngineConfig(), notifier)

	id := e.SendAlert(TypeSystem, SeverityCritical, "major", "system-monitor", nil)
	require.NotEmpty(t, id)

	// The websocket channel still delivers and the alert stays persisted.
	require.Eventually(t, func() bool {
		_, messages := notifier.counts()
		return messages == 1
	}, time.Second, 10*time.Millisecond)

	_, ok := e.GetAlert(id)
	assert.True(t, ok)
}

func TestRuleManagement(t *testing.T) {
	e := newTestEngine()

	seeded := e.GetRules()
	assert.NotEmpty(t, seeded)

	require.NoError(t, e.AddRule(Rule{
		ID:       "night-shift-security",
		Name:     "Security events overnight",
		Type:     TypeSecurity,
		Severity: SeverityMedium,
		Enabled:  true,
		Cooldown: time.Minute,
	}))
	assert.Len(t, e.GetRules(), len(seeded)+1)

	assert.Error(t, e.AddRule(Rule{Name: "missing id"}))

	assert.True(t, e.RemoveRule("night-shift-security"))
	assert.False(t, e.RemoveRule("night-shift-security"))
}

func TestStartStopIdempotent(t *testing.T) {
	e := newTestEngine()
	e.Start()
	e.Start() // logs and no-ops
	e.Stop()
	e.Stop() // safe when already stopped
}
