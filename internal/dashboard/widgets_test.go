package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWidgetRegistry(t *testing.T) {
	m, _, _ := newTestManager()

	widgets := m.GetWidgets()
	ids := make(map[string]WidgetType, len(widgets))
	for _, widget := range widgets {
		ids[widget.ID] = widget.Type
	}

	assert.Equal(t, WidgetMetric, ids["system-metrics"])
	assert.Equal(t, WidgetMetric, ids["patient-overview"])
	assert.Equal(t, WidgetChart, ids["cpu-history"])
	assert.Equal(t, WidgetStatus, ids["service-status"])
	assert.Equal(t, WidgetAlert, ids["alerts-summary"])
	assert.Equal(t, WidgetTable, ids["recent-alerts"])
}

func TestWidgetDataMatchesType(t *testing.T) {
	m, _, _ := newTestManager()
	m.tick(context.Background())

	for _, widget := range m.GetWidgets() {
		data := widget.Data
		switch widget.Type {
		case WidgetMetric:
			require.NotNil(t, data.Metric, widget.ID)
			assert.Nil(t, data.Status)
			assert.Nil(t, data.Alerts)
			assert.Nil(t, data.Table)
			assert.Nil(t, data.Chart)
			assert.NotEmpty(t, data.Metric.Cards)
		case WidgetStatus:
			require.NotNil(t, data.Status, widget.ID)
			assert.Contains(t, data.Status.Services, "lab-api")
		case WidgetAlert:
			require.NotNil(t, data.Alerts, widget.ID)
			assert.Equal(t, 2, data.Alerts.Unresolved)
			assert.Equal(t, 2, data.Alerts.BySeverity["high"])
		case WidgetTable:
			require.NotNil(t, data.Table, widget.ID)
			require.Len(t, data.Table.Rows, 1)
			assert.Contains(t, data.Table.Rows[0], "system-monitor")
		case WidgetChart:
			require.NotNil(t, data.Chart, widget.ID)
			require.Len(t, data.Chart.Series, 1)
			assert.Equal(t, "system_cpu_usage_percent", data.Chart.Series[0].Name)
			assert.Len(t, data.Chart.Series[0].Points, 3)
		}
	}
}

func TestAddWidgetValidation(t *testing.T) {
	m, _, _ := newTestManager()

	assert.Error(t, m.AddWidget(Widget{Type: WidgetMetric}))
	assert.Error(t, m.AddWidget(Widget{ID: "x", Type: WidgetType("gauge")}))

	err := m.AddWidget(Widget{
		ID:              "mem-history",
		Type:            WidgetChart,
		Title:           "Memory Usage",
		Config:          map[string]any{"metric": "system_memory_usage_percent", "points": 30},
		RefreshInterval: 15 * time.Second,
	})
	require.NoError(t, err)

	widget, ok := m.GetWidget("mem-history")
	require.True(t, ok)
	assert.Equal(t, "Memory Usage", widget.Title)

	m.tick(context.Background())
	widget, ok = m.GetWidget("mem-history")
	require.True(t, ok)
	require.NotNil(t, widget.Data.Chart)
	assert.Equal(t, "system_memory_usage_percent", widget.Data.Chart.Series[0].Name)
}

func TestRemoveWidget(t *testing.T) {
	m, _, _ := newTestManager()

	assert.True(t, m.RemoveWidget("recent-alerts"))
	assert.False(t, m.RemoveWidget("recent-alerts"))

	_, ok := m.GetWidget("recent-alerts")
	assert.False(t, ok)
}

func TestUpdateWidget(t *testing.T) {
	m, _, _ := newTestManager()

	widget, ok := m.GetWidget("cpu-history")
	require.True(t, ok)
	widget.Title = "CPU Load"

	require.NoError(t, m.UpdateWidget(widget))
	updated, ok := m.GetWidget("cpu-history")
	require.True(t, ok)
	assert.Equal(t, "CPU Load", updated.Title)

	assert.Error(t, m.UpdateWidget(Widget{ID: "missing", Type: WidgetMetric}))
}

func TestDashboardConfigLayout(t *testing.T) {
	m, _, _ := newTestManager()

	config := m.GetDashboardConfig()
	assert.Len(t, config.Widgets, 6)
	assert.Equal(t, 12, config.Layout.Columns)
	require.Len(t, config.Layout.Rows, 3)
	assert.Contains(t, config.Layout.Rows[0].Widgets, "system-metrics")
	assert.Equal(t, int64(15000), config.Settings["refreshInterval"])
}
