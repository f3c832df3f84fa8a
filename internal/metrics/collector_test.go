package metrics

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBoundedRetention(t *testing.T) {
	c := NewCollector(5)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 8; i++ {
		c.Record("cpu", float64(i), base.Add(time.Duration(i)*time.Second), nil)
	}

	points := c.Metrics("cpu", 0)
	require.Len(t, points, 5)
	// The 3 oldest points (values 0..2) were evicted.
	assert.Equal(t, 3.0, points[0].Value)
	assert.Equal(t, 7.0, points[len(points)-1].Value)
}

func TestMetricsLimit(t *testing.T) {
	c := NewCollector(100)
	for i := 0; i < 10; i++ {
		c.Record("mem", float64(i), time.Now(), nil)
	}

	points := c.Metrics("mem", 3)
	require.Len(t, points, 3)
	assert.Equal(t, 9.0, points[2].Value)
}

func TestMetricsUnknownName(t *testing.T) {
	c := NewCollector(10)
	assert.Empty(t, c.Metrics("missing", 0))

	_, ok := c.Latest("missing")
	assert.False(t, ok)

	assert.Empty(t, c.MetricsByTimeRange("missing", time.Now().Add(-time.Hour), time.Now()))
}

func TestRecordCounterRunningTotal(t *testing.T) {
	c := NewCollector(10)

	c.RecordCounter("requests_total", 1, nil)
	c.RecordCounter("requests_total", 1, nil)
	c.RecordCounter("requests_total", 3, nil)

	latest, ok := c.Latest("requests_total")
	require.True(t, ok)
	assert.Equal(t, 5.0, latest.Value)
}

func TestRecordHistogram(t *testing.T) {
	c := NewCollector(100)

	c.RecordHistogram("latency", 0.3, []float64{0.1, 0.5, 1}, nil)
	c.RecordHistogram("latency", 0.05, []float64{0.1, 0.5, 1}, nil)

	sum := c.Metrics("latency_sum", 0)
	require.Len(t, sum, 2)
	assert.Equal(t, 0.3, sum[0].Value)
	assert.Equal(t, 0.05, sum[1].Value)

	count, ok := c.Latest("latency_count")
	require.True(t, ok)
	assert.Equal(t, 2.0, count.Value)

	// First observation incremented buckets 0.5 and 1, second all three.
	bucket, ok := c.Latest("latency_bucket")
	require.True(t, ok)
	assert.Equal(t, 5.0, bucket.Value)
	assert.Equal(t, "0.1", bucket.Labels["le"])
}

func TestMetricsByTimeRange(t *testing.T) {
	c := NewCollector(100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		c.Record("disk", float64(i), base.Add(time.Duration(i)*time.Minute), nil)
	}

	points := c.MetricsByTimeRange("disk", base.Add(2*time.Minute), base.Add(5*time.Minute))
	require.Len(t, points, 4)
	assert.Equal(t, 2.0, points[0].Value)
	assert.Equal(t, 5.0, points[3].Value)
}

func TestClearOldMetrics(t *testing.T) {
	c := NewCollector(100)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		c.Record("net", float64(i), base.Add(time.Duration(i)*time.Minute), nil)
	}

	removed := c.ClearOldMetrics(base.Add(2 * time.Minute))
	assert.Equal(t, 3, removed)

	points := c.Metrics("net", 0)
	require.Len(t, points, 3)
	assert.Equal(t, 3.0, points[0].Value)

	// Clearing everything drops the series entirely.
	removed = c.ClearOldMetrics(time.Now())
	assert.Equal(t, 3, removed)
	assert.Empty(t, c.Names())
}

func TestPrometheusMetricsGaugeFormat(t *testing.T) {
	c := NewCollector(10)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Record("system_cpu_usage_percent", 42, ts, nil)

	out := c.PrometheusMetrics()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "# HELP system_cpu_usage_percent system_cpu_usage_percent", lines[0])
	assert.Equal(t, "# TYPE system_cpu_usage_percent gauge", lines[1])
	assert.Equal(t, fmt.Sprintf("system_cpu_usage_percent 42 %d", ts.UnixMilli()), lines[2])
}

func TestPrometheusMetricsTypeInference(t *testing.T) {
	c := NewCollector(10)
	c.Record("requests_total", 7, time.Now(), nil)
	c.Record("latency_count", 3, time.Now(), nil)
	c.Record("latency_bucket", 2, time.Now(), map[string]string{"le": "0.5"})
	c.Record("temperature", 36.6, time.Now(), nil)

	out := c.PrometheusMetrics()
	assert.Contains(t, out, "# TYPE requests_total counter")
	assert.Contains(t, out, "# TYPE latency_count counter")
	assert.Contains(t, out, "# TYPE latency_bucket histogram")
	assert.Contains(t, out, "# TYPE temperature gauge")
	assert.Contains(t, out, `latency_bucket{le="0.5"} 2`)
}

func TestPrometheusMetricsEmpty(t *testing.T) {
	c := NewCollector(10)
	assert.Equal(t, "", c.PrometheusMetrics())
}
