// Package metrics provides in-memory time-series collection with bounded
// retention and Prometheus text exposition, plus optional SQLite persistence.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxPoints caps the number of points retained per metric name.
const DefaultMaxPoints = 10000

// Point is a single timestamped observation of a named metric.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Collector owns per-name metric series. All reads degrade gracefully to
// empty results; recording never fails.
type Collector struct {
	mu        sync.RWMutex
	series    map[string][]Point
	maxPoints int
	store     *Store // optional persistence sink, may be nil
}

// NewCollector creates a collector retaining at most maxPoints per series.
func NewCollector(maxPoints int) *Collector {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Collector{
		series:    make(map[string][]Point),
		maxPoints: maxPoints,
	}
}

// SetStore attaches a persistence sink. Every recorded point is additionally
// buffered to the store. Passing nil detaches it.
func (c *Collector) SetStore(store *Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// Record appends a point to the named series, evicting the oldest points when
// the series exceeds the configured cap.
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := Point{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    labels,
	}

	c.mu.Lock()
	points := append(c.series[name], point)
	if len(points) > c.maxPoints {
		points = points[len(points)-c.maxPoints:]
	}
	c.series[name] = points
	store := c.store
	c.mu.Unlock()

	if store != nil {
		store.Write(point)
	}
}

// RecordCounter records a monotonic running total: the latest value for the
// series (0 if absent) plus increment, materialized as a regular point.
func (c *Collector) RecordCounter(name string, increment float64, labels map[string]string) {
	latest := 0.0
	if point, ok := c.Latest(name); ok {
		latest = point.Value
	}
	c.Record(name, latest+increment, time.Now(), labels)
}

// RecordGauge records the current value of a gauge metric.
func (c *Collector) RecordGauge(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// RecordHistogram records a Prometheus-style cumulative histogram observation:
// a _sum point, a _count increment, and one _bucket increment for every bucket
// boundary that the value falls at or below.
func (c *Collector) RecordHistogram(name string, value float64, buckets []float64, labels map[string]string) {
	c.Record(name+"_sum", value, time.Now(), labels)
	c.RecordCounter(name+"_count", 1, labels)

	for _, bucket := range buckets {
		if value <= bucket {
			bucketLabels := make(map[string]string, len(labels)+1)
			for k, v := range labels {
				bucketLabels[k] = v
			}
			bucketLabels["le"] = strconv.FormatFloat(bucket, 'f', -1, 64)
			c.RecordCounter(name+"_bucket", 1, bucketLabels)
		}
	}
}

// Metrics returns up to limit most recent points for the named series,
// oldest first. limit <= 0 returns the full retained series.
func (c *Collector) Metrics(name string, limit int) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name]
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}

	out := make([]Point, len(points))
	copy(out, points)
	return out
}

// Latest returns the most recent point for the named series.
func (c *Collector) Latest(name string) (Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name]
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}

// MetricsByTimeRange returns points with start <= timestamp <= end.
func (c *Collector) MetricsByTimeRange(name string, start, end time.Time) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Point
	for _, point := range c.series[name] {
		if !point.Timestamp.Before(start) && !point.Timestamp.After(end) {
			out = append(out, point)
		}
	}
	return out
}

// Names returns all known metric names, sorted.
func (c *Collector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearOldMetrics drops points with timestamp at or before the cutoff from
// every series and reports how many points were removed.
func (c *Collector) ClearOldMetrics(olderThan time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for name, points := range c.series {
		idx := 0
		for idx < len(points) && !points[idx].Timestamp.After(olderThan) {
			idx++
		}
		if idx == 0 {
			continue
		}
		removed += idx
		if idx == len(points) {
			delete(c.series, name)
			continue
		}
		kept := make([]Point, len(points)-idx)
		copy(kept, points[idx:])
		c.series[name] = kept
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Time("olderThan", olderThan).Msg("Cleared old metric points")
	}
	return removed
}

// PrometheusMetrics renders the latest point of every known series in
// Prometheus text exposition format. The metric type is inferred from the
// name suffix: _count/_total are counters, _bucket is a histogram, everything
// else a gauge.
func (c *Collector) PrometheusMetrics() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		points := c.series[name]
		if len(points) == 0 {
			continue
		}
		latest := points[len(points)-1]

		fmt.Fprintf(&b, "# HELP %s %s\n", name, name)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, inferType(name))
		fmt.Fprintf(&b, "%s%s %s %d\n",
			name,
			formatLabels(latest.Labels),
			strconv.FormatFloat(latest.Value, 'f', -1, 64),
			latest.Timestamp.UnixMilli())
	}
	return b.String()
}

func inferType(name string) string {
	switch {
	case strings.HasSuffix(name, "_count"), strings.HasSuffix(name, "_total"):
		return "counter"
	case strings.HasSuffix(name, "_bucket"):
		return "histogram"
	default:
		return "gauge"
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
