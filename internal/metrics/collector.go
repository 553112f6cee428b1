// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It outputs text/plain in Prometheus exposition format without
// requiring the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters and gauges.
type MetricsCollector struct {
	counters  sync.Map // name -> *Counter
	gauges    sync.Map // name -> *Gauge
	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// GetCounter returns the counter with the given name, registering it on
// first use.
func (c *MetricsCollector) GetCounter(name, help string) *Counter {
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	counter := &Counter{name: name, help: help}
	actual, _ := c.counters.LoadOrStore(name, counter)
	return actual.(*Counter)
}

// GetGauge returns the gauge with the given name, registering it on first use.
func (c *MetricsCollector) GetGauge(name, help string) *Gauge {
	if v, ok := c.gauges.Load(name); ok {
		return v.(*Gauge)
	}
	gauge := &Gauge{name: name, help: help}
	actual, _ := c.gauges.LoadOrStore(name, gauge)
	return actual.(*Gauge)
}

// Export renders all metrics in Prometheus exposition format.
func (c *MetricsCollector) Export() string {
	var sb strings.Builder

	var counters []*Counter
	c.counters.Range(func(_, v any) bool {
		counters = append(counters, v.(*Counter))
		return true
	})
	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })
	for _, counter := range counters {
		fmt.Fprintf(&sb, "# HELP %s %s\n", counter.name, counter.help)
		fmt.Fprintf(&sb, "# TYPE %s counter\n", counter.name)
		fmt.Fprintf(&sb, "%s %d\n", counter.name, counter.Value())
	}

	var gauges []*Gauge
	c.gauges.Range(func(_, v any) bool {
		gauges = append(gauges, v.(*Gauge))
		return true
	})
	sort.Slice(gauges, func(i, j int) bool { return gauges[i].name < gauges[j].name })
	for _, gauge := range gauges {
		fmt.Fprintf(&sb, "# HELP %s %s\n", gauge.name, gauge.help)
		fmt.Fprintf(&sb, "# TYPE %s gauge\n", gauge.name)
		fmt.Fprintf(&sb, "%s %d\n", gauge.name, gauge.Value())
	}

	fmt.Fprintf(&sb, "# HELP jinoca_uptime_seconds Process uptime in seconds\n")
	fmt.Fprintf(&sb, "# TYPE jinoca_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "jinoca_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	return sb.String()
}

// Handler serves the exposition endpoint.
func (c *MetricsCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Export())
	})
}
