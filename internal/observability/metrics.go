package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/notebook-backend/internal/platform/envutil"
)

// Metrics is a small in-process registry rendered in Prometheus text
// format. It covers the handful of series this service needs without
// pulling in a client library.
type Metrics struct {
	mu         sync.Mutex
	counters   map[string]*counter
	gauges     map[string]*gauge
	histograms map[string]*histogram
	enabled    bool
}

type counter struct {
	help   string
	values map[string]float64 // label-string -> value
}

type gauge struct {
	help   string
	values map[string]float64
}

type histogram struct {
	help    string
	buckets []float64
	counts  map[string][]uint64
	sums    map[string]float64
	totals  map[string]uint64
}

var (
	current *Metrics
	once    sync.Once
)

// Current returns the process-wide registry.
func Current() *Metrics {
	once.Do(func() {
		current = &Metrics{
			counters:   map[string]*counter{},
			gauges:     map[string]*gauge{},
			histograms: map[string]*histogram{},
			enabled:    envutil.Bool("METRICS_ENABLED", true),
		}
	})
	return current
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// IncCounter adds 1 to the named counter with the given label pairs.
func (m *Metrics) IncCounter(name, help string, labels ...string) {
	m.AddCounter(name, help, 1, labels...)
}

func (m *Metrics) AddCounter(name, help string, delta float64, labels ...string) {
	if !m.Enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &counter{help: help, values: map[string]float64{}}
		m.counters[name] = c
	}
	c.values[labelKey(labels)] += delta
}

func (m *Metrics) SetGauge(name, help string, v float64, labels ...string) {
	if !m.Enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gauges[name]
	if !ok {
		g = &gauge{help: help, values: map[string]float64{}}
		m.gauges[name] = g
	}
	g.values[labelKey(labels)] = v
}

var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ObserveSeconds records a latency observation.
func (m *Metrics) ObserveSeconds(name, help string, seconds float64, labels ...string) {
	if !m.Enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		h = &histogram{
			help:    help,
			buckets: defaultBuckets,
			counts:  map[string][]uint64{},
			sums:    map[string]float64{},
			totals:  map[string]uint64{},
		}
		m.histograms[name] = h
	}
	key := labelKey(labels)
	counts, ok := h.counts[key]
	if !ok {
		counts = make([]uint64, len(h.buckets))
		h.counts[key] = counts
	}
	for i, ub := range h.buckets {
		if seconds <= ub {
			counts[i]++
		}
	}
	h.sums[key] += seconds
	h.totals[key]++
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(m.Render()))
	})
}

func (m *Metrics) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder

	for _, name := range sortedKeys(m.counters) {
		c := m.counters[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", name, c.help, name)
		for _, key := range sortedKeys(c.values) {
			fmt.Fprintf(&b, "%s%s %g\n", name, key, c.values[key])
		}
	}
	for _, name := range sortedKeys(m.gauges) {
		g := m.gauges[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n", name, g.help, name)
		for _, key := range sortedKeys(g.values) {
			fmt.Fprintf(&b, "%s%s %g\n", name, key, g.values[key])
		}
	}
	for _, name := range sortedKeys(m.histograms) {
		h := m.histograms[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s histogram\n", name, h.help, name)
		for _, key := range sortedKeys(h.totals) {
			for i, ub := range h.buckets {
				fmt.Fprintf(&b, "%s_bucket%s %d\n", name, mergeLabel(key, "le", formatFloat(ub)), h.counts[key][i])
			}
			fmt.Fprintf(&b, "%s_bucket%s %d\n", name, mergeLabel(key, "le", "+Inf"), h.totals[key])
			fmt.Fprintf(&b, "%s_sum%s %g\n", name, key, h.sums[key])
			fmt.Fprintf(&b, "%s_count%s %d\n", name, key, h.totals[key])
		}
	}
	return b.String()
}

// labelKey renders "k1","v1","k2","v2" as `{k1="v1",k2="v2"}`.
func labelKey(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	var parts []string
	for i := 0; i+1 < len(labels); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", labels[i], labels[i+1]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func mergeLabel(key, name, value string) string {
	extra := fmt.Sprintf("%s=%q", name, value)
	if key == "" {
		return "{" + extra + "}"
	}
	return strings.TrimSuffix(key, "}") + "," + extra + "}"
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
