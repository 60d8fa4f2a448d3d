// Package metrics exposes process-level counters for evaluation runs in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing value.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{name: name, help: help, labels: labels}
}

// Inc adds one.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.value.Add(delta)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge holds the last value set. NaN is a valid value.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64
}

// NewGauge creates a gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{name: name, help: help, labels: labels}
}

// Set stores v.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Add adds delta to the current value.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Value returns the current value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64

	mu     sync.Mutex
	counts []int64 // cumulative, last entry is +Inf
	sum    float64
	count  int64
}

// NewHistogram creates a histogram with the given upper bounds.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{
		name:    name,
		help:    help,
		buckets: b,
		counts:  make([]int64, len(b)+1),
	}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	idx := sort.SearchFloat64s(h.buckets, v)
	for i := idx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

// Snapshot returns cumulative bucket counts, the sum and the count.
func (h *Histogram) Snapshot() (counts []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.counts...), h.sum, h.count
}

// vec keeps one series per distinct label combination.
type vec[M any] struct {
	name       string
	help       string
	labelNames []string
	create     func(name, help string, labels map[string]string) M

	mu     sync.RWMutex
	series map[string]M
	labels map[string]map[string]string
}

func newVec[M any](name, help string, labelNames []string, create func(string, string, map[string]string) M) vec[M] {
	return vec[M]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		create:     create,
		series:     make(map[string]M),
		labels:     make(map[string]map[string]string),
	}
}

func (v *vec[M]) with(values ...string) M {
	if len(values) != len(v.labelNames) {
		panic(fmt.Sprintf("metric %s: expected %d label values, got %d", v.name, len(v.labelNames), len(values)))
	}
	key := strings.Join(values, "\xff")

	v.mu.RLock()
	m, ok := v.series[key]
	v.mu.RUnlock()
	if ok {
		return m
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if m, ok := v.series[key]; ok {
		return m
	}
	labels := make(map[string]string, len(values))
	for i, name := range v.labelNames {
		labels[name] = values[i]
	}
	m = v.create(v.name, v.help, labels)
	v.series[key] = m
	v.labels[key] = labels
	return m
}

// all returns the series ordered by label key.
func (v *vec[M]) all() []M {
	v.mu.RLock()
	defer v.mu.RUnlock()

	keys := make([]string, 0, len(v.series))
	for k := range v.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]M, len(keys))
	for i, k := range keys {
		out[i] = v.series[k]
	}
	return out
}

// CounterVec is a counter family keyed by label values.
type CounterVec struct{ vec[*Counter] }

// NewCounterVec creates a counter family.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return &CounterVec{newVec(name, help, labelNames, NewCounter)}
}

// WithLabels returns the counter for the given label values.
func (cv *CounterVec) WithLabels(values ...string) *Counter { return cv.with(values...) }

// GaugeVec is a gauge family keyed by label values.
type GaugeVec struct{ vec[*Gauge] }

// NewGaugeVec creates a gauge family.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	return &GaugeVec{newVec(name, help, labelNames, NewGauge)}
}

// WithLabels returns the gauge for the given label values.
func (gv *GaugeVec) WithLabels(values ...string) *Gauge { return gv.with(values...) }
