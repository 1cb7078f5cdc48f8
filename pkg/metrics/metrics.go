// Package metrics is a thin tagging layer over prometheus. Callers hold a
// Scope per subsystem and record counters, gauges and timings without
// touching collector registration.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Tags label a single observation. Tag keys are fixed per metric name
	// the first time it is observed; later observations must use the same
	// key set.
	Tags map[string]string

	// Scope prefixes every metric it records with its subsystem name.
	Scope struct {
		subsystem string
		registry  *prometheus.Registry

		mu         sync.Mutex
		counters   map[string]*prometheus.CounterVec
		gauges     map[string]*prometheus.GaugeVec
		histograms map[string]*prometheus.HistogramVec
	}
)

// NewScope returns a scope recording into registry. A nil registry gets a
// private one, which keeps tests and library use from fighting over the
// default registerer.
func NewScope(subsystem string, registry *prometheus.Registry) *Scope {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Scope{
		subsystem:  subsystem,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry for HTTP exposition.
func (s *Scope) Registry() *prometheus.Registry { return s.registry }

func (s *Scope) Increment(name string, tags Tags) {
	s.Count(name, 1, tags)
}

func (s *Scope) Count(name string, value float64, tags Tags) {
	keys, values := splitTags(tags)
	s.mu.Lock()
	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: s.subsystem,
			Name:      name,
		}, keys)
		s.registry.MustRegister(vec)
		s.counters[name] = vec
	}
	s.mu.Unlock()
	vec.WithLabelValues(values...).Add(value)
}

func (s *Scope) Gauge(name string, value float64, tags Tags) {
	keys, values := splitTags(tags)
	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: s.subsystem,
			Name:      name,
		}, keys)
		s.registry.MustRegister(vec)
		s.gauges[name] = vec
	}
	s.mu.Unlock()
	vec.WithLabelValues(values...).Set(value)
}

func (s *Scope) Timing(name string, d time.Duration, tags Tags) {
	keys, values := splitTags(tags)
	s.mu.Lock()
	vec, ok := s.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: s.subsystem,
			Name:      name,
			Buckets:   prometheus.DefBuckets,
		}, keys)
		s.registry.MustRegister(vec)
		s.histograms[name] = vec
	}
	s.mu.Unlock()
	vec.WithLabelValues(values...).Observe(d.Seconds())
}

// Time runs f and records its wall duration under name.
func (s *Scope) Time(name string, tags Tags, f func() error) error {
	start := time.Now()
	err := f()
	s.Timing(name, time.Since(start), tags)
	return err
}

// splitTags returns tag keys and values in a stable order so the same tag
// map always addresses the same label vector child.
func splitTags(tags Tags) (keys []string, values []string) {
	if len(tags) == 0 {
		return nil, nil
	}
	keys = make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values = make([]string, len(keys))
	for i, k := range keys {
		values[i] = tags[k]
	}
	return keys, values
}
