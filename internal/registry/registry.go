// Package registry owns the typed metric instruments published by crankprom.
//
// A [Registry] wraps a dedicated prometheus.Registry. Each metric is created once with a
// fixed, ordered label schema and is never removed. Updates go through a [View], a handle
// bound to one concrete label assignment, which enforces the operation that matches the
// metric's kind:
//
//	reg := registry.New()
//	_, err := reg.Create(registry.Definition{
//		Name:   "bzt_test_success_request",
//		Help:   "Provide BlazeMeter test success request count",
//		Kind:   registry.KindCounter,
//		Labels: []string{"test_label", "response_code"},
//	})
//	view, err := reg.InstrumentFor("bzt_test_success_request", map[string]string{
//		"test_label": "login", "response_code": "200",
//	})
//	err = view.Increment(10)
//
// Creation is append-only and guarded by a read/write lock. Instrument updates rely on the
// concurrency safety of the underlying prometheus collectors, so scrapes never wait on
// writers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Kind is the semantic type of a metric.
type Kind int

const (
	KindCounter Kind = iota + 1
	KindGauge
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Definition describes one metric to create.
type Definition struct {
	Name    string
	Help    string
	Kind    Kind
	Labels  []string  // ordered label schema
	Buckets []float64 // histogram bucket upper bounds; prometheus.DefBuckets when empty
}

// Registry holds every created metric, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	prom    *prometheus.Registry
	metrics map[string]*Metric
}

// Option configures a Registry.
type Option func(*Registry)

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(r *Registry) {
		r.prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		prom:    prometheus.NewRegistry(),
		metrics: make(map[string]*Metric),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gatherer exposes the registry's current state for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Create registers a metric. It fails with *DuplicateMetricError when the name is taken.
func (r *Registry) Create(def Definition) (*Metric, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.metrics[def.Name]; exists {
		return nil, &DuplicateMetricError{Name: def.Name}
	}

	m := newMetric(def)
	if err := r.prom.Register(m.collector()); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil, &DuplicateMetricError{Name: def.Name}
		}
		return nil, fmt.Errorf("register %s: %w", def.Name, err)
	}
	r.metrics[def.Name] = m
	return m, nil
}

// Metric returns the metric registered under name.
func (r *Registry) Metric(name string) (*Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Names returns all registered metric names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstrumentFor returns the view of metric name bound to labels.
func (r *Registry) InstrumentFor(name string, labels map[string]string) (*View, error) {
	m, ok := r.Metric(name)
	if !ok {
		return nil, &UnknownMetricError{Name: name}
	}
	return m.With(labels)
}

func validateDefinition(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return errors.New("metric name is required")
	}
	switch def.Kind {
	case KindCounter, KindGauge, KindHistogram:
	default:
		return fmt.Errorf("metric %q: unsupported kind %s", def.Name, def.Kind)
	}
	seen := make(map[string]struct{}, len(def.Labels))
	for _, label := range def.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("metric %q: empty label name", def.Name)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("metric %q: duplicate label %q", def.Name, label)
		}
		seen[label] = struct{}{}
	}
	for i := 1; i < len(def.Buckets); i++ {
		if def.Buckets[i] <= def.Buckets[i-1] {
			return fmt.Errorf("metric %q: buckets must be strictly increasing", def.Name)
		}
	}
	return nil
}
