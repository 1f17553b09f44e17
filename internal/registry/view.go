package registry

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric is a registered metric and its fixed label schema.
type Metric struct {
	def       Definition
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

func newMetric(def Definition) *Metric {
	def.Labels = append([]string(nil), def.Labels...)
	m := &Metric{def: def}
	switch def.Kind {
	case KindCounter:
		m.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: def.Name, Help: def.Help}, def.Labels)
	case KindGauge:
		m.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: def.Name, Help: def.Help}, def.Labels)
	case KindHistogram:
		buckets := def.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		m.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    def.Name,
			Help:    def.Help,
			Buckets: buckets,
		}, def.Labels)
	}
	return m
}

func (m *Metric) collector() prometheus.Collector {
	switch m.def.Kind {
	case KindCounter:
		return m.counter
	case KindGauge:
		return m.gauge
	default:
		return m.histogram
	}
}

func (m *Metric) Name() string { return m.def.Name }
func (m *Metric) Help() string { return m.def.Help }
func (m *Metric) Kind() Kind   { return m.def.Kind }

// Labels returns a copy of the metric's label schema.
func (m *Metric) Labels() []string {
	return append([]string(nil), m.def.Labels...)
}

// With binds the metric to a label assignment. The assignment must name exactly the
// schema's labels; otherwise *UnknownLabelSchemaError is returned and nothing is created.
func (m *Metric) With(labels map[string]string) (*View, error) {
	values, ok := m.labelValues(labels)
	if !ok {
		got := make([]string, 0, len(labels))
		for name := range labels {
			got = append(got, name)
		}
		sort.Strings(got)
		return nil, &UnknownLabelSchemaError{Metric: m.def.Name, Want: m.Labels(), Got: got}
	}

	v := &View{metric: m, values: values}
	var err error
	switch m.def.Kind {
	case KindCounter:
		v.counter, err = m.counter.GetMetricWithLabelValues(values...)
	case KindGauge:
		v.gauge, err = m.gauge.GetMetricWithLabelValues(values...)
	case KindHistogram:
		v.observer, err = m.histogram.GetMetricWithLabelValues(values...)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Check reports whether value is accepted by the metric's operation. It touches no
// series: counters reject NaN and negative deltas with *InvalidDeltaError, histograms
// reject NaN and negative observations and gauges reject NaN with *InvalidObservationError.
func (m *Metric) Check(value float64) error {
	switch m.def.Kind {
	case KindCounter:
		if math.IsNaN(value) || value < 0 {
			return &InvalidDeltaError{Metric: m.def.Name, Delta: value}
		}
	case KindHistogram:
		if math.IsNaN(value) || value < 0 {
			return &InvalidObservationError{Metric: m.def.Name, Value: value}
		}
	default:
		if math.IsNaN(value) {
			return &InvalidObservationError{Metric: m.def.Name, Value: value}
		}
	}
	return nil
}

func (m *Metric) labelValues(labels map[string]string) ([]string, bool) {
	if len(labels) != len(m.def.Labels) {
		return nil, false
	}
	values := make([]string, len(m.def.Labels))
	for i, name := range m.def.Labels {
		val, ok := labels[name]
		if !ok {
			return nil, false
		}
		values[i] = val
	}
	return values, true
}

// View records operations against one labeled series of a metric.
type View struct {
	metric   *Metric
	values   []string
	counter  prometheus.Counter
	gauge    prometheus.Gauge
	observer prometheus.Observer
}

// Metric returns the metric the view belongs to.
func (v *View) Metric() *Metric { return v.metric }

// LabelValues returns the bound label values in schema order.
func (v *View) LabelValues() []string {
	return append([]string(nil), v.values...)
}

// Observe records value into a histogram.
func (v *View) Observe(value float64) error {
	if v.metric.def.Kind != KindHistogram {
		return v.wrongOperation("observe")
	}
	if err := v.metric.Check(value); err != nil {
		return err
	}
	v.observer.Observe(value)
	return nil
}

// Increment adds delta to a counter. Negative deltas fail without mutating the counter.
func (v *View) Increment(delta float64) error {
	if v.metric.def.Kind != KindCounter {
		return v.wrongOperation("increment")
	}
	if err := v.metric.Check(delta); err != nil {
		return err
	}
	v.counter.Add(delta)
	return nil
}

// Set replaces a gauge's value.
func (v *View) Set(value float64) error {
	if v.metric.def.Kind != KindGauge {
		return v.wrongOperation("set")
	}
	if err := v.metric.Check(value); err != nil {
		return err
	}
	v.gauge.Set(value)
	return nil
}

func (v *View) wrongOperation(op string) error {
	return &WrongInstrumentOperationError{Metric: v.metric.def.Name, Kind: v.metric.def.Kind, Operation: op}
}
