package reporter

import (
	"fmt"

	"github.com/torosent/crankprom/internal/registry"
	"github.com/torosent/crankprom/internal/sample"
)

type instrument struct {
	column instrumentColumn
	metric *registry.Metric
}

// Translator maps result sets onto the load-test instruments of a registry.
type Translator struct {
	instruments []instrument
}

// Unit is the outcome of translating one test label of one sample.
type Unit struct {
	TestLabel string
	Key       sample.LabelKey
	Err       error
}

// NewTranslator creates every load-test metric in reg. A name collision is returned as
// *registry.DuplicateMetricError.
func NewTranslator(reg *registry.Registry, prefix string, timeBuckets, byteBuckets []float64) (*Translator, error) {
	defs := Definitions(prefix, timeBuckets, byteBuckets)
	t := &Translator{instruments: make([]instrument, 0, len(defs))}
	for i, def := range defs {
		m, err := reg.Create(def)
		if err != nil {
			return nil, err
		}
		t.instruments = append(t.instruments, instrument{column: instrumentColumns[i], metric: m})
	}
	return t, nil
}

// Translate applies every non-empty test label of s. Labels are visited in the sample's
// order and each one yields a Unit.
func (t *Translator) Translate(s sample.AggregatedSample) []Unit {
	units := make([]Unit, 0, s.Len())
	for _, label := range s.Labels() {
		if label == "" {
			continue
		}
		key, err := t.TranslateLabel(label, s.Current[label])
		units = append(units, Unit{TestLabel: label, Key: key, Err: err})
	}
	return units
}

// TranslateLabel draws one response code from rs and records all of rs's fields under
// the same label key. The code is drawn even when a later step fails, so a second call
// on the same result set sees the next code. Every field is checked before any series is
// bound, so a failed unit leaves no series behind.
func (t *Translator) TranslateLabel(label string, rs *sample.ResultSet) (sample.LabelKey, error) {
	if rs == nil {
		return sample.LabelKey{}, &sample.EmptyResultCodeSetError{TestLabel: label}
	}
	code, ok := rs.RC.Next()
	if !ok {
		return sample.LabelKey{}, &sample.EmptyResultCodeSetError{TestLabel: label}
	}
	key := sample.LabelKey{TestLabel: label, ResponseCode: code}

	for _, inst := range t.instruments {
		if err := inst.metric.Check(inst.column.field(rs)); err != nil {
			return key, fmt.Errorf("%s: %w", inst.metric.Name(), err)
		}
	}

	labels := key.Labels()
	views := make([]*registry.View, len(t.instruments))
	for i, inst := range t.instruments {
		view, err := inst.metric.With(labels)
		if err != nil {
			return key, err
		}
		views[i] = view
	}

	for i, inst := range t.instruments {
		if err := apply(views[i], inst.column.kind, inst.column.field(rs)); err != nil {
			return key, fmt.Errorf("%s: %w", inst.metric.Name(), err)
		}
	}
	return key, nil
}

func apply(view *registry.View, kind registry.Kind, value float64) error {
	switch kind {
	case registry.KindHistogram:
		return view.Observe(value)
	case registry.KindGauge:
		return view.Set(value)
	default:
		return view.Increment(value)
	}
}
