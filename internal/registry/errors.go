package registry

import (
	"fmt"
	"strings"
)

// DuplicateMetricError is returned by Create when the name is already registered.
type DuplicateMetricError struct {
	Name string
}

func (e *DuplicateMetricError) Error() string {
	return fmt.Sprintf("metric %q is already registered", e.Name)
}

// UnknownMetricError is returned when an instrument is requested for a name that was
// never created.
type UnknownMetricError struct {
	Name string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("metric %q is not registered", e.Name)
}

// UnknownLabelSchemaError is returned when a label assignment does not cover exactly the
// metric's declared label names.
type UnknownLabelSchemaError struct {
	Metric string
	Want   []string
	Got    []string
}

func (e *UnknownLabelSchemaError) Error() string {
	return fmt.Sprintf("metric %q: labels [%s] do not match schema [%s]",
		e.Metric, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// WrongInstrumentOperationError is returned when an operation does not belong to the
// metric's kind, for example Set on a counter.
type WrongInstrumentOperationError struct {
	Metric    string
	Kind      Kind
	Operation string
}

func (e *WrongInstrumentOperationError) Error() string {
	return fmt.Sprintf("metric %q: %s is not valid on a %s", e.Metric, e.Operation, e.Kind)
}

// InvalidDeltaError is returned when a counter increment is negative or not a number.
type InvalidDeltaError struct {
	Metric string
	Delta  float64
}

func (e *InvalidDeltaError) Error() string {
	return fmt.Sprintf("metric %q: counter delta %v must be >= 0", e.Metric, e.Delta)
}

// InvalidObservationError is returned when a histogram observation is negative or not a
// number, or a gauge is set to NaN.
type InvalidObservationError struct {
	Metric string
	Value  float64
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("metric %q: value %v is not a valid observation", e.Metric, e.Value)
}
