// Package ingest feeds aggregated samples to the reporter from outside the process:
// an HTTP endpoint, a WebSocket stream, a followed JSONL file and a one-shot replay file.
// Every adapter decodes with [sample.DecodeBatch] and hands each sample to a [Sink].
package ingest

import (
	"github.com/torosent/crankprom/internal/registry"
	"github.com/torosent/crankprom/internal/sample"
)

// Sink accepts samples. *reporter.Reporter implements it.
type Sink interface {
	OnSample(s sample.AggregatedSample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s sample.AggregatedSample)

func (f SinkFunc) OnSample(s sample.AggregatedSample) { f(s) }

// Source names used as the "source" label of the ingestion counter.
const (
	SourceHTTP      = "http"
	SourceWebSocket = "websocket"
	SourceFile      = "file"
	SourceReplay    = "replay"
	SourceLoad      = "load"
)

// Meter counts accepted samples per source.
type Meter struct {
	metric *registry.Metric
}

// NewMeter registers crankprom_ingested_samples_total in reg.
func NewMeter(reg *registry.Registry) (*Meter, error) {
	m, err := reg.Create(registry.Definition{
		Name:   "crankprom_ingested_samples_total",
		Help:   "Samples handed to the reporter, by source",
		Kind:   registry.KindCounter,
		Labels: []string{"source"},
	})
	if err != nil {
		return nil, err
	}
	return &Meter{metric: m}, nil
}

// Wrap returns a sink that counts every sample under source before passing it on.
// A nil meter returns next unchanged.
func (m *Meter) Wrap(source string, next Sink) Sink {
	if m == nil {
		return next
	}
	view, err := m.metric.With(map[string]string{"source": source})
	if err != nil {
		return next
	}
	return SinkFunc(func(s sample.AggregatedSample) {
		_ = view.Increment(1)
		next.OnSample(s)
	})
}
