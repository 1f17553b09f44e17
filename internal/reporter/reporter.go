package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/crankprom/internal/registry"
	"github.com/torosent/crankprom/internal/sample"
	"github.com/torosent/crankprom/internal/tracing"
)

// State describes where the reporter is in its publish lifecycle.
type State int

const (
	StateIdle     State = iota // nothing buffered
	StatePending               // at least one sample buffered
	StateDraining              // a publish cycle is running
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const selfMetricsPrefix = "crankprom_"

// Options configure a Reporter.
type Options struct {
	Prefix      string    // metric name prefix, DefaultPrefix when empty
	TimeBuckets []float64 // histogram bounds for the timing histograms
	ByteBuckets []float64 // histogram bounds for send_bytes
	Logger      *logrus.Entry
	Tracer      trace.Tracer
}

// CycleReport summarizes one publish cycle.
type CycleReport struct {
	ID         ulid.ULID
	Final      bool
	Samples    int // samples drained
	Units      int // (sample, test label) pairs visited
	Translated int
	Skipped    int // units dropped for lack of a response code
	Duration   time.Duration
}

// Reporter buffers incoming samples and publishes them to the registry on every cycle.
// It is the single owner of the sample buffer and the load-test instruments.
type Reporter struct {
	buffer     *Buffer
	translator *Translator
	self       selfMetrics

	cycleMu  sync.Mutex
	draining atomic.Bool

	log    *logrus.Entry
	tracer trace.Tracer
}

type selfMetrics struct {
	cycles   *registry.View
	skipped  *registry.View
	buffered *registry.View
}

// New registers every instrument in reg and returns a reporter ready to accept samples.
// Registration failures, such as *registry.DuplicateMetricError, are returned as is.
func New(reg *registry.Registry, opts Options) (*Reporter, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	timeBuckets := opts.TimeBuckets
	if len(timeBuckets) == 0 {
		timeBuckets = prometheus.DefBuckets
	}
	byteBuckets := opts.ByteBuckets
	if len(byteBuckets) == 0 {
		byteBuckets = prometheus.DefBuckets
	}

	translator, err := NewTranslator(reg, prefix, timeBuckets, byteBuckets)
	if err != nil {
		return nil, err
	}
	self, err := newSelfMetrics(reg)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Reporter{
		buffer:     NewBuffer(),
		translator: translator,
		self:       self,
		log:        logger,
		tracer:     tracer,
	}, nil
}

func newSelfMetrics(reg *registry.Registry) (selfMetrics, error) {
	defs := []registry.Definition{
		{Name: selfMetricsPrefix + "publish_cycles_total", Help: "Number of completed publish cycles", Kind: registry.KindCounter},
		{Name: selfMetricsPrefix + "skipped_labels_total", Help: "Test labels skipped because no response code was left", Kind: registry.KindCounter},
		{Name: selfMetricsPrefix + "buffered_samples", Help: "Samples buffered when the last publish cycle started", Kind: registry.KindGauge},
	}
	views := make([]*registry.View, len(defs))
	for i, def := range defs {
		m, err := reg.Create(def)
		if err != nil {
			return selfMetrics{}, err
		}
		if views[i], err = m.With(nil); err != nil {
			return selfMetrics{}, err
		}
	}
	return selfMetrics{cycles: views[0], skipped: views[1], buffered: views[2]}, nil
}

func selfMetric(log *logrus.Entry, err error) {
	if err != nil {
		log.WithError(err).Debug("self-metric update failed")
	}
}

// OnSample queues s for the next publish cycle. It never fails and never blocks on a
// cycle in progress.
func (r *Reporter) OnSample(s sample.AggregatedSample) {
	r.buffer.Append(s)
}

// OnTick runs one publish cycle. A non-nil error carries translation defects; the cycle
// has still processed every drained sample.
func (r *Reporter) OnTick(ctx context.Context) (CycleReport, error) {
	return r.cycle(ctx, false)
}

// OnShutdown runs the final publish cycle over whatever is still buffered.
func (r *Reporter) OnShutdown(ctx context.Context) (CycleReport, error) {
	r.log.Info("Sending remaining KPI data to prometheus...")
	return r.cycle(ctx, true)
}

// State reports the reporter's lifecycle state.
func (r *Reporter) State() State {
	if r.draining.Load() {
		return StateDraining
	}
	if r.buffer.Len() > 0 {
		return StatePending
	}
	return StateIdle
}

// Buffered reports the number of samples waiting for the next cycle.
func (r *Reporter) Buffered() int {
	return r.buffer.Len()
}

func (r *Reporter) cycle(ctx context.Context, final bool) (CycleReport, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()
	r.draining.Store(true)
	defer r.draining.Store(false)

	report := CycleReport{ID: ulid.Make(), Final: final}
	_, span := tracing.StartCycleSpan(ctx, r.tracer, report.ID.String(), final)
	log := r.log.WithField("cycle", report.ID.String())
	start := time.Now()

	batch := r.buffer.Drain()
	report.Samples = len(batch)
	selfMetric(log, r.self.buffered.Set(float64(len(batch))))
	log.Debugf("KPI bulk buffer len: %d", len(batch))

	var defects []error
	for idx, s := range batch {
		for _, unit := range r.translator.Translate(s) {
			report.Units++
			if unit.Err == nil {
				report.Translated++
				continue
			}
			entry := log.WithField("test_label", unit.TestLabel)
			var empty *sample.EmptyResultCodeSetError
			if errors.As(unit.Err, &empty) {
				report.Skipped++
				selfMetric(log, r.self.skipped.Increment(1))
				entry.Warn("skipping test label without a response code")
				continue
			}
			entry.WithError(unit.Err).WithField("response_code", unit.Key.ResponseCode).Error("failed to publish test label")
			defects = append(defects, fmt.Errorf("sample %d, test label %q: %w", idx, unit.TestLabel, unit.Err))
		}
	}

	report.Duration = time.Since(start)
	selfMetric(log, r.self.cycles.Increment(1))

	err := errors.Join(defects...)
	tracing.EndSpan(span, err,
		attribute.Int("crankprom.cycle.samples", report.Samples),
		attribute.Int("crankprom.cycle.skipped", report.Skipped),
	)
	return report, err
}
