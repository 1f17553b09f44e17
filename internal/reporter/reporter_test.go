package reporter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/crankprom/internal/registry"
	"github.com/torosent/crankprom/internal/sample"
)

func newTestReporter(t *testing.T) (*Reporter, *registry.Registry, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	reg := registry.New()
	r, err := New(reg, Options{
		TimeBuckets: []float64{0.1, 0.5, 1},
		ByteBuckets: []float64{10, 100, 1000},
		Logger:      logrus.NewEntry(logger),
	})
	require.NoError(t, err)
	return r, reg, hook
}

func resultSet(succ int64, codes ...string) *sample.ResultSet {
	return &sample.ResultSet{
		Bytes:       100,
		AvgCT:       0.1,
		AvgLT:       0.2,
		AvgRT:       0.3,
		Concurrency: 5,
		Succ:        succ,
		Fail:        1,
		Throughput:  succ + 1,
		RC:          sample.NewResultCodes(codes...),
	}
}

func newSample(ts int64, sets map[string]*sample.ResultSet) sample.AggregatedSample {
	s := sample.New(ts)
	for label, rs := range sets {
		s.Current[label] = rs
	}
	return s
}

// series finds the sample of metric name carrying the given label pair.
func series(t *testing.T, reg *registry.Registry, name, label, code string) *dto.Metric {
	t.Helper()
	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			if got[sample.LabelTestLabel] == label && got[sample.LabelResponseCode] == code {
				return m
			}
		}
	}
	return nil
}

// labelSeries lists the metrics exposing a series for the given test label.
func labelSeries(t *testing.T, reg *registry.Registry, label string) []string {
	t.Helper()
	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == sample.LabelTestLabel && lp.GetValue() == label {
					names = append(names, mf.GetName())
				}
			}
		}
	}
	return names
}

func counterValue(t *testing.T, reg *registry.Registry, base, label, code string) float64 {
	t.Helper()
	m := series(t, reg, DefaultPrefix+base, label, code)
	require.NotNil(t, m, "no %s series for %s/%s", base, label, code)
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *registry.Registry, base, label, code string) float64 {
	t.Helper()
	m := series(t, reg, DefaultPrefix+base, label, code)
	require.NotNil(t, m, "no %s series for %s/%s", base, label, code)
	return m.GetGauge().GetValue()
}

func TestSingleSamplePublishesAllInstruments(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	r.OnSample(newSample(1, map[string]*sample.ResultSet{"labelA": resultSet(10, "200")}))
	report, err := r.OnTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Samples)
	assert.Equal(t, 1, report.Translated)
	assert.False(t, report.Final)

	hist := series(t, reg, DefaultPrefix+SendBytes, "labelA", "200").GetHistogram()
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 100, hist.GetSampleSum(), 1e-9)
	// 100 lands in the le=100 bucket.
	assert.Equal(t, uint64(0), hist.GetBucket()[0].GetCumulativeCount())
	assert.Equal(t, uint64(1), hist.GetBucket()[1].GetCumulativeCount())

	assert.Equal(t, 10.0, counterValue(t, reg, SuccessRequest, "labelA", "200"))
	assert.Equal(t, 1.0, counterValue(t, reg, ErrorRequest, "labelA", "200"))
	assert.Equal(t, 11.0, counterValue(t, reg, Throughput, "labelA", "200"))
	assert.Equal(t, 5.0, gaugeValue(t, reg, ConcurrentUsers, "labelA", "200"))
	assert.InDelta(t, 0.3, gaugeValue(t, reg, ResponseTimeSeconds, "labelA", "200"), 1e-9)
	assert.InDelta(t, 0.2, gaugeValue(t, reg, LatencyTimeSeconds, "labelA", "200"), 1e-9)
	assert.InDelta(t, 0.1, gaugeValue(t, reg, ConnectionTimeSeconds, "labelA", "200"), 1e-9)
	assert.Equal(t, 100.0, gaugeValue(t, reg, SendBytesGauge, "labelA", "200"))

	for _, base := range []string{AvgResponseTimeSeconds, AvgLatencyTimeSeconds, AvgConnectionTimeSeconds} {
		h := series(t, reg, DefaultPrefix+base, "labelA", "200").GetHistogram()
		require.NotNil(t, h, base)
		assert.Equal(t, uint64(1), h.GetSampleCount(), base)
	}
}

func TestCountersAccumulateAcrossSamples(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	r.OnSample(newSample(1, map[string]*sample.ResultSet{"labelA": resultSet(5, "200")}))
	r.OnSample(newSample(2, map[string]*sample.ResultSet{"labelA": resultSet(7, "200")}))
	_, err := r.OnTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12.0, counterValue(t, reg, SuccessRequest, "labelA", "200"))
	assert.Equal(t, 2.0, counterValue(t, reg, ErrorRequest, "labelA", "200"))
}

func TestGaugeKeepsLastSampleInBufferOrder(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	for i, users := range []float64{3, 9, 4} {
		rs := resultSet(1, "200")
		rs.Concurrency = users
		r.OnSample(newSample(int64(i), map[string]*sample.ResultSet{"labelA": rs}))
	}
	_, err := r.OnTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4.0, gaugeValue(t, reg, ConcurrentUsers, "labelA", "200"))
}

func TestEmptyResultCodesSkipsLabel(t *testing.T) {
	r, reg, hook := newTestReporter(t)

	r.OnSample(newSample(1, map[string]*sample.ResultSet{
		"broken": resultSet(3),
		"ok":     resultSet(2, "200"),
	}))
	report, err := r.OnTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Units)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Translated)

	assert.Empty(t, labelSeries(t, reg, "broken"), "skipped label must not be exposed")
	assert.Equal(t, 2.0, counterValue(t, reg, SuccessRequest, "ok", "200"))

	skipped := series(t, reg, selfMetricsPrefix+"skipped_labels_total", "", "")
	require.NotNil(t, skipped)
	assert.Equal(t, 1.0, skipped.GetCounter().GetValue())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["test_label"] == "broken" {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the skipped label")
}

func TestFirstResultCodeLabelsEveryInstrument(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	r.OnSample(newSample(1, map[string]*sample.ResultSet{"labelA": resultSet(4, "200", "500", "200")}))
	_, err := r.OnTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4.0, counterValue(t, reg, SuccessRequest, "labelA", "200"))
	assert.Nil(t, series(t, reg, DefaultPrefix+SuccessRequest, "labelA", "500"))
}

func TestEmptyTestLabelIsIgnored(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	r.OnSample(newSample(1, map[string]*sample.ResultSet{
		"":       resultSet(9, "200"),
		"labelA": resultSet(1, "200"),
	}))
	report, err := r.OnTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Units)
	assert.Nil(t, series(t, reg, DefaultPrefix+SuccessRequest, "", "200"))
}

func TestShutdownDrainsRemainingSamples(t *testing.T) {
	r, reg, hook := newTestReporter(t)

	for i := 0; i < 3; i++ {
		r.OnSample(newSample(int64(i), map[string]*sample.ResultSet{"labelA": resultSet(1, "200")}))
	}
	require.Equal(t, 3, r.Buffered())

	report, err := r.OnShutdown(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Final)
	assert.Equal(t, 3, report.Samples)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, StateIdle, r.State())
	assert.Equal(t, 3.0, counterValue(t, reg, SuccessRequest, "labelA", "200"))

	var announced bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Sending remaining KPI data to prometheus..." {
			announced = true
		}
	}
	assert.True(t, announced)
}

func TestSamplesAppendedAfterDrainWaitForNextCycle(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	r.OnSample(newSample(1, map[string]*sample.ResultSet{"labelA": resultSet(1, "200")}))
	_, err := r.OnTick(context.Background())
	require.NoError(t, err)
	r.OnSample(newSample(2, map[string]*sample.ResultSet{"labelA": resultSet(2, "200")}))
	assert.Equal(t, 1.0, counterValue(t, reg, SuccessRequest, "labelA", "200"))

	report, err := r.OnTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Samples)
	assert.Equal(t, 3.0, counterValue(t, reg, SuccessRequest, "labelA", "200"))
}

func TestConcurrentProducersLoseNothing(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	const producers, perProducer = 8, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.OnSample(newSample(int64(i), map[string]*sample.ResultSet{"labelA": resultSet(1, "200")}))
			}
		}()
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				_, err := r.OnTick(context.Background())
				assert.NoError(t, err)
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-done

	_, err := r.OnShutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(producers*perProducer), counterValue(t, reg, SuccessRequest, "labelA", "200"))
}

func TestStateTransitions(t *testing.T) {
	r, _, _ := newTestReporter(t)
	assert.Equal(t, StateIdle, r.State())

	r.OnSample(newSample(1, map[string]*sample.ResultSet{"labelA": resultSet(1, "200")}))
	assert.Equal(t, StatePending, r.State())

	_, err := r.OnTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.State())

	assert.Equal(t, "draining", StateDraining.String())
}

func TestMappingDefectIsReturned(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	bad := resultSet(-1, "200")
	r.OnSample(newSample(1, map[string]*sample.ResultSet{
		"bad":  bad,
		"good": resultSet(2, "200"),
	}))
	report, err := r.OnTick(context.Background())
	require.Error(t, err)

	var delta *registry.InvalidDeltaError
	require.True(t, errors.As(err, &delta), "got %v", err)
	assert.Equal(t, DefaultPrefix+SuccessRequest, delta.Metric)
	assert.Equal(t, 2, report.Units)
	assert.Equal(t, 1, report.Translated)
	assert.Equal(t, 2.0, counterValue(t, reg, SuccessRequest, "good", "200"))
	assert.Empty(t, labelSeries(t, reg, "bad"), "failed label must not be exposed")
}

func TestInvalidObservationLeavesNoSeries(t *testing.T) {
	r, reg, _ := newTestReporter(t)

	bad := resultSet(4, "200")
	bad.Bytes = -1
	r.OnSample(newSample(1, map[string]*sample.ResultSet{"labelA": bad}))
	report, err := r.OnTick(context.Background())
	require.Error(t, err)

	var obs *registry.InvalidObservationError
	require.True(t, errors.As(err, &obs), "got %v", err)
	assert.Equal(t, DefaultPrefix+SendBytes, obs.Metric)
	assert.Zero(t, report.Translated)
	assert.Empty(t, labelSeries(t, reg, "labelA"))
	assert.Nil(t, series(t, reg, DefaultPrefix+ConcurrentUsers, "labelA", "200"))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := registry.New()
	_, err := New(reg, Options{})
	require.NoError(t, err)

	_, err = New(reg, Options{})
	var dup *registry.DuplicateMetricError
	require.True(t, errors.As(err, &dup), "got %v", err)
}

func TestCustomPrefix(t *testing.T) {
	reg := registry.New()
	_, err := New(reg, Options{Prefix: "load_"})
	require.NoError(t, err)

	_, ok := reg.Metric("load_" + Throughput)
	assert.True(t, ok)
	_, ok = reg.Metric(DefaultPrefix + Throughput)
	assert.False(t, ok)
}

func TestCycleIsTraced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r, err := New(registry.New(), Options{Tracer: tp.Tracer("test")})
	require.NoError(t, err)

	report, err := r.OnShutdown(context.Background())
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "final publish cycle", spans[0].Name)
	var id string
	for _, attr := range spans[0].Attributes {
		if attr.Key == "crankprom.cycle.id" {
			id = attr.Value.AsString()
		}
	}
	assert.Equal(t, report.ID.String(), id)
}
