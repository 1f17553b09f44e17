// Package aggregate turns individual request results of the built-in load producer into
// per-interval aggregated samples.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/crankprom/internal/ingest"
	"github.com/torosent/crankprom/internal/sample"
)

// CodeError is the response code recorded when no response was received.
const CodeError = "error"

// Result is the outcome of a single request.
type Result struct {
	Label    string
	Code     string
	Success  bool
	Bytes    int64
	Connect  time.Duration
	Latency  time.Duration // time to first response byte
	Response time.Duration // full round trip
}

// Options configure an Aggregator.
type Options struct {
	Interval    time.Duration    // bucket length, 1s when zero
	Concurrency func() int       // active workers, sampled on every Record
	Now         func() time.Time // clock, time.Now when nil
}

// Aggregator buckets results per test label and emits one sample per interval.
type Aggregator struct {
	sink ingest.Sink
	opt  Options

	mu     sync.Mutex
	start  time.Time
	labels map[string]*window
	order  []string
}

// window holds one label's results for the current bucket. Timings are kept in
// microseconds, like the rest of the load producer.
type window struct {
	ct, lt, rt  *hdrhistogram.Histogram
	bytes       int64
	succ, fail  int64
	concurrency int
	codes       []sample.CodeCount
	codeIndex   map[string]int
}

func newWindow() *window {
	// 1µs up to 60s with 3 significant figures.
	return &window{
		ct:        hdrhistogram.New(1, 60_000_000, 3),
		lt:        hdrhistogram.New(1, 60_000_000, 3),
		rt:        hdrhistogram.New(1, 60_000_000, 3),
		codeIndex: make(map[string]int),
	}
}

func (w *window) reset() {
	w.ct.Reset()
	w.lt.Reset()
	w.rt.Reset()
	w.bytes, w.succ, w.fail, w.concurrency = 0, 0, 0, 0
	w.codes = w.codes[:0]
	clear(w.codeIndex)
}

func (w *window) count() int64 {
	return w.succ + w.fail
}

func New(sink ingest.Sink, opt Options) *Aggregator {
	if opt.Interval <= 0 {
		opt.Interval = time.Second
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Aggregator{
		sink:   sink,
		opt:    opt,
		labels: make(map[string]*window),
	}
}

// Record adds a result to the current bucket.
func (a *Aggregator) Record(r Result) {
	code := r.Code
	if code == "" {
		code = CodeError
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.start.IsZero() {
		a.start = a.opt.Now()
	}
	w, ok := a.labels[r.Label]
	if !ok {
		w = newWindow()
		a.labels[r.Label] = w
		a.order = append(a.order, r.Label)
	}

	recordDuration(w.ct, r.Connect)
	recordDuration(w.lt, r.Latency)
	recordDuration(w.rt, r.Response)
	w.bytes += r.Bytes
	if r.Success {
		w.succ++
	} else {
		w.fail++
	}
	if i, ok := w.codeIndex[code]; ok {
		w.codes[i].Count++
	} else {
		w.codeIndex[code] = len(w.codes)
		w.codes = append(w.codes, sample.CodeCount{Code: code, Count: 1})
	}
	if a.opt.Concurrency != nil {
		if active := a.opt.Concurrency(); active > w.concurrency {
			w.concurrency = active
		}
	}
}

func recordDuration(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// Flush emits the current bucket to the sink and starts a new one. It reports false when
// the bucket was empty and nothing was emitted.
func (a *Aggregator) Flush() bool {
	a.mu.Lock()
	if a.start.IsZero() {
		a.mu.Unlock()
		return false
	}

	out := sample.New(a.start.Unix())
	for _, label := range a.order {
		w := a.labels[label]
		if w.count() == 0 {
			continue
		}
		out.Add(label, &sample.ResultSet{
			Bytes:       float64(w.bytes),
			AvgCT:       meanSeconds(w.ct),
			AvgLT:       meanSeconds(w.lt),
			AvgRT:       meanSeconds(w.rt),
			Concurrency: float64(w.concurrency),
			Succ:        w.succ,
			Fail:        w.fail,
			Throughput:  w.count(),
			RC:          sample.CountedResultCodes(w.codes...),
		})
		w.reset()
	}
	a.start = time.Time{}
	a.mu.Unlock()

	if out.Len() == 0 {
		return false
	}
	a.sink.OnSample(out)
	return true
}

func meanSeconds(h *hdrhistogram.Histogram) float64 {
	if h.TotalCount() == 0 {
		return 0
	}
	return h.Mean() / float64(time.Second/time.Microsecond)
}

// Run flushes every interval until ctx ends, then flushes the final partial bucket.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.opt.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Flush()
			return
		case <-ticker.C:
			a.Flush()
		}
	}
}
