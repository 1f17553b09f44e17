package runner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/crankprom/internal/runner"
)

// countingRequester sleeps for latency on every call and fails calls listed in failOn.
type countingRequester struct {
	latency time.Duration
	calls   atomic.Int64
	failOn  func(n int64) bool
}

func (c *countingRequester) Do(ctx context.Context) error {
	n := c.calls.Add(1)
	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.failOn != nil && c.failOn(n) {
		return errors.New("boom")
	}
	return nil
}

func TestRunStopsAtTotal(t *testing.T) {
	req := &countingRequester{latency: time.Millisecond}
	res := runner.New(runner.Options{Concurrency: 4, TotalRequests: 25, Requester: req}).Run(context.Background())

	assert.Equal(t, int64(25), res.Total)
	assert.Equal(t, int64(25), req.calls.Load())
	assert.Zero(t, res.Errors)
}

func TestRunCountsErrors(t *testing.T) {
	req := &countingRequester{failOn: func(n int64) bool { return n%2 == 0 }}
	res := runner.New(runner.Options{TotalRequests: 10, Requester: req}).Run(context.Background())

	assert.Equal(t, int64(10), res.Total)
	assert.Equal(t, int64(5), res.Errors)
}

func TestRunStopsAfterDuration(t *testing.T) {
	req := &countingRequester{latency: 5 * time.Millisecond}
	r := runner.New(runner.Options{Concurrency: 8, Duration: 50 * time.Millisecond, Requester: req})

	start := time.Now()
	res := r.Run(context.Background())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Positive(t, res.Total)
	assert.Positive(t, res.Duration)
	assert.Equal(t, res.Total, req.calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := &countingRequester{latency: time.Millisecond}
	done := make(chan runner.Result, 1)
	go func() { done <- runner.New(runner.Options{Concurrency: 2, Requester: req}).Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case res := <-done:
		assert.Positive(t, res.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunPacesUniformRate(t *testing.T) {
	req := &countingRequester{}
	res := runner.New(runner.Options{
		Concurrency:   4,
		Duration:      300 * time.Millisecond,
		RatePerSecond: 50,
		Requester:     req,
	}).Run(context.Background())

	// Burst of 50 plus about 15 paced starts.
	assert.LessOrEqual(t, res.Total, int64(70))
	assert.Equal(t, res.Total, req.calls.Load())
}

func TestRunPoissonArrivals(t *testing.T) {
	req := &countingRequester{}
	res := runner.New(runner.Options{
		TotalRequests:  5,
		RatePerSecond:  100,
		ArrivalModel:   runner.ArrivalModelPoisson,
		PoissonSampler: func() float64 { return 1 },
		Requester:      req,
	}).Run(context.Background())

	assert.Equal(t, int64(5), res.Total)
	// Five gaps of 10ms each.
	assert.GreaterOrEqual(t, res.Duration, 40*time.Millisecond)
}

func TestRunEndsWithLoadPatterns(t *testing.T) {
	req := &countingRequester{}
	r := runner.New(runner.Options{
		LoadPatterns: []runner.LoadPattern{{Type: runner.LoadPatternTypeSpike, RPS: 100, Duration: 200 * time.Millisecond}},
		Requester:    req,
	})

	res := r.Run(context.Background())
	assert.GreaterOrEqual(t, res.Duration, 200*time.Millisecond)
	assert.Less(t, res.Duration, 2*time.Second)
	assert.Positive(t, res.Total)
}

type blockingRequester struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRequester) Do(ctx context.Context) error {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestRunnerReportsActiveWorkers(t *testing.T) {
	req := &blockingRequester{started: make(chan struct{}, 3), release: make(chan struct{})}
	r := runner.New(runner.Options{Concurrency: 3, TotalRequests: 3, Requester: req})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background())
	}()
	for range 3 {
		<-req.started
	}
	assert.Equal(t, 3, r.Active())

	close(req.release)
	<-done
	require.Equal(t, 0, r.Active())
}
