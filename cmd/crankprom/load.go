package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/crankprom/internal/aggregate"
	"github.com/torosent/crankprom/internal/config"
	"github.com/torosent/crankprom/internal/httpclient"
	"github.com/torosent/crankprom/internal/ingest"
	"github.com/torosent/crankprom/internal/runner"
	"github.com/torosent/crankprom/internal/tracing"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// loadProducer generates HTTP load and feeds one aggregated sample per interval to the
// reporter.
type loadProducer struct {
	runner     *runner.Runner
	aggregator *aggregate.Aggregator
	log        *logrus.Entry
}

func newLoadProducer(cfg config.Config, sink ingest.Sink, tp *tracing.Provider, log *logrus.Entry) (*loadProducer, error) {
	endpoints, err := httpclient.Endpoints(cfg.Load)
	if err != nil {
		return nil, err
	}

	p := &loadProducer{log: log.WithField("subsystem", "load")}
	p.aggregator = aggregate.New(sink, aggregate.Options{
		Interval:    cfg.Interval,
		Concurrency: func() int { return p.runner.Active() },
	})

	requester, err := httpclient.NewRequester(
		httpclient.NewClient(cfg.Load.Timeout),
		endpoints,
		p.aggregator,
		httpclient.WithTracer(tp.Tracer(), tp.ShouldPropagate()),
	)
	if err != nil {
		return nil, err
	}

	var wrapped runner.Requester = runner.WithLogging(requester, &logFailureLogger{log: p.log})
	if cfg.Load.Retries > 0 {
		wrapped = runner.WithRetry(wrapped, newRetryPolicy(cfg.Load.Retries))
	}

	p.runner = runner.New(runner.Options{
		Concurrency:   cfg.Load.Concurrency,
		TotalRequests: cfg.Load.Total,
		Duration:      cfg.Load.Duration,
		RatePerSecond: cfg.Load.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Load.Arrival),
		LoadPatterns:  toRunnerLoadPatterns(cfg.Load.Patterns),
		Requester:     wrapped,
	})
	return p, nil
}

// Run generates load until the run completes or ctx ends, then flushes the last partial
// bucket to the sink.
func (p *loadProducer) Run(ctx context.Context) {
	aggCtx, stop := context.WithCancel(context.Background())
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		p.aggregator.Run(aggCtx)
	}()

	p.log.Info("starting load")
	result := p.runner.Run(ctx)
	stop()
	<-flushed

	p.log.WithFields(logrus.Fields{
		"requests": result.Total,
		"errors":   result.Errors,
		"duration": result.Duration,
	}).Info("load finished")
}

type logFailureLogger struct {
	log *logrus.Entry
}

func (l *logFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.log.WithError(err).Debug("request failed")
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func toRunnerLoadPatterns(patterns []config.LoadPattern) []runner.LoadPattern {
	if len(patterns) == 0 {
		return nil
	}
	result := make([]runner.LoadPattern, len(patterns))
	for i, p := range patterns {
		result[i] = runner.LoadPattern{
			Name:     p.Name,
			Type:     runner.LoadPatternType(p.Type),
			FromRPS:  p.FromRPS,
			ToRPS:    p.ToRPS,
			Duration: p.Duration,
			Steps:    toRunnerLoadSteps(p.Steps),
			RPS:      p.RPS,
		}
	}
	return result
}

func toRunnerLoadSteps(steps []config.LoadStep) []runner.LoadStep {
	if len(steps) == 0 {
		return nil
	}
	result := make([]runner.LoadStep, len(steps))
	for i, s := range steps {
		result[i] = runner.LoadStep{
			RPS:      s.RPS,
			Duration: s.Duration,
		}
	}
	return result
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}

// newRetryPolicy retries transport failures, 429 and 5xx answers with capped exponential
// backoff plus jitter.
func newRetryPolicy(retries int) runner.RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			var httpErr *runner.HTTPError
			if errors.As(err, &httpErr) {
				if httpErr.StatusCode == http.StatusTooManyRequests {
					return true
				}
				return httpErr.StatusCode >= 500
			}
			return true
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}
