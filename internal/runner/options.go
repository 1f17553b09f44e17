package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Requester sends one request. A non-nil error counts the request as failed.
type Requester interface {
	Do(ctx context.Context) error
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context) error

func (f RequesterFunc) Do(ctx context.Context) error { return f(ctx) }

// ArrivalModel selects how request start times are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

// LoadPattern is one phase of a rate schedule. Ramp uses FromRPS and ToRPS, step uses
// Steps and spike uses RPS.
type LoadPattern struct {
	Name     string
	Type     LoadPatternType
	FromRPS  int
	ToRPS    int
	Duration time.Duration
	Steps    []LoadStep
	RPS      int
}

type LoadStep struct {
	RPS      int
	Duration time.Duration
}

// Options configure a Runner. Zero values mean one worker with no request, time or rate
// limit.
type Options struct {
	Concurrency   int
	TotalRequests int
	Duration      time.Duration
	RatePerSecond int
	ArrivalModel  ArrivalModel
	// LoadPatterns replace RatePerSecond while they last. The run ends with the last
	// pattern.
	LoadPatterns []LoadPattern
	Requester    Requester

	// Test hooks.
	LimiterFactory func(rps int) *rate.Limiter
	PoissonSampler func() float64
	RandomSeed     int64
}

func (o *Options) normalize() {
	o.Concurrency = max(o.Concurrency, 1)
	o.TotalRequests = max(o.TotalRequests, 0)
	o.RatePerSecond = max(o.RatePerSecond, 0)
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = newLimiter
	}
}

func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}
