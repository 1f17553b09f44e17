package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer blocks until the next request may start.
type pacer interface {
	Wait(ctx context.Context) error
	SetRate(rps float64)
}

func newPacer(opt Options, initial float64, scheduled bool) pacer {
	if opt.ArrivalModel == ArrivalModelPoisson {
		sample := opt.PoissonSampler
		if sample == nil {
			sample = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
		}
		p := &poissonPacer{sample: sample}
		p.SetRate(initial)
		return p
	}
	p := &limiterPacer{limiter: opt.LimiterFactory(opt.RatePerSecond)}
	if scheduled {
		p.SetRate(initial)
	}
	return p
}

// limiterPacer spaces requests evenly with a token bucket.
type limiterPacer struct {
	limiter *rate.Limiter
}

func (p *limiterPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func (p *limiterPacer) SetRate(rps float64) {
	if rps <= 0 {
		p.limiter.SetLimit(rate.Inf)
		return
	}
	p.limiter.SetLimit(rate.Limit(rps))
	p.limiter.SetBurst(max(int(math.Ceil(rps)), 1))
}

// poissonPacer draws exponentially distributed gaps with mean 1/rps.
type poissonPacer struct {
	mu     sync.Mutex
	rps    float64
	sample func() float64
}

func (p *poissonPacer) SetRate(rps float64) {
	p.mu.Lock()
	p.rps = rps
	p.mu.Unlock()
}

func (p *poissonPacer) gap() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rps <= 0 {
		return 0
	}
	return time.Duration(p.sample() / p.rps * float64(time.Second))
}

func (p *poissonPacer) Wait(ctx context.Context) error {
	d := p.gap()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
