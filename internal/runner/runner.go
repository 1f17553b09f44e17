package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const scheduleTick = 100 * time.Millisecond

// Result summarizes a finished run.
type Result struct {
	Total    int64
	Errors   int64
	Duration time.Duration
}

// Runner drives a Requester from a fixed pool of workers.
type Runner struct {
	opt      Options
	schedule *schedule
	pacer    pacer

	active atomic.Int64
	issued atomic.Int64
	failed atomic.Int64
}

func New(opt Options) *Runner {
	opt.normalize()
	sched := newSchedule(opt.LoadPatterns)
	initial := float64(opt.RatePerSecond)
	if sched != nil {
		initial, _ = sched.rateAt(0)
	}
	return &Runner{
		opt:      opt,
		schedule: sched,
		pacer:    newPacer(opt, initial, sched != nil),
	}
}

// Active reports how many workers are executing a request right now.
func (r *Runner) Active() int {
	return int(r.active.Load())
}

// Run sends requests until the request total is reached, the duration or the load
// schedule ends, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	r.issued.Store(0)
	r.failed.Store(0)

	var cancel context.CancelFunc
	if r.opt.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opt.Duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if r.schedule != nil {
		go r.followSchedule(ctx, cancel)
	}

	permits := make(chan struct{})
	go r.dispatch(ctx, permits)

	var wg sync.WaitGroup
	for range r.opt.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx, permits)
		}()
	}
	wg.Wait()

	return Result{
		Total:    r.issued.Load(),
		Errors:   r.failed.Load(),
		Duration: time.Since(start),
	}
}

// dispatch hands one permit to a worker per paced slot. A permit is counted only once a
// worker has taken it.
func (r *Runner) dispatch(ctx context.Context, permits chan<- struct{}) {
	defer close(permits)
	limit := int64(r.opt.TotalRequests)
	for ctx.Err() == nil {
		if limit > 0 && r.issued.Load() >= limit {
			return
		}
		if err := r.pacer.Wait(ctx); err != nil {
			return
		}
		select {
		case permits <- struct{}{}:
			r.issued.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) work(ctx context.Context, permits <-chan struct{}) {
	for range permits {
		if r.opt.Requester == nil {
			continue
		}
		r.active.Add(1)
		err := r.opt.Requester.Do(ctx)
		r.active.Add(-1)
		if err != nil {
			r.failed.Add(1)
		}
	}
}

// followSchedule retunes the pacer as the schedule advances and stops the run when it
// is over.
func (r *Runner) followSchedule(ctx context.Context, stop context.CancelFunc) {
	defer stop()
	start := time.Now()
	ticker := time.NewTicker(scheduleTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rps, ok := r.schedule.rateAt(time.Since(start))
			if !ok {
				return
			}
			r.pacer.SetRate(rps)
		}
	}
}
