package runner

import (
	"context"
	"fmt"
	"time"
)

// HTTPError is returned for responses with status 400 and above. Body holds the start
// of the response body.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// FailureLogger receives every failed request.
type FailureLogger interface {
	LogFailure(err error)
}

// RetryPolicy bounds how often and how fast a failed request is repeated.
type RetryPolicy struct {
	// MaxAttempts counts the first try.
	MaxAttempts int
	// Delay is used when DelayFunc is nil.
	Delay time.Duration
	// ShouldRetry defaults to retrying every error.
	ShouldRetry func(error) bool
	// DelayFunc receives the 1-based number of the attempt that just failed.
	DelayFunc func(attempt int, err error) time.Duration
}

func (p RetryPolicy) retryable(err error) bool {
	return p.ShouldRetry == nil || p.ShouldRetry(err)
}

func (p RetryPolicy) backoff(attempt int, err error) time.Duration {
	if p.DelayFunc != nil {
		return p.DelayFunc(attempt, err)
	}
	return p.Delay
}

// WithRetry repeats failed requests according to policy. The returned error is the one
// of the last attempt.
func WithRetry(req Requester, policy RetryPolicy) Requester {
	if policy.MaxAttempts <= 1 {
		return req
	}
	return RequesterFunc(func(ctx context.Context) error {
		for attempt := 1; ; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := req.Do(ctx)
			if err == nil || attempt >= policy.MaxAttempts || !policy.retryable(err) {
				return err
			}
			if err := sleep(ctx, policy.backoff(attempt, err)); err != nil {
				return err
			}
		}
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// WithLogging passes every error returned by req to logger.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return RequesterFunc(func(ctx context.Context) error {
		err := req.Do(ctx)
		if err != nil {
			logger.LogFailure(err)
		}
		return err
	})
}
