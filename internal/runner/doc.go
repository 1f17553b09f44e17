// Package runner drives the built-in load producer of crankprom.
//
// A [Runner] executes a [Requester] from a pool of worker goroutines until a total request
// count or a duration is reached, or its context ends. Request starts are paced by a
// rate limiter:
//   - [ArrivalModelUniform]: fixed spacing through golang.org/x/time/rate
//   - [ArrivalModelPoisson]: exponential inter-arrival times
//
// A list of [LoadPattern] phases (ramp, step, spike) replaces the fixed rate while the
// schedule lasts; the run ends when the schedule does.
//
//	r := runner.New(runner.Options{
//		Concurrency:   10,
//		Duration:      time.Minute,
//		RatePerSecond: 100,
//		Requester:     requester,
//	})
//	result := r.Run(ctx)
//
// [Runner.Active] reports the number of requests in flight and feeds the concurrency
// field of the produced samples.
//
// # Middleware
//
//   - [WithRetry]: retry failed requests according to a [RetryPolicy]
//   - [WithLogging]: report failures to a [FailureLogger]
//
// HTTP requesters report non-2xx/3xx answers as [*HTTPError] so retry predicates can
// inspect the status code.
package runner
