// Package reporter turns buffered load-test samples into Prometheus instrument updates.
//
// # Pipeline
//
// Producers hand samples to [Reporter.OnSample], which appends them to an unbounded
// [Buffer]. A [Scheduler] calls [Reporter.OnTick] on a fixed interval; each call is one
// publish cycle:
//
//  1. the buffer is swapped out and reset, so samples arriving mid-cycle wait for the
//     next one,
//  2. every drained sample is passed, in arrival order, to the [Translator],
//  3. the translator draws one response code per test label and updates all twelve
//     load-test instruments under that (test_label, response_code) pair.
//
// [Reporter.OnShutdown] runs one last cycle over whatever is still buffered.
//
// # Metrics
//
// Every sample field is published under the prefix (default "bzt_test_"):
//
//	send_bytes                   histogram  bytes
//	avg_response_time_seconds    histogram  avg_rt
//	avg_latency_time_seconds     histogram  avg_lt
//	avg_connection_time_seconds  histogram  avg_ct
//	concurrent_users             gauge      concurrency
//	success_request              counter    succ
//	error_request                counter    fail
//	response_time_seconds        gauge      avg_rt
//	latency_time_seconds         gauge      avg_lt
//	connection_time_seconds      gauge      avg_ct
//	send_bytes_gauge             gauge      bytes
//	throughput                   counter    throughput
//
// When a bucket carries several result codes for one label, only the first one drawn
// labels that bucket's updates.
//
// # Errors
//
// A test label whose result codes are exhausted is logged and skipped; the rest of the
// cycle continues. Any other translation error points at a broken instrument mapping and
// is returned from OnTick after the cycle completes.
package reporter
