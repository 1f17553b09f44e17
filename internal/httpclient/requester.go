package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/crankprom/internal/aggregate"
	"github.com/torosent/crankprom/internal/runner"
	"github.com/torosent/crankprom/internal/tracing"
)

const maxLoggedBodyBytes = 1024

// Recorder receives the outcome of every request.
type Recorder interface {
	Record(r aggregate.Result)
}

// Requester implements runner.Requester for HTTP. Every call sends one request to a
// weighted random endpoint and records its timings.
type Requester struct {
	client    *http.Client
	selector  *selector
	recorder  Recorder
	tracer    trace.Tracer
	propagate bool
}

type Option func(*Requester)

// WithTracer wraps every request in a client span, propagating the trace context to the
// target when propagate is set.
func WithTracer(tracer trace.Tracer, propagate bool) Option {
	return func(r *Requester) {
		if tracer != nil {
			r.tracer = tracer
		}
		r.propagate = propagate
	}
}

// WithSeed fixes the endpoint selection seed.
func WithSeed(seed int64) Option {
	return func(r *Requester) {
		r.selector.rnd.Seed(seed)
	}
}

func NewRequester(client *http.Client, endpoints []Endpoint, recorder Recorder, opts ...Option) (*Requester, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}
	if len(endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	if recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}
	r := &Requester{
		client:   client,
		selector: newSelector(endpoints, time.Now().UnixNano()),
		recorder: recorder,
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var _ runner.Requester = (*Requester)(nil)

func (r *Requester) Do(ctx context.Context) error {
	ep := r.selector.pick()
	ctx, span := tracing.StartRequestSpan(ctx, r.tracer, ep.Builder.Method(), ep.Label)

	req, err := ep.Builder.Build(ctx)
	if err != nil {
		tracing.EndSpan(span, err)
		r.recorder.Record(aggregate.Result{Label: ep.Label, Code: aggregate.CodeError})
		return err
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	timer := &requestTimer{}
	req = req.WithContext(httptrace.WithClientTrace(ctx, timer.clientTrace()))

	start := time.Now()
	timer.begin(start)
	resp, err := r.client.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		r.recorder.Record(aggregate.Result{
			Label:    ep.Label,
			Code:     aggregate.CodeError,
			Connect:  timer.connect(),
			Latency:  elapsed,
			Response: elapsed,
		})
		tracing.EndSpan(span, err)
		return err
	}

	var head []byte
	var n int64
	if resp.StatusCode >= 400 {
		head, _ = io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		n = int64(len(head))
	}
	rest, _ := io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	n += rest
	elapsed := time.Since(start)

	var resultErr error
	if resp.StatusCode >= 400 {
		resultErr = &runner.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(head)),
		}
	}

	r.recorder.Record(aggregate.Result{
		Label:    ep.Label,
		Code:     strconv.Itoa(resp.StatusCode),
		Success:  resultErr == nil,
		Bytes:    n,
		Connect:  timer.connect(),
		Latency:  timer.firstByte(elapsed),
		Response: elapsed,
	})
	tracing.EndSpan(span, resultErr, attribute.Int("http.response.status_code", resp.StatusCode))
	return resultErr
}

// requestTimer collects connection and first-byte timings through httptrace.
type requestTimer struct {
	mu           sync.Mutex
	start        time.Time
	connectStart time.Time
	connectDone  time.Time
	firstByteAt  time.Time
}

func (t *requestTimer) begin(at time.Time) {
	t.mu.Lock()
	t.start = at
	t.mu.Unlock()
}

func (t *requestTimer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		ConnectStart: func(string, string) {
			t.mu.Lock()
			if t.connectStart.IsZero() {
				t.connectStart = time.Now()
			}
			t.mu.Unlock()
		},
		ConnectDone: func(string, string, error) {
			t.mu.Lock()
			t.connectDone = time.Now()
			t.mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			t.mu.Lock()
			t.connectDone = time.Now()
			t.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			t.mu.Lock()
			t.firstByteAt = time.Now()
			t.mu.Unlock()
		},
	}
}

// connect is zero for requests served from a pooled connection.
func (t *requestTimer) connect() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectStart.IsZero() || t.connectDone.Before(t.connectStart) {
		return 0
	}
	return t.connectDone.Sub(t.connectStart)
}

func (t *requestTimer) firstByte(fallback time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstByteAt.IsZero() || t.start.IsZero() {
		return fallback
	}
	return t.firstByteAt.Sub(t.start)
}
