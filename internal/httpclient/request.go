package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Template describes one request of the load producer. Body and BodyFile are mutually
// exclusive.
type Template struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     string
	BodyFile string
}

// RequestBuilder turns a validated Template into fresh requests. It is safe for
// concurrent use.
type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	payload payload
}

func NewRequestBuilder(tmpl Template) (*RequestBuilder, error) {
	target := strings.TrimSpace(tmpl.URL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	headers, err := headerSet(tmpl.Headers)
	if err != nil {
		return nil, err
	}
	p, err := newPayload(tmpl.Body, tmpl.BodyFile)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(tmpl.Method))
	if method == "" {
		method = http.MethodGet
	}
	return &RequestBuilder{method: method, target: target, headers: headers, payload: p}, nil
}

func headerSet(raw map[string]string) (http.Header, error) {
	headers := make(http.Header, len(raw))
	for key, value := range raw {
		name := strings.TrimSpace(key)
		if name == "" || strings.ContainsAny(name, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", http.CanonicalHeaderKey(name))
		}
		headers.Set(name, value)
	}
	return headers, nil
}

func (b *RequestBuilder) Method() string { return b.method }

func (b *RequestBuilder) Target() string { return b.target }

// Build returns a new request bound to ctx. The body can be replayed through GetBody
// on redirects.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	body, err := b.payload.open()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, b.method, b.target, body)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	req.Header = b.headers.Clone()
	req.ContentLength = b.payload.size
	req.GetBody = b.payload.open
	return req, nil
}

// payload is a request body held in memory or read from a file on every request.
type payload struct {
	data []byte
	path string
	size int64
}

func newPayload(body, bodyFile string) (payload, error) {
	bodyFile = strings.TrimSpace(bodyFile)
	switch {
	case body != "" && bodyFile != "":
		return payload{}, errors.New("body and body file cannot both be provided")
	case body != "":
		return payload{data: []byte(body), size: int64(len(body))}, nil
	case bodyFile != "":
		info, err := os.Stat(bodyFile)
		if err != nil {
			return payload{}, fmt.Errorf("body file: %w", err)
		}
		if info.IsDir() {
			return payload{}, fmt.Errorf("body file %q is a directory", bodyFile)
		}
		return payload{path: bodyFile, size: info.Size()}, nil
	}
	return payload{}, nil
}

func (p payload) open() (io.ReadCloser, error) {
	switch {
	case p.path != "":
		return os.Open(p.path)
	case len(p.data) > 0:
		return io.NopCloser(bytes.NewReader(p.data)), nil
	}
	return http.NoBody, nil
}
