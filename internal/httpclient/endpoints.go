package httpclient

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/torosent/crankprom/internal/config"
)

// Endpoint is a request template with its test label and selection weight.
type Endpoint struct {
	Label   string
	Weight  int
	Builder *RequestBuilder
}

// Endpoints builds the request templates of a load configuration. Without explicit
// endpoints the target itself is the single endpoint. Endpoint fields left empty fall back
// to the load-level method, headers and body; a relative endpoint URL is resolved against
// the target.
func Endpoints(load config.LoadConfig) ([]Endpoint, error) {
	target := strings.TrimSpace(load.Target)
	if len(load.Endpoints) == 0 {
		builder, err := NewRequestBuilder(Template{
			Method:   load.Method,
			URL:      target,
			Headers:  load.Headers,
			Body:     load.Body,
			BodyFile: load.BodyFile,
		})
		if err != nil {
			return nil, err
		}
		label := load.Label
		if label == "" {
			label = defaultLabel(target)
		}
		return []Endpoint{{Label: label, Weight: 1, Builder: builder}}, nil
	}

	endpoints := make([]Endpoint, 0, len(load.Endpoints))
	for idx, ep := range load.Endpoints {
		name := strings.TrimSpace(ep.Name)
		if name == "" {
			name = fmt.Sprintf("index %d", idx)
		}
		resolved, err := resolveEndpointURL(target, ep)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", name, err)
		}

		method := ep.Method
		if strings.TrimSpace(method) == "" {
			method = load.Method
		}
		body, bodyFile := load.Body, load.BodyFile
		if ep.Body != "" {
			body, bodyFile = ep.Body, ""
		}
		builder, err := NewRequestBuilder(Template{
			Method:   method,
			URL:      resolved,
			Headers:  mergeHeaders(load.Headers, ep.Headers),
			Body:     body,
			BodyFile: bodyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", name, err)
		}

		weight := ep.Weight
		if weight <= 0 {
			weight = 1
		}
		label := strings.TrimSpace(ep.Name)
		if label == "" {
			label = defaultLabel(resolved)
		}
		endpoints = append(endpoints, Endpoint{Label: label, Weight: weight, Builder: builder})
	}
	return endpoints, nil
}

// defaultLabel names samples after the URL path, like the load tools feeding crankprom do.
func defaultLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return target
	}
	return u.Path
}

func resolveEndpointURL(base string, ep config.Endpoint) (string, error) {
	raw := strings.TrimSpace(ep.URL)
	if raw == "" {
		if base == "" {
			return "", fmt.Errorf("url is required when load.target is empty")
		}
		return base, nil
	}
	rel, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint url %q: %w", raw, err)
	}
	if rel.IsAbs() || base == "" {
		return raw, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base target %q: %w", base, err)
	}
	return baseURL.ResolveReference(rel).String(), nil
}

func mergeHeaders(base map[string]string, overrides map[string]string) map[string]string {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
	}
	for k, v := range overrides {
		key := http.CanonicalHeaderKey(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		merged[key] = v
	}
	return merged
}

// selector picks endpoints at random in proportion to their weights.
type selector struct {
	endpoints   []Endpoint
	totalWeight int
	mu          sync.Mutex
	rnd         *rand.Rand
}

func newSelector(endpoints []Endpoint, seed int64) *selector {
	total := 0
	for _, ep := range endpoints {
		total += ep.Weight
	}
	return &selector{
		endpoints:   endpoints,
		totalWeight: total,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (s *selector) pick() Endpoint {
	if len(s.endpoints) == 1 || s.totalWeight <= 0 {
		return s.endpoints[0]
	}
	s.mu.Lock()
	n := s.rnd.Intn(s.totalWeight)
	s.mu.Unlock()

	cumulative := 0
	for _, ep := range s.endpoints {
		cumulative += ep.Weight
		if n < cumulative {
			return ep
		}
	}
	return s.endpoints[len(s.endpoints)-1]
}
