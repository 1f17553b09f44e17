package httpclient

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/crankprom/internal/config"
)

func TestEndpointsFromTarget(t *testing.T) {
	eps, err := Endpoints(config.LoadConfig{
		Target:  "http://example.com/api/login?x=1",
		Method:  "POST",
		Headers: map[string]string{"X-Env": "test"},
		Body:    "payload",
	})
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "/api/login", eps[0].Label)
	assert.Equal(t, 1, eps[0].Weight)
	assert.Equal(t, "POST", eps[0].Builder.Method())

	req, err := eps[0].Builder.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", req.Header.Get("X-Env"))
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestEndpointsLabelOverride(t *testing.T) {
	eps, err := Endpoints(config.LoadConfig{Target: "http://example.com/", Label: "home"})
	require.NoError(t, err)
	assert.Equal(t, "home", eps[0].Label)
}

func TestEndpointsInheritAndResolve(t *testing.T) {
	eps, err := Endpoints(config.LoadConfig{
		Target:  "http://example.com/base/",
		Method:  "GET",
		Headers: map[string]string{"X-Env": "test", "X-Over": "base"},
		Endpoints: []config.Endpoint{
			{Name: "search", Weight: 3, URL: "search?q=go", Headers: map[string]string{"x-over": "endpoint"}},
			{Weight: 1, Method: "POST", URL: "http://other.example.com/items", Body: "{}"},
			{Name: "root"},
		},
	})
	require.NoError(t, err)
	require.Len(t, eps, 3)

	assert.Equal(t, "search", eps[0].Label)
	assert.Equal(t, 3, eps[0].Weight)
	assert.Equal(t, "http://example.com/base/search?q=go", eps[0].Builder.Target())
	req, err := eps[0].Builder.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", req.Header.Get("X-Env"))
	assert.Equal(t, "endpoint", req.Header.Get("X-Over"))

	assert.Equal(t, "/items", eps[1].Label)
	assert.Equal(t, "POST", eps[1].Builder.Method())
	assert.Equal(t, "http://other.example.com/items", eps[1].Builder.Target())

	assert.Equal(t, "root", eps[2].Label)
	assert.Equal(t, "http://example.com/base/", eps[2].Builder.Target())
}

func TestEndpointsRequireURLWithoutTarget(t *testing.T) {
	_, err := Endpoints(config.LoadConfig{Endpoints: []config.Endpoint{{Name: "a"}}})
	assert.Error(t, err)
}

func TestSelectorHonorsWeights(t *testing.T) {
	heavy := Endpoint{Label: "heavy", Weight: 9}
	light := Endpoint{Label: "light", Weight: 1}
	s := newSelector([]Endpoint{heavy, light}, 42)

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[s.pick().Label]++
	}
	assert.InDelta(t, 9000, counts["heavy"], 500)
	assert.InDelta(t, 1000, counts["light"], 500)
}
