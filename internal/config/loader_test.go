package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsPort(t *testing.T) {
	for _, tc := range []struct {
		input   interface{}
		want    string
		wantErr bool
	}{
		{"9090", "9090", false},
		{" 8080 ", "8080", false},
		{9100, "9100", false},
		{float64(9200), "9200", false},
		{91.5, "", true},
		{true, "", true},
	} {
		got, err := asPort(tc.input)
		if tc.wantErr {
			assert.Error(t, err, "asPort(%v)", tc.input)
			continue
		}
		require.NoError(t, err, "asPort(%v)", tc.input)
		assert.Equal(t, tc.want, got)
	}
}

func TestAsInt(t *testing.T) {
	for _, tc := range []struct {
		input   interface{}
		want    int
		wantErr bool
	}{
		{nil, 0, false},
		{42, 42, false},
		{int64(7), 7, false},
		{float64(3), 3, false},
		{"12", 12, false},
		{"", 0, false},
		{2.5, 0, true},
		{"abc", 0, true},
		{[]int{1}, 0, true},
		{false, 0, true},
	} {
		got, err := asInt(tc.input)
		if tc.wantErr {
			assert.Error(t, err, "asInt(%v)", tc.input)
			continue
		}
		require.NoError(t, err, "asInt(%v)", tc.input)
		assert.Equal(t, tc.want, got)
	}
}

func TestAsDuration(t *testing.T) {
	for _, tc := range []struct {
		input   interface{}
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{5, 5 * time.Second, false},
		{0.5, 500 * time.Millisecond, false},
		{"", 0, false},
		{"soon", 0, true},
		{true, 0, true},
	} {
		got, err := asDuration(tc.input)
		if tc.wantErr {
			assert.Error(t, err, "asDuration(%v)", tc.input)
			continue
		}
		require.NoError(t, err, "asDuration(%v)", tc.input)
		assert.Equal(t, tc.want, got)
	}
}

func TestAsFloat64Slice(t *testing.T) {
	got, err := asFloat64Slice([]interface{}{0.1, 1, "2.5"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 1, 2.5}, got)

	got, err = asFloat64Slice("0.005, 0.01")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.005, 0.01}, got)

	_, err = asFloat64Slice([]interface{}{"x"})
	assert.Error(t, err)
	_, err = asFloat64Slice(map[string]interface{}{})
	assert.Error(t, err)
}

func TestSettingKeysFoldSpelling(t *testing.T) {
	for _, key := range []string{"metric_prefix", "metricPrefix", "metric-prefix", "METRICPREFIX"} {
		cfg := Defaults()
		require.NoError(t, applyConfigSettings(cfg, map[string]interface{}{key: "k6_"}))
		assert.Equal(t, "k6_", cfg.MetricPrefix, key)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	err := applyConfigSettings(cfg, map[string]interface{}{
		"port":          9091,
		"metric_prefix": "jmeter_",
		"load": map[string]interface{}{
			"target":  "http://example.com",
			"method":  "post",
			"timeout": "5s",
			"retries": 2,
			"headers": map[string]interface{}{"x-api-key": "secret"},
			"arrival": map[string]interface{}{"model": "Poisson"},
			"patterns": []interface{}{
				map[string]interface{}{"type": "Step", "steps": []interface{}{map[string]interface{}{"rps": 5, "duration": "1s"}}},
			},
		},
		"tracing": map[string]interface{}{"propagate": false},
	})
	require.NoError(t, err)

	assert.Equal(t, "9091", cfg.Port)
	assert.Equal(t, "jmeter_", cfg.MetricPrefix)
	assert.Equal(t, "http://example.com", cfg.Load.Target)
	assert.Equal(t, "post", cfg.Load.Method)
	assert.Equal(t, 5*time.Second, cfg.Load.Timeout)
	assert.Equal(t, 2, cfg.Load.Retries)
	assert.Equal(t, map[string]string{"X-Api-Key": "secret"}, cfg.Load.Headers)
	assert.Equal(t, ArrivalModelPoisson, cfg.Load.Arrival)
	require.Len(t, cfg.Load.Patterns, 1)
	assert.Equal(t, LoadPatternTypeStep, cfg.Load.Patterns[0].Type)
	assert.Equal(t, []LoadStep{{RPS: 5, Duration: time.Second}}, cfg.Load.Patterns[0].Steps)
	require.NotNil(t, cfg.Tracing.Propagate)
	assert.False(t, *cfg.Tracing.Propagate)
}

func TestApplyConfigSettingsReportsPath(t *testing.T) {
	err := applyConfigSettings(Defaults(), map[string]interface{}{"load": "fast"})
	assert.ErrorContains(t, err, "load")

	err = applyConfigSettings(Defaults(), map[string]interface{}{
		"load": map[string]interface{}{"endpoints": []interface{}{map[string]interface{}{"weight": 1.5}}},
	})
	assert.ErrorContains(t, err, "load: endpoints: index 0: weight")
}

func parsedFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Load.Headers = map[string]string{"Authorization": "Bearer file"}
	fs := parsedFlags(t,
		"--port= 0 ",
		"--time-buckets=0.1,1",
		"--concurrency=5",
		"--header=x-test=123",
		"--arrival-model=POISSON",
		"--tracing-endpoint=localhost:4318",
		"--tracing-protocol=http",
	)
	require.NoError(t, applyFlagOverrides(cfg, fs))

	assert.Equal(t, "0", cfg.Port)
	assert.Equal(t, []float64{0.1, 1}, cfg.Buckets.Time)
	assert.Equal(t, 5, cfg.Load.Concurrency)
	assert.Equal(t, map[string]string{"Authorization": "Bearer file", "X-Test": "123"}, cfg.Load.Headers)
	assert.Equal(t, ArrivalModelPoisson, cfg.Load.Arrival)
	assert.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, "http", cfg.Tracing.Protocol)
	assert.Equal(t, time.Second, cfg.Interval, "unset flags must not override")
}

func TestApplyFlagOverridesRejectsMalformedHeader(t *testing.T) {
	err := applyFlagOverrides(Defaults(), parsedFlags(t, "--header=novalue"))
	assert.ErrorContains(t, err, "--header")
}
