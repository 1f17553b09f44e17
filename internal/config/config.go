package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort         = "9090"
	DefaultInterval     = time.Second
	DefaultMetricPrefix = "bzt_test_"
)

type Config struct {
	ConfigFile     string        `mapstructure:"-"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Interval       time.Duration `mapstructure:"interval"`
	MetricPrefix   string        `mapstructure:"metric_prefix"`
	Buckets        BucketsConfig `mapstructure:"buckets"`
	RuntimeMetrics bool          `mapstructure:"runtime_metrics"`
	Log            LogConfig     `mapstructure:"log"`
	Ingest         IngestConfig  `mapstructure:"ingest"`
	Load           LoadConfig    `mapstructure:"load"`
	Tracing        TracingConfig `mapstructure:"tracing"`
}

// BucketsConfig holds histogram bucket bounds. Empty slices select the Prometheus defaults.
type BucketsConfig struct {
	Time  []float64 `mapstructure:"time"`
	Bytes []float64 `mapstructure:"bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IngestConfig selects the sources feeding samples to the reporter.
type IngestConfig struct {
	HTTP      bool   `mapstructure:"http"`
	WebSocket bool   `mapstructure:"websocket"`
	File      string `mapstructure:"file"`
	Replay    string `mapstructure:"replay"`
}

// LoadConfig configures the built-in HTTP load producer. It stays idle unless a target or
// at least one endpoint is set.
type LoadConfig struct {
	Target      string            `mapstructure:"target"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Body        string            `mapstructure:"body"`
	BodyFile    string            `mapstructure:"body_file"`
	Label       string            `mapstructure:"label"`
	Concurrency int               `mapstructure:"concurrency"`
	Rate        int               `mapstructure:"rate"`
	Duration    time.Duration     `mapstructure:"duration"`
	Total       int               `mapstructure:"total"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Retries     int               `mapstructure:"retries"`
	Arrival     ArrivalModel      `mapstructure:"arrival"`
	Patterns    []LoadPattern     `mapstructure:"patterns"`
	Endpoints   []Endpoint        `mapstructure:"endpoints"`
}

type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

type LoadPattern struct {
	Name     string          `mapstructure:"name"`
	Type     LoadPatternType `mapstructure:"type"`
	FromRPS  int             `mapstructure:"from_rps"`
	ToRPS    int             `mapstructure:"to_rps"`
	Duration time.Duration   `mapstructure:"duration"`
	Steps    []LoadStep      `mapstructure:"steps"`
	RPS      int             `mapstructure:"rps"`
}

type LoadStep struct {
	RPS      int           `mapstructure:"rps"`
	Duration time.Duration `mapstructure:"duration"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Endpoint is one weighted request of the load producer. Its name becomes the test label.
type Endpoint struct {
	Name    string            `mapstructure:"name"`
	Weight  int               `mapstructure:"weight"`
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Body    string            `mapstructure:"body"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, directly or through
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != ""
}

// ShouldPropagate defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Enabled reports whether the built-in load producer has anything to request.
func (l LoadConfig) Enabled() bool {
	return strings.TrimSpace(l.Target) != "" || len(l.Endpoints) > 0
}

// ListenAddr returns the exposition listen address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if port, err := strconv.Atoi(strings.TrimSpace(c.Port)); err != nil {
		issues = append(issues, fmt.Sprintf("port %q is not a number", c.Port))
	} else if port < 0 || port > 65535 {
		issues = append(issues, fmt.Sprintf("port must be between 0 and 65535, got %d", port))
	}
	if c.Interval <= 0 {
		issues = append(issues, "interval must be > 0")
	}
	if strings.TrimSpace(c.MetricPrefix) == "" {
		issues = append(issues, "metric_prefix must not be empty")
	}
	issues = append(issues, validateBuckets("buckets.time", c.Buckets.Time)...)
	issues = append(issues, validateBuckets("buckets.bytes", c.Buckets.Bytes)...)
	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateLoadConfig(c.Load)...)

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Tracing.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q is not supported", c.Tracing.Protocol))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateBuckets(name string, bounds []float64) []string {
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return []string{fmt.Sprintf("%s must be strictly increasing", name)}
		}
	}
	return nil
}

func validateLogConfig(log LogConfig) []string {
	var issues []string
	switch strings.ToLower(log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("log.level %q is not supported", log.Level))
	}
	switch strings.ToLower(log.Format) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log.format %q is not supported", log.Format))
	}
	return issues
}

func validateLoadConfig(load LoadConfig) []string {
	if !load.Enabled() {
		return nil
	}
	var issues []string
	if strings.TrimSpace(load.Target) == "" {
		for idx, ep := range load.Endpoints {
			if strings.TrimSpace(ep.URL) == "" {
				issues = append(issues, fmt.Sprintf("load.endpoints[%d]: url is required when load.target is empty", idx))
			}
		}
	}
	if load.Body != "" && strings.TrimSpace(load.BodyFile) != "" {
		issues = append(issues, "load.body and load.body_file cannot both be set")
	}
	if load.Concurrency < 1 {
		issues = append(issues, "load.concurrency must be >= 1")
	}
	if load.Rate < 0 {
		issues = append(issues, "load.rate must be >= 0")
	}
	if load.Total < 0 {
		issues = append(issues, "load.total must be >= 0")
	}
	if load.Duration < 0 {
		issues = append(issues, "load.duration must be >= 0")
	}
	if load.Timeout <= 0 {
		issues = append(issues, "load.timeout must be > 0")
	}
	if load.Retries < 0 {
		issues = append(issues, "load.retries must be >= 0")
	}
	switch load.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("load.arrival model %q is not supported", load.Arrival))
	}
	issues = append(issues, validateLoadPatterns(load.Patterns)...)
	issues = append(issues, validateEndpoints(load.Endpoints)...)
	return issues
}

func validateLoadPatterns(patterns []LoadPattern) []string {
	var issues []string
	for idx, pattern := range patterns {
		typeLabel := strings.TrimSpace(string(pattern.Type))
		if typeLabel == "" {
			issues = append(issues, fmt.Sprintf("load.patterns[%d]: type is required", idx))
			continue
		}
		switch LoadPatternType(strings.ToLower(typeLabel)) {
		case LoadPatternTypeRamp:
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("load.patterns[%d]: duration must be > 0 for ramp", idx))
			}
			if pattern.FromRPS < 0 || pattern.ToRPS < 0 {
				issues = append(issues, fmt.Sprintf("load.patterns[%d]: from_rps and to_rps must be >= 0", idx))
			}
		case LoadPatternTypeStep:
			if len(pattern.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("load.patterns[%d]: steps are required for step pattern", idx))
			}
			for stepIdx, step := range pattern.Steps {
				if step.RPS < 0 {
					issues = append(issues, fmt.Sprintf("load.patterns[%d].steps[%d]: rps must be >= 0", idx, stepIdx))
				}
				if step.Duration <= 0 {
					issues = append(issues, fmt.Sprintf("load.patterns[%d].steps[%d]: duration must be > 0", idx, stepIdx))
				}
			}
		case LoadPatternTypeSpike:
			if pattern.RPS <= 0 {
				issues = append(issues, fmt.Sprintf("load.patterns[%d]: rps must be > 0 for spike", idx))
			}
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("load.patterns[%d]: duration must be > 0 for spike", idx))
			}
		default:
			issues = append(issues, fmt.Sprintf("load.patterns[%d]: unsupported type %q", idx, pattern.Type))
		}
	}
	return issues
}

func validateEndpoints(endpoints []Endpoint) []string {
	var issues []string
	seenNames := map[string]int{}
	for idx, ep := range endpoints {
		if ep.Weight <= 0 {
			issues = append(issues, fmt.Sprintf("load.endpoints[%d]: weight must be >= 1", idx))
		}
		name := strings.TrimSpace(ep.Name)
		if name != "" {
			key := strings.ToLower(name)
			if prev, ok := seenNames[key]; ok {
				issues = append(issues, fmt.Sprintf("load.endpoints[%d]: duplicate name also defined at index %d", idx, prev))
			} else {
				seenNames[key] = idx
			}
		}
	}
	return issues
}
