package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrHelpRequested is returned by Load after the usage text has been printed.
var ErrHelpRequested = errors.New("help requested")

// Loader reads flags and the optional configuration file they name.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when neither a file nor a flag sets a value.
func Defaults() *Config {
	return &Config{
		Port:           DefaultPort,
		Interval:       DefaultInterval,
		MetricPrefix:   DefaultMetricPrefix,
		RuntimeMetrics: true,
		Log:            LogConfig{Level: "info", Format: "text"},
		Ingest:         IngestConfig{HTTP: true, WebSocket: true},
		Load: LoadConfig{
			Method:      http.MethodGet,
			Concurrency: 1,
			Timeout:     30 * time.Second,
			Arrival:     ArrivalModelUniform,
		},
		Tracing: TracingConfig{SampleRate: 1.0},
	}
}

// Load layers defaults, the --config file and explicitly set flags, in that order.
// Running without arguments is valid and serves on the default port.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	flags := cmd.Flags()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	cfg := Defaults()
	cfg.ConfigFile, _ = flags.GetString("config")
	if cfg.ConfigFile != "" {
		v := viper.New()
		v.SetConfigFile(cfg.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
			return nil, err
		}
	}
	if err := applyFlagOverrides(cfg, flags); err != nil {
		return nil, err
	}

	cfg.Load.Method = strings.ToUpper(strings.TrimSpace(cfg.Load.Method))
	cfg.Load.Target = strings.TrimSpace(cfg.Load.Target)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	return cfg, nil
}

// applyConfigSettings copies the keys present in a decoded config file onto cfg.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	s, err := newSection(settings)
	if err != nil {
		return err
	}

	read(s, &cfg.Port, asPort, "port")
	read(s, &cfg.Host, trimmed, "host")
	read(s, &cfg.Interval, asDuration, "interval")
	read(s, &cfg.MetricPrefix, trimmed, "metric_prefix")
	read(s, &cfg.RuntimeMetrics, asBool, "runtime_metrics")
	s.nested("buckets", func(v interface{}) error { return applyBuckets(&cfg.Buckets, v) })
	s.nested("log", func(v interface{}) error { return applyLog(&cfg.Log, v) })
	s.nested("ingest", func(v interface{}) error { return applyIngest(&cfg.Ingest, v) })
	s.nested("load", func(v interface{}) error { return applyLoad(&cfg.Load, v) })
	s.nested("tracing", func(v interface{}) error { return applyTracing(&cfg.Tracing, v) })
	return s.err
}

func applyBuckets(buckets *BucketsConfig, value interface{}) error {
	s, err := newSection(value)
	if err != nil {
		return err
	}
	read(s, &buckets.Time, asFloat64Slice, "time")
	read(s, &buckets.Bytes, asFloat64Slice, "bytes")
	return s.err
}

func applyLog(log *LogConfig, value interface{}) error {
	s, err := newSection(value)
	if err != nil {
		return err
	}
	read(s, &log.Level, asString, "level")
	read(s, &log.Format, asString, "format")
	return s.err
}

func applyIngest(ingest *IngestConfig, value interface{}) error {
	s, err := newSection(value)
	if err != nil {
		return err
	}
	read(s, &ingest.HTTP, asBool, "http")
	read(s, &ingest.WebSocket, asBool, "websocket")
	read(s, &ingest.File, trimmed, "file")
	read(s, &ingest.Replay, trimmed, "replay")
	return s.err
}

func applyLoad(load *LoadConfig, value interface{}) error {
	s, err := newSection(value)
	if err != nil {
		return err
	}

	var method string
	read(s, &load.Target, asString, "target", "url")
	read(s, &method, trimmed, "method")
	read(s, &load.Headers, parseHeaders, "headers")
	read(s, &load.Body, asString, "body")
	read(s, &load.BodyFile, trimmed, "body_file")
	read(s, &load.Label, trimmed, "label")
	read(s, &load.Concurrency, asInt, "concurrency")
	read(s, &load.Rate, asInt, "rate")
	read(s, &load.Total, asInt, "total")
	read(s, &load.Retries, asInt, "retries")
	read(s, &load.Duration, asDuration, "duration")
	read(s, &load.Timeout, asDuration, "timeout")
	read(s, &load.Arrival, parseArrival, "arrival")
	read(s, &load.Patterns, parseLoadPatterns, "patterns", "load_patterns")
	read(s, &load.Endpoints, parseEndpoints, "endpoints")
	if method != "" {
		load.Method = method
	}
	return s.err
}

func applyTracing(tracing *TracingConfig, value interface{}) error {
	s, err := newSection(value)
	if err != nil {
		return err
	}
	read(s, &tracing.Endpoint, asString, "endpoint")
	read(s, &tracing.Protocol, asString, "protocol")
	read(s, &tracing.ServiceName, asString, "service_name")
	read(s, &tracing.Insecure, asBool, "insecure")
	read(s, &tracing.SampleRate, asFloat64, "sample_rate")
	read(s, &tracing.Propagate, asBoolPtr, "propagate")
	return s.err
}

// parseHeaders canonicalizes header names. An empty map yields nil.
func parseHeaders(value interface{}) (map[string]string, error) {
	hdrs, err := asStringMap(value)
	if err != nil || len(hdrs) == 0 {
		return nil, err
	}
	out := make(map[string]string, len(hdrs))
	for key, val := range hdrs {
		out[http.CanonicalHeaderKey(strings.TrimSpace(key))] = val
	}
	return out, nil
}

// parseArrival accepts either the model name or a map with a model key.
func parseArrival(value interface{}) (ArrivalModel, error) {
	if value == nil {
		return ArrivalModelUniform, nil
	}
	if _, isString := value.(string); !isString {
		s, err := newSection(value)
		if err != nil {
			return "", err
		}
		raw, ok := s.lookup("model")
		if !ok {
			return "", fmt.Errorf("model field is required")
		}
		return parseArrival(raw)
	}
	name, err := trimmed(value)
	if err != nil || name == "" {
		return ArrivalModelUniform, err
	}
	return ArrivalModel(strings.ToLower(name)), nil
}

func parseLoadPatterns(value interface{}) ([]LoadPattern, error) {
	return readList(value, func(s *section) LoadPattern {
		var p LoadPattern
		var kind string
		read(s, &p.Name, trimmed, "name")
		read(s, &kind, trimmed, "type")
		read(s, &p.FromRPS, asInt, "from_rps")
		read(s, &p.ToRPS, asInt, "to_rps")
		read(s, &p.RPS, asInt, "rps")
		read(s, &p.Duration, asDuration, "duration")
		read(s, &p.Steps, parseLoadSteps, "steps")
		p.Type = LoadPatternType(strings.ToLower(kind))
		return p
	})
}

func parseLoadSteps(value interface{}) ([]LoadStep, error) {
	return readList(value, func(s *section) LoadStep {
		var step LoadStep
		read(s, &step.RPS, asInt, "rps")
		read(s, &step.Duration, asDuration, "duration")
		return step
	})
}

func parseEndpoints(value interface{}) ([]Endpoint, error) {
	return readList(value, func(s *section) Endpoint {
		ep := Endpoint{Weight: 1}
		read(s, &ep.Name, trimmed, "name")
		read(s, &ep.Weight, asInt, "weight")
		read(s, &ep.Method, trimmed, "method")
		read(s, &ep.URL, trimmed, "url", "target")
		read(s, &ep.Body, asString, "body")
		read(s, &ep.Headers, parseHeaders, "headers")
		ep.Method = strings.ToUpper(ep.Method)
		return ep
	})
}
