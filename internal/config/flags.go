package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crankprom",
		Short:         "Publish aggregated load-test samples as Prometheus metrics",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	flags.StringP("port", "p", DefaultPort, "Port serving /metrics (0 picks a free port)")
	flags.String("host", "", "Host to listen on (empty means all interfaces)")
	flags.Duration("interval", DefaultInterval, "Publish cycle interval")
	flags.String("metric-prefix", DefaultMetricPrefix, "Prefix of the load-test metric names")
	flags.Float64Slice("time-buckets", nil, "Histogram bounds for timing metrics, in seconds")
	flags.Float64Slice("byte-buckets", nil, "Histogram bounds for send_bytes")
	flags.Bool("runtime-metrics", true, "Expose Go runtime and process metrics")

	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")

	flags.Bool("ingest-http", true, "Accept samples on POST /api/v1/samples")
	flags.Bool("ingest-websocket", true, "Accept samples on the /api/v1/samples/stream WebSocket")
	flags.String("ingest-file", "", "Follow a JSONL file of samples")
	flags.String("replay", "", "Publish the samples of a JSON or YAML file once at startup")

	flags.String("target", "", "Target URL to load test with the built-in producer")
	flags.String("method", "GET", "HTTP method of the built-in producer")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body")
	flags.String("body-file", "", "Path to a file containing the request body")
	flags.String("label", "", "Test label of the built-in producer's samples (default: target path)")
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.IntP("rate", "r", 0, "Requests per second limit (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to generate load (e.g. 30s, 1m)")
	flags.IntP("total", "t", 0, "Total number of requests to send (0 means unlimited)")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Int("retries", 0, "Number of retries per request")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model: uniform or poisson")

	flags.String("tracing-endpoint", "", "OTLP endpoint receiving publish-cycle traces")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of traces to sample (0.0-1.0)")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\nUsage: %s\n\nFlags:\n", cmd.Short, cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// overrides copies explicitly set flags. The first getter error sticks.
type overrides struct {
	fs  *pflag.FlagSet
	err error
}

func override[T any](o *overrides, name string, get func(string) (T, error), dst *T) {
	if o.err != nil || !o.fs.Changed(name) {
		return
	}
	val, err := get(name)
	if err != nil {
		o.err = fmt.Errorf("--%s: %w", name, err)
		return
	}
	*dst = val
}

// applyFlagOverrides applies explicitly set flags on top of cfg.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	o := &overrides{fs: fs}

	override(o, "port", getTrimmed(fs), &cfg.Port)
	override(o, "host", fs.GetString, &cfg.Host)
	override(o, "interval", fs.GetDuration, &cfg.Interval)
	override(o, "metric-prefix", fs.GetString, &cfg.MetricPrefix)
	override(o, "time-buckets", fs.GetFloat64Slice, &cfg.Buckets.Time)
	override(o, "byte-buckets", fs.GetFloat64Slice, &cfg.Buckets.Bytes)
	override(o, "runtime-metrics", fs.GetBool, &cfg.RuntimeMetrics)
	override(o, "log-level", fs.GetString, &cfg.Log.Level)
	override(o, "log-format", fs.GetString, &cfg.Log.Format)
	override(o, "ingest-http", fs.GetBool, &cfg.Ingest.HTTP)
	override(o, "ingest-websocket", fs.GetBool, &cfg.Ingest.WebSocket)
	override(o, "ingest-file", fs.GetString, &cfg.Ingest.File)
	override(o, "replay", fs.GetString, &cfg.Ingest.Replay)

	load := &cfg.Load
	override(o, "target", fs.GetString, &load.Target)
	override(o, "method", fs.GetString, &load.Method)
	override(o, "header", headerFlag(fs, load.Headers), &load.Headers)
	override(o, "body", fs.GetString, &load.Body)
	override(o, "body-file", getTrimmed(fs), &load.BodyFile)
	override(o, "label", fs.GetString, &load.Label)
	override(o, "concurrency", fs.GetInt, &load.Concurrency)
	override(o, "rate", fs.GetInt, &load.Rate)
	override(o, "duration", fs.GetDuration, &load.Duration)
	override(o, "total", fs.GetInt, &load.Total)
	override(o, "timeout", fs.GetDuration, &load.Timeout)
	override(o, "retries", fs.GetInt, &load.Retries)
	override(o, "arrival-model", func(name string) (ArrivalModel, error) {
		val, err := fs.GetString(name)
		if err != nil {
			return "", err
		}
		return parseArrival(val)
	}, &load.Arrival)

	override(o, "tracing-endpoint", fs.GetString, &cfg.Tracing.Endpoint)
	override(o, "tracing-protocol", fs.GetString, &cfg.Tracing.Protocol)
	override(o, "tracing-insecure", fs.GetBool, &cfg.Tracing.Insecure)
	override(o, "tracing-sample-rate", fs.GetFloat64, &cfg.Tracing.SampleRate)
	return o.err
}

func getTrimmed(fs *pflag.FlagSet) func(string) (string, error) {
	return func(name string) (string, error) {
		val, err := fs.GetString(name)
		return strings.TrimSpace(val), err
	}
}

// headerFlag merges repeated key=value --header flags into the headers from the file.
func headerFlag(fs *pflag.FlagSet, base map[string]string) func(string) (map[string]string, error) {
	return func(name string) (map[string]string, error) {
		values, err := fs.GetStringSlice(name)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]string, len(base)+len(values))
		for key, val := range base {
			merged[key] = val
		}
		for _, raw := range values {
			key, val, ok := strings.Cut(raw, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return nil, fmt.Errorf("header %q: expected key=value", raw)
			}
			merged[strings.TrimSpace(key)] = strings.TrimSpace(val)
		}
		return parseHeaders(merged)
	}
}
