package reporter

import (
	"github.com/torosent/crankprom/internal/registry"
	"github.com/torosent/crankprom/internal/sample"
)

// DefaultPrefix yields the bzt_test_* names existing BlazeMeter dashboards query.
const DefaultPrefix = "bzt_test_"

// Base names of the load-test metrics. The exposed name is prefix + base name.
const (
	SendBytes                = "send_bytes"
	AvgResponseTimeSeconds   = "avg_response_time_seconds"
	AvgLatencyTimeSeconds    = "avg_latency_time_seconds"
	AvgConnectionTimeSeconds = "avg_connection_time_seconds"
	ConcurrentUsers          = "concurrent_users"
	SuccessRequest           = "success_request"
	ErrorRequest             = "error_request"
	ResponseTimeSeconds      = "response_time_seconds"
	LatencyTimeSeconds       = "latency_time_seconds"
	ConnectionTimeSeconds    = "connection_time_seconds"
	SendBytesGauge           = "send_bytes_gauge"
	Throughput               = "throughput"
)

type bucketClass int

const (
	noBuckets bucketClass = iota
	timeBuckets
	byteBuckets
)

// instrumentColumn maps one metric onto the ResultSet field it publishes. The operation is
// implied by the kind: histograms observe, gauges set, counters increment.
type instrumentColumn struct {
	name    string
	help    string
	kind    registry.Kind
	buckets bucketClass
	field   func(*sample.ResultSet) float64
}

var instrumentColumns = []instrumentColumn{
	{SendBytes, "Provide BlazeMeter test send bytes results", registry.KindHistogram, byteBuckets,
		func(rs *sample.ResultSet) float64 { return rs.Bytes }},
	{AvgResponseTimeSeconds, "Provide BlazeMeter test average response time results", registry.KindHistogram, timeBuckets,
		func(rs *sample.ResultSet) float64 { return rs.AvgRT }},
	{AvgLatencyTimeSeconds, "Provide BlazeMeter test average latency time results", registry.KindHistogram, timeBuckets,
		func(rs *sample.ResultSet) float64 { return rs.AvgLT }},
	{AvgConnectionTimeSeconds, "Provide BlazeMeter test average connection time results", registry.KindHistogram, timeBuckets,
		func(rs *sample.ResultSet) float64 { return rs.AvgCT }},
	{ConcurrentUsers, "Provide BlazeMeter test concurrent users", registry.KindGauge, noBuckets,
		func(rs *sample.ResultSet) float64 { return rs.Concurrency }},
	{SuccessRequest, "Provide BlazeMeter test success request count", registry.KindCounter, noBuckets,
		func(rs *sample.ResultSet) float64 { return float64(rs.Succ) }},
	{ErrorRequest, "Provide BlazeMeter test error request count", registry.KindCounter, noBuckets,
		func(rs *sample.ResultSet) float64 { return float64(rs.Fail) }},
	{ResponseTimeSeconds, "Provide BlazeMeter test response times", registry.KindGauge, noBuckets,
		func(rs *sample.ResultSet) float64 { return rs.AvgRT }},
	{LatencyTimeSeconds, "Provide BlazeMeter test latency times", registry.KindGauge, noBuckets,
		func(rs *sample.ResultSet) float64 { return rs.AvgLT }},
	{ConnectionTimeSeconds, "Provide BlazeMeter test connection times", registry.KindGauge, noBuckets,
		func(rs *sample.ResultSet) float64 { return rs.AvgCT }},
	{SendBytesGauge, "Provide BlazeMeter test send bytes", registry.KindGauge, noBuckets,
		func(rs *sample.ResultSet) float64 { return rs.Bytes }},
	{Throughput, "Provide BlazeMeter throughput", registry.KindCounter, noBuckets,
		func(rs *sample.ResultSet) float64 { return float64(rs.Throughput) }},
}

// Definitions returns the registry definitions of every load-test metric.
func Definitions(prefix string, timeBounds, byteBounds []float64) []registry.Definition {
	defs := make([]registry.Definition, 0, len(instrumentColumns))
	for _, col := range instrumentColumns {
		def := registry.Definition{
			Name:   prefix + col.name,
			Help:   col.help,
			Kind:   col.kind,
			Labels: sample.LabelSchema,
		}
		switch col.buckets {
		case timeBuckets:
			def.Buckets = timeBounds
		case byteBuckets:
			def.Buckets = byteBounds
		}
		defs = append(defs, def)
	}
	return defs
}
