// Package sample defines the per-second aggregated load-test results that crankprom
// ingests, and their JSON wire format.
//
// An [AggregatedSample] is one time bucket of a load test. It maps a test label to a
// [ResultSet] holding the bucket's byte count, average timings, concurrency, request
// counts and the result codes seen during the bucket.
//
// Result codes are consumed through a forward-only cursor, [ResultCodes]. Each call to
// [ResultCodes.Next] yields the next code in enumeration order until the cursor is
// exhausted.
package sample

import (
	"fmt"
	"sort"
)

const (
	// LabelTestLabel is the label name carrying the test label.
	LabelTestLabel = "test_label"
	// LabelResponseCode is the label name carrying the response code.
	LabelResponseCode = "response_code"
)

// LabelSchema is the ordered label schema shared by every load-test instrument.
var LabelSchema = []string{LabelTestLabel, LabelResponseCode}

// LabelKey identifies one labeled series of a load-test metric.
type LabelKey struct {
	TestLabel    string
	ResponseCode string
}

// Labels renders the key as a label assignment for LabelSchema.
func (k LabelKey) Labels() map[string]string {
	return map[string]string{
		LabelTestLabel:    k.TestLabel,
		LabelResponseCode: k.ResponseCode,
	}
}

func (k LabelKey) String() string {
	return fmt.Sprintf("%s=%q,%s=%q", LabelTestLabel, k.TestLabel, LabelResponseCode, k.ResponseCode)
}

// ResultSet is the data recorded for one test label during one bucket.
type ResultSet struct {
	Bytes       float64 // total bytes transferred
	AvgCT       float64 // average connect time, seconds
	AvgLT       float64 // average latency (time to first byte), seconds
	AvgRT       float64 // average response time, seconds
	Concurrency float64 // active virtual users
	Succ        int64
	Fail        int64
	Throughput  int64 // requests in this bucket
	RC          *ResultCodes
}

// AggregatedSample is one time bucket of results keyed by test label.
// The empty label carries the overall totals and is never published.
type AggregatedSample struct {
	Timestamp int64 // unix seconds, 0 when unknown
	Current   map[string]*ResultSet

	order []string
}

// New returns an empty sample for the given bucket timestamp.
func New(ts int64) AggregatedSample {
	return AggregatedSample{Timestamp: ts, Current: map[string]*ResultSet{}}
}

// Add sets the result set of label. Labels keep the order of their first Add.
func (s *AggregatedSample) Add(label string, rs *ResultSet) {
	if s.Current == nil {
		s.Current = map[string]*ResultSet{}
	}
	if _, ok := s.Current[label]; !ok {
		s.order = append(s.order, label)
	}
	s.Current[label] = rs
}

// Labels returns the sample's test labels in the order they were added. Labels written
// to Current directly follow in sorted order.
func (s AggregatedSample) Labels() []string {
	labels := make([]string, 0, len(s.Current))
	seen := make(map[string]bool, len(s.Current))
	for _, label := range s.order {
		if _, ok := s.Current[label]; ok && !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	var rest []string
	for label := range s.Current {
		if !seen[label] {
			rest = append(rest, label)
		}
	}
	sort.Strings(rest)
	return append(labels, rest...)
}

// Len reports the number of test labels in the sample.
func (s AggregatedSample) Len() int {
	return len(s.Current)
}
