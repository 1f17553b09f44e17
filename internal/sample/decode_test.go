package sample_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/crankprom/internal/sample"
)

func TestDecodeBareSample(t *testing.T) {
	data := []byte(`{"labelA": {"bytes": 100, "avg_ct": 0.1, "avg_lt": 0.2, "avg_rt": 0.3,
		"concurrency": 5, "succ": 10, "fail": 1, "throughput": 11, "rc": ["200"]}}`)

	s, err := sample.Decode(data)
	require.NoError(t, err)
	require.Contains(t, s.Current, "labelA")

	rs := s.Current["labelA"]
	assert.Equal(t, 100.0, rs.Bytes)
	assert.Equal(t, 0.1, rs.AvgCT)
	assert.Equal(t, 0.2, rs.AvgLT)
	assert.Equal(t, 0.3, rs.AvgRT)
	assert.Equal(t, 5.0, rs.Concurrency)
	assert.Equal(t, int64(10), rs.Succ)
	assert.Equal(t, int64(1), rs.Fail)
	assert.Equal(t, int64(11), rs.Throughput)
	assert.Equal(t, []sample.CodeCount{{Code: "200", Count: 1}}, rs.RC.Counts())
	assert.Equal(t, int64(0), s.Timestamp)
}

func TestDecodeEnvelopeKeepsCounterOrder(t *testing.T) {
	data := []byte(`{"ts": 1700000000, "current": {
		"": {"succ": 3, "rc": {"500": 1, "200": 2}},
		"search": {"succ": 3, "rc": {"500": 1, "200": 2}}}}`)

	s, err := sample.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), s.Timestamp)
	assert.Equal(t, []string{"", "search"}, s.Labels())
	assert.Equal(t, []sample.CodeCount{{Code: "500", Count: 1}, {Code: "200", Count: 2}}, s.Current["search"].RC.Counts())
}

func TestDecodeNumericCodes(t *testing.T) {
	s, err := sample.Decode([]byte(`{"x": {"rc": [200, "404"]}}`))
	require.NoError(t, err)
	assert.Equal(t, []sample.CodeCount{{Code: "200", Count: 1}, {Code: "404", Count: 1}}, s.Current["x"].RC.Counts())
}

func TestDecodeMissingFieldsDefaultToZero(t *testing.T) {
	s, err := sample.Decode([]byte(`{"x": {}}`))
	require.NoError(t, err)
	rs := s.Current["x"]
	assert.Zero(t, rs.Bytes)
	assert.Zero(t, rs.Succ)
	assert.Equal(t, 0, rs.RC.Len())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		path string
	}{
		{"invalid json", `{"x":`, ""},
		{"not an object", `[1,2]`, ""},
		{"result set not object", `{"x": 3}`, "x"},
		{"string number", `{"x": {"bytes": "12"}}`, "x.bytes"},
		{"negative count", `{"x": {"succ": -1}}`, "x.succ"},
		{"negative bytes", `{"x": {"bytes": -1, "rc": [200]}}`, "x.bytes"},
		{"negative connect time", `{"x": {"avg_ct": -0.5}}`, "x.avg_ct"},
		{"negative latency", `{"x": {"avg_lt": -0.5}}`, "x.avg_lt"},
		{"negative response time", `{"x": {"avg_rt": -0.5}}`, "x.avg_rt"},
		{"negative concurrency", `{"x": {"concurrency": -3}}`, "x.concurrency"},
		{"rc count too large", `{"x": {"rc": {"200": 1e20}}}`, "x.rc.200"},
		{"fractional count", `{"x": {"fail": 1.5}}`, "x.fail"},
		{"bad rc", `{"x": {"rc": "200"}}`, "x.rc"},
		{"bad rc count", `{"x": {"rc": {"200": -2}}}`, "x.rc.200"},
		{"bad ts", `{"ts": "now", "current": {}}`, "ts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sample.Decode([]byte(tt.data))
			require.Error(t, err)
			var decErr *sample.DecodeError
			require.True(t, errors.As(err, &decErr), "got %T", err)
			assert.Equal(t, tt.path, decErr.Path)
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	batch, err := sample.DecodeBatch([]byte(`[{"a": {"succ": 1, "rc": ["200"]}}, {"a": {"succ": 2, "rc": ["200"]}}]`))
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].Current["a"].Succ)
	assert.Equal(t, int64(2), batch[1].Current["a"].Succ)

	single, err := sample.DecodeBatch([]byte(`{"a": {"succ": 4}}`))
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = sample.DecodeBatch([]byte(`[{"a": {"succ": 1}}, {"a": {"succ": -1}}]`))
	var decErr *sample.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "[1].a.succ", decErr.Path)
}

func TestDecodeLargeCountWithoutExpanding(t *testing.T) {
	s, err := sample.Decode([]byte(`{"labelA": {"rc": {"200": 1000000000000, "500": 1}}}`))
	require.NoError(t, err)

	rc := s.Current["labelA"].RC
	assert.Equal(t, 1000000000001, rc.Len())
	assert.Equal(t, []sample.CodeCount{{Code: "200", Count: 1000000000000}, {Code: "500", Count: 1}}, rc.Counts())

	code, ok := rc.Next()
	require.True(t, ok)
	assert.Equal(t, "200", code)
	assert.Equal(t, 1000000000000, rc.Remaining())
}

func TestDecodeKeepsLabelDocumentOrder(t *testing.T) {
	s, err := sample.Decode([]byte(`{"zeta": {"rc": [200]}, "alpha": {"rc": [200]}, "mid": {"rc": [200]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, s.Labels())
}
