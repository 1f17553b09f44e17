package sample

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// DecodeError reports a malformed sample document.
type DecodeError struct {
	Path   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "decode sample: " + e.Reason
	}
	return fmt.Sprintf("decode sample: %s: %s", e.Path, e.Reason)
}

// Decode parses one sample. Both the bare form {"label": {...}} and the data-point
// envelope {"ts": 1700000000, "current": {"label": {...}}} are accepted.
func Decode(data []byte) (AggregatedSample, error) {
	if !gjson.ValidBytes(data) {
		return AggregatedSample{}, &DecodeError{Reason: "invalid JSON"}
	}
	return decodeSample(gjson.ParseBytes(data), "")
}

// DecodeBatch parses either a JSON array of samples or a single sample.
func DecodeBatch(data []byte) ([]AggregatedSample, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		s, err := decodeSample(root, "")
		if err != nil {
			return nil, err
		}
		return []AggregatedSample{s}, nil
	}

	var (
		samples []AggregatedSample
		decErr  error
		idx     int
	)
	root.ForEach(func(_, item gjson.Result) bool {
		s, err := decodeSample(item, fmt.Sprintf("[%d]", idx))
		if err != nil {
			decErr = err
			return false
		}
		samples = append(samples, s)
		idx++
		return true
	})
	if decErr != nil {
		return nil, decErr
	}
	return samples, nil
}

func decodeSample(root gjson.Result, path string) (AggregatedSample, error) {
	if !root.IsObject() {
		return AggregatedSample{}, &DecodeError{Path: path, Reason: "sample must be an object"}
	}

	current := root
	var ts int64
	if env := root.Get("current"); env.IsObject() && root.Get("ts").Exists() {
		tsField := root.Get("ts")
		if tsField.Type != gjson.Number {
			return AggregatedSample{}, &DecodeError{Path: join(path, "ts"), Reason: "must be a number"}
		}
		ts = tsField.Int()
		current = env
		path = join(path, "current")
	}

	s := New(ts)
	var decErr error
	current.ForEach(func(key, value gjson.Result) bool {
		label := key.String()
		rs, err := decodeResultSet(value, join(path, label))
		if err != nil {
			decErr = err
			return false
		}
		s.Add(label, rs)
		return true
	})
	if decErr != nil {
		return AggregatedSample{}, decErr
	}
	return s, nil
}

func decodeResultSet(obj gjson.Result, path string) (*ResultSet, error) {
	if !obj.IsObject() {
		return nil, &DecodeError{Path: path, Reason: "result set must be an object"}
	}

	rs := &ResultSet{}
	floats := []struct {
		key string
		dst *float64
	}{
		{"bytes", &rs.Bytes},
		{"avg_ct", &rs.AvgCT},
		{"avg_lt", &rs.AvgLT},
		{"avg_rt", &rs.AvgRT},
		{"concurrency", &rs.Concurrency},
	}
	for _, f := range floats {
		v, err := nonNegativeField(obj, f.key, path)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	counts := []struct {
		key string
		dst *int64
	}{
		{"succ", &rs.Succ},
		{"fail", &rs.Fail},
		{"throughput", &rs.Throughput},
	}
	for _, c := range counts {
		v, err := countField(obj, c.key, path)
		if err != nil {
			return nil, err
		}
		*c.dst = v
	}

	rc, err := decodeResultCodes(obj.Get("rc"), join(path, "rc"))
	if err != nil {
		return nil, err
	}
	rs.RC = rc
	return rs, nil
}

func numberField(obj gjson.Result, key, path string) (float64, error) {
	field := obj.Get(key)
	switch field.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		v := field.Float()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &DecodeError{Path: join(path, key), Reason: "must be finite"}
		}
		return v, nil
	default:
		return 0, &DecodeError{Path: join(path, key), Reason: "must be a number"}
	}
}

func nonNegativeField(obj gjson.Result, key, path string) (float64, error) {
	v, err := numberField(obj, key, path)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, &DecodeError{Path: join(path, key), Reason: "must be >= 0"}
	}
	return v, nil
}

func countField(obj gjson.Result, key, path string) (int64, error) {
	v, err := nonNegativeField(obj, key, path)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, &DecodeError{Path: join(path, key), Reason: "must be an integer"}
	}
	return int64(v), nil
}

// maxCodeCount is the largest count a JSON number carries exactly.
const maxCodeCount = 1 << 53

// decodeResultCodes reads rc either as an ordered {"code": count} object or as an array
// of codes. Object keys are enumerated in document order and counts are never expanded.
func decodeResultCodes(field gjson.Result, path string) (*ResultCodes, error) {
	switch {
	case !field.Exists() || field.Type == gjson.Null:
		return NewResultCodes(), nil
	case field.IsArray():
		var codes []string
		var decErr error
		field.ForEach(func(_, item gjson.Result) bool {
			if item.Type != gjson.String && item.Type != gjson.Number {
				decErr = &DecodeError{Path: path, Reason: "codes must be strings or numbers"}
				return false
			}
			codes = append(codes, item.String())
			return true
		})
		if decErr != nil {
			return nil, decErr
		}
		return NewResultCodes(codes...), nil
	case field.IsObject():
		var counts []CodeCount
		var decErr error
		field.ForEach(func(key, value gjson.Result) bool {
			n := value.Float()
			if value.Type != gjson.Number || n < 0 || n != math.Trunc(n) {
				decErr = &DecodeError{Path: join(path, key.String()), Reason: "count must be a non-negative integer"}
				return false
			}
			if n > maxCodeCount {
				decErr = &DecodeError{Path: join(path, key.String()), Reason: "count too large"}
				return false
			}
			counts = append(counts, CodeCount{Code: key.String(), Count: int(n)})
			return true
		})
		if decErr != nil {
			return nil, decErr
		}
		return CountedResultCodes(counts...), nil
	default:
		return nil, &DecodeError{Path: path, Reason: "must be an object or an array"}
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
