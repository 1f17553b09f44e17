// Package config loads crankprom settings from flags and an optional JSON or YAML file.
package config

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var keyFolder = strings.NewReplacer("_", "", "-", "")

// settingKey folds case, underscores and dashes so metric_prefix, metricPrefix and
// metric-prefix name the same setting.
func settingKey(key string) string {
	return keyFolder.Replace(strings.ToLower(strings.TrimSpace(key)))
}

// section is one map of a decoded config file. The first conversion error sticks and
// carries the path of the offending key.
type section struct {
	values map[string]interface{}
	err    error
}

func newSection(value interface{}) (*section, error) {
	raw, err := toStringMap(value)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		values[settingKey(key)] = val
	}
	return &section{values: values}, nil
}

func (s *section) lookup(keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if val, ok := s.values[settingKey(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

// read stores the first present key of keys into dst. keys[0] names the setting in
// errors.
func read[T any](s *section, dst *T, parse func(interface{}) (T, error), keys ...string) {
	if s.err != nil {
		return
	}
	raw, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := parse(raw)
	if err != nil {
		s.err = fmt.Errorf("%s: %w", keys[0], err)
		return
	}
	*dst = val
}

// nested hands the value of a sub-section to apply.
func (s *section) nested(key string, apply func(interface{}) error) {
	if s.err != nil {
		return
	}
	if raw, ok := s.lookup(key); ok {
		if err := apply(raw); err != nil {
			s.err = fmt.Errorf("%s: %w", key, err)
		}
	}
}

// readList decodes a list of maps, building one T per entry.
func readList[T any](value interface{}, build func(*section) T) ([]T, error) {
	items, err := toList(value)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for idx, item := range items {
		s, err := newSection(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		entry := build(s)
		if s.err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, s.err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func asString(value interface{}) (string, error) {
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}, []interface{}:
		return "", fmt.Errorf("expected scalar, got %T", value)
	}
	return cast.ToStringE(value)
}

func trimmed(value interface{}) (string, error) {
	s, err := asString(value)
	return strings.TrimSpace(s), err
}

// asInt rejects fractional numbers and booleans. An empty string is zero.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case bool:
		return 0, fmt.Errorf("expected integer, got %T", value)
	case float32, float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("expected integer, got %g", f)
		}
		return int(f), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	}
	return cast.ToIntE(value)
}

func asFloat64(value interface{}) (float64, error) {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return false, nil
	}
	return cast.ToBoolE(value)
}

func asBoolPtr(value interface{}) (*bool, error) {
	b, err := asBool(value)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// asDuration parses Go duration strings. Bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case bool:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return time.ParseDuration(strings.TrimSpace(v))
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// asPort accepts the port as a string or an integer.
func asPort(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s), nil
	}
	port, err := asInt(value)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(port), nil
}

// asStringMap keeps the key case of the file.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	entries, err := toStringMap(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(entries))
	for key, val := range entries {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("key cannot be empty")
		}
		if result[key], err = asString(val); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return result, nil
}

// asFloat64Slice reads bucket bounds from a list or a comma separated string.
func asFloat64Slice(value interface{}) ([]float64, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		value = strings.Split(s, ",")
	}
	items, err := toList(value)
	if err != nil {
		return nil, err
	}
	result := make([]float64, 0, len(items))
	for idx, item := range items {
		if s, ok := item.(string); ok {
			item = strings.TrimSpace(s)
		}
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		result = append(result, f)
	}
	return result, nil
}

func toList(value interface{}) ([]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if items, ok := value.([]interface{}); ok {
		return items, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected list, got %T", value)
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}

func toStringMap(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case string:
		return nil, fmt.Errorf("expected map, got %T", value)
	case map[string]string:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			result[key] = val
		}
		return result, nil
	}
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return m, nil
}
