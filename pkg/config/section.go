package config

import (
	"fmt"
	"time"
)

// Section is one named block of configuration.
type Section interface {
	// ID returns the unique key under which the section is persisted.
	ID() string
	// Title returns a human readable name.
	Title() string
	// Description explains what the section controls.
	Description() string
	// Data returns the current values as a plain map.
	Data() map[string]interface{}
	// SetData replaces values from a plain map. Unknown keys are ignored.
	SetData(data map[string]interface{}) error
	// Validate checks the current values.
	Validate() error
	// Reset restores defaults.
	Reset()
}

// The helpers below accept the loose types produced by YAML and JSON decoders.

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asDuration accepts Go duration strings ("5m") or a number of seconds.
func asDuration(v interface{}) (time.Duration, bool, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, true, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, false, fmt.Errorf("invalid duration %q: %w", d, err)
		}
		return parsed, true, nil
	}
	if secs, ok := asFloat(v); ok {
		return time.Duration(secs * float64(time.Second)), true, nil
	}
	return 0, false, nil
}

func asStringSlice(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}
