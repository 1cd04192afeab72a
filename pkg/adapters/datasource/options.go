package datasource

import (
	"fmt"
	"strconv"
)

// Options reads adapter settings from a config map. Values may come from
// YAML (ints) or JSON (float64s), so numeric and boolean readers accept both
// along with their string forms.
type Options map[string]any

// String returns the first non-empty string stored under one of keys.
func (o Options) String(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := o[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// RequiredString is String that fails naming the first key when absent.
func (o Options) RequiredString(keys ...string) (string, error) {
	if s, ok := o.String(keys...); ok {
		return s, nil
	}
	return "", fmt.Errorf("%s is required", keys[0])
}

// Int returns the integer stored under key.
func (o Options) Int(key string) (int, bool, error) {
	switch v := o[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%s must be an integer, got %T", key, o[key])
}

// Bool returns the boolean stored under key.
func (o Options) Bool(key string) (bool, bool, error) {
	switch v := o[key].(type) {
	case nil:
		return false, false, nil
	case bool:
		return v, true, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, true, nil
	}
	return false, false, fmt.Errorf("%s must be a boolean, got %T", key, o[key])
}

// ValidatePort rejects ports outside the TCP range.
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
