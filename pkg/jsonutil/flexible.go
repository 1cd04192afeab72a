// Package jsonutil decodes loosely typed JSON values produced by LLMs.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, accepting
// numbers or booleans where a string was asked for. Returns "" for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	switch v := FlexibleValue(raw).(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return string(raw)
	}
}

// FlexibleFloatValue converts a json.RawMessage to a float64, accepting
// numeric strings such as "0.8" and percentages such as "80%".
func FlexibleFloatValue(raw json.RawMessage) (float64, error) {
	switch v := FlexibleValue(raw).(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if pct, ok := strings.CutSuffix(s, "%"); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
			if err != nil {
				return 0, fmt.Errorf("not a number: %q", v)
			}
			return f / 100, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}
}

// FlexibleValue decodes a scalar JSON value into nil, string, bool, int64 or
// float64. Integers that fit in int64 stay integral. Objects and arrays are
// returned as json.RawMessage.
func FlexibleValue(raw json.RawMessage) any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return boolVal
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	return raw
}
