package provider

import (
	"encoding/json"
	"strconv"
)

// FloatParam reads a numeric parameter, accepting any JSON-ish number form.
func FloatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IntParam reads an integer parameter.
func IntParam(params map[string]any, key string) (int, bool) {
	f, ok := FloatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// StringParam reads a string parameter.
func StringParam(params map[string]any, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok && s != ""
}
