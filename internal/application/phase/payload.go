package phase

import (
	"fmt"
	"strconv"
)

// Helpers for interpreting the loosely typed structured payloads agents
// return. A missing or malformed key is an interpretation error, never a
// silently accepted partial result.

// payloadList extracts a list of objects under key
func payloadList(payload map[string]interface{}, key string) ([]map[string]interface{}, error) {
	raw, ok := payload[key]
	if !ok {
		return nil, fmt.Errorf("payload is missing required key %q", key)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("payload key %q is not a list", key)
	}
	out := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("payload key %q item %d is not an object", key, i)
		}
		out = append(out, obj)
	}
	return out, nil
}

// optionalList extracts a list of objects under key, tolerating absence
func optionalList(payload map[string]interface{}, key string) ([]map[string]interface{}, bool) {
	if _, ok := payload[key]; !ok {
		return nil, false
	}
	items, err := payloadList(payload, key)
	if err != nil {
		return nil, false
	}
	return items, true
}

// objString extracts a string field from an object
func objString(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

// objFloat extracts a numeric field from an object
func objFloat(obj map[string]interface{}, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

// objInt extracts an integer field from an object
func objInt(obj map[string]interface{}, key string) int {
	return int(objFloat(obj, key))
}

// objStringMap extracts a map[string]string field from an object
func objStringMap(obj map[string]interface{}, key string) map[string]string {
	raw, ok := obj[key].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
