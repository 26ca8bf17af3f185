package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// lookup walks a dotted path through nested objects.
func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func boolAt(m map[string]any, path string) (bool, bool) {
	v, ok := lookup(m, path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func numberAt(m map[string]any, path string) (float64, bool) {
	v, ok := lookup(m, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func stringAt(m map[string]any, path string) string {
	v, ok := lookup(m, path)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64, bool, json.Number:
		return fmt.Sprint(s)
	}
	return ""
}

func firstString(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := stringAt(m, p); s != "" {
			return s
		}
	}
	return ""
}

func objects(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
