package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

// toFloat64 converts numeric types (and numeric strings) to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func argFloat(args map[string]any, key string) float64 {
	f, _ := toFloat64(args[key])
	return f
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func toText(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func textLength(v any) (int, bool) {
	s, ok := toText(v)
	if !ok {
		return 0, false
	}
	return len([]rune(s)), true
}

func isInteger(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// toDate accepts time.Time and the common ISO 8601 string forms.
func toDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

var timeLayouts = []string{"15:04:05", "15:04"}

// toClock parses "HH:mm" or "HH:mm:ss" into an offset from midnight.
func toClock(v any) (time.Duration, bool) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, true
	case string:
		s = t
	default:
		return 0, false
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute + time.Duration(parsed.Second())*time.Second, true
		}
	}
	return 0, false
}

func collectionLength(v any) (int, bool) {
	switch t := v.(type) {
	case []any:
		return len(t), true
	case []string:
		return len(t), true
	case map[string]any:
		return len(t), true
	}
	return 0, false
}
