// Package normalize turns raw import rows into typed document fields.
//
// A row is either positional ([]any, columns in a fixed documented order) or
// keyed (map[string]any, header name to value). Numeric coercion never fails:
// anything unparseable becomes 0. Dates are rendered as ISO-8601 UTC when they
// can be parsed and are otherwise kept as the original string.
package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoLayout matches the millisecond ISO-8601 form the fleet app already stores
const isoLayout = "2006-01-02T15:04:05.000Z"

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// Float parses v as a float. Parse failures yield 0.
// Strings are parsed from their leading numeric prefix, so "12.50kg" is 12.5.
func Float(v any) float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			m := leadingNumber.FindString(s)
			if m == "" {
				return 0
			}
			if parsed, err = strconv.ParseFloat(m, 64); err != nil {
				return 0
			}
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Int parses v as an integer, truncating any fraction. Parse failures yield 0.
func Int(v any) int {
	return int(Float(v))
}

// Bool normalizes boolean-like values. Strings match case-insensitively against
// "true", "yes", "1" and any extra words supplied.
func Bool(v any, extra ...string) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "true", "yes", "1", "y":
			return true
		}
		for _, w := range extra {
			if s == strings.ToLower(w) {
				return true
			}
		}
		return false
	case nil:
		return false
	default:
		return Float(v) != 0
	}
}

// String renders v as a string, "" for nil
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(isoLayout)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// StringOr returns String(v), or def when that is empty
func StringOr(v any, def string) string {
	if s := String(v); s != "" {
		return s
	}
	return def
}

// Date renders v as an ISO-8601 UTC timestamp. Values that cannot be parsed
// are returned unchanged as strings, never as "Invalid Date".
func Date(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(isoLayout)
	case float64:
		// Sheets exports epoch milliseconds for date cells.
		if t > 1e11 {
			return time.UnixMilli(int64(t)).UTC().Format(isoLayout)
		}
		return String(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return ""
		}
		if ts, ok := ParseTime(s); ok {
			return ts.UTC().Format(isoLayout)
		}
		return t
	default:
		return String(v)
	}
}

// ParseTime tries each known layout in turn
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
