// Package convert provides lenient field extraction from raw snapshot records.
//
// Staging exports are schemaless JSON maps; every accessor here has a defined
// zero-value default and never returns an error. A malformed or missing source
// value degrades to that default so a single bad field cannot abort a table
// load.
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timeLayouts are the timestamp formats observed in staging exports,
// tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Int pulls an integer value from a record by field name.
// Returns 0 if the field is missing, nil, or not a recognized numeric type.
// JSON numbers unmarshal to float64 in Go — that's the common path.
func Int(data map[string]any, field string) int64 {
	v, ok := data[field]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return int64(val)
	case float32:
		return int64(val)
	case int:
		return int64(val)
	case int64:
		return val
	case int32:
		return int64(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

// String pulls a string value from a record. Missing or nil fields
// become the empty string; scalar values are rendered with strconv.
func String(data map[string]any, field string) string {
	v, ok := data[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	}
	return ""
}

// StringOr is String with a caller-supplied default for missing or empty
// values. Used for status fields ("assigned", "scheduled", "active").
func StringOr(data map[string]any, field, def string) string {
	if s := String(data, field); s != "" {
		return s
	}
	return def
}

// Decimal pulls a monetary value from a record by field name.
// Returns decimal.Zero if the field is missing, empty, or not a recognized
// numeric type. Floats are converted through NewFromFloat to an exact
// decimal representation.
func Decimal(data map[string]any, field string) decimal.Decimal {
	v, ok := data[field]
	if !ok || v == nil {
		return decimal.Zero
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case int32:
		return decimal.NewFromInt(int64(val))
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// Time pulls a timestamp from a record by field name.
// Returns the zero time if the field is missing or unparseable; callers
// treat the zero time as "unknown" and apply their own fallback.
func Time(data map[string]any, field string) time.Time {
	v, ok := data[field]
	if !ok || v == nil {
		return time.Time{}
	}
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	case float64:
		// Unix seconds, as some exporters emit numeric timestamps.
		if val > 0 {
			return time.Unix(int64(val), 0).UTC()
		}
	}
	return time.Time{}
}

// Has reports whether a field is present with a non-nil value.
// Distinguishes "absent" from "present but zero" for nullable columns.
func Has(data map[string]any, field string) bool {
	v, ok := data[field]
	return ok && v != nil
}

// DateKey encodes a date as a YYYYMMDD integer, the warehouse date-key
// convention. The zero time encodes to 0.
func DateKey(t time.Time) int {
	if t.IsZero() {
		return 0
	}
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DateOnly truncates a timestamp to midnight UTC. Version boundaries in
// SCD2 history are date-granular.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
