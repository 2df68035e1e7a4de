package unify

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// timestampLayouts are tried in order when a timestamp arrives as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// DecodeTimestamp converts a source value into a time.
// Integers and reals (SQLite REAL columns) are Unix nanoseconds; strings are
// parsed with timestampLayouts.
func DecodeTimestamp(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case int64:
		return time.Unix(0, val).UTC(), nil
	case int:
		return time.Unix(0, int64(val)).UTC(), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val >= math.MaxInt64 || val < math.MinInt64 {
			return time.Time{}, fmt.Errorf("timestamp %v out of range", val)
		}
		return time.Unix(0, int64(val)).UTC(), nil
	case []byte:
		return parseTimestamp(string(val))
	case string:
		return parseTimestamp(val)
	case nil:
		return time.Time{}, fmt.Errorf("null timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// CastString renders a source value as text for user ids and event values.
func CastString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}
