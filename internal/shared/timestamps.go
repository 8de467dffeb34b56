package shared

import (
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// unixMillisThreshold separates epoch seconds from epoch milliseconds. Values above it
// would be seconds far beyond year 33000, so they are read as milliseconds.
const unixMillisThreshold = 1_000_000_000_000

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp converts the representations a store may hand back for a point in
// time into a UTC time.Time. The second return value is false when v carries no time
// (nil, NULL, empty string, zero value) or cannot be interpreted.
func NormalizeTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return NormalizeTimestamp(*t)
	case pgtype.Timestamptz:
		if !t.Valid {
			return time.Time{}, false
		}
		return NormalizeTimestamp(t.Time)
	case pgtype.Timestamp:
		if !t.Valid {
			return time.Time{}, false
		}
		return NormalizeTimestamp(t.Time)
	case int64:
		return fromEpoch(t)
	case int:
		return fromEpoch(int64(t))
	case float64:
		return fromEpoch(int64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n)
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// NormalizeTimestampPtr is NormalizeTimestamp for optional fields such as deleted_at.
func NormalizeTimestampPtr(v any) *time.Time {
	t, ok := NormalizeTimestamp(v)
	if !ok {
		return nil
	}
	return &t
}

func fromEpoch(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n >= unixMillisThreshold {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}
