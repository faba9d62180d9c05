package automation

import "time"

// asTime reads a record time value stored as time.Time, *time.Time or an
// RFC3339 / date-only string.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}

		return *t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}

		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
