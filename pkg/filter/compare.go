package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}

		return *t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}

	return time.Time{}, false
}

func isTime(v any) bool {
	switch v.(type) {
	case time.Time, *time.Time:
		return true
	default:
		return false
	}
}

// compare orders a against b. The second result is false when the operands
// are not comparable.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmpOrdered(fa, fb), true
		}

		return 0, false
	}

	if isTime(a) || isTime(b) {
		ta, okA := toTime(a)
		tb, okB := toTime(b)

		if !okA || !okB {
			return 0, false
		}

		return ta.Compare(tb), true
	}

	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
	}

	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}

	if isTime(a) || isTime(b) {
		c, ok := compare(a, b)
		return ok && c == 0
	}

	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}

	return a == b
}

// contains reports whether needle is a member of haystack. A scalar haystack
// is treated as a single-element list.
func contains(haystack, needle any) bool {
	if haystack == nil {
		return false
	}

	rv := reflect.ValueOf(haystack)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return equal(needle, haystack)
	}

	for i := range rv.Len() {
		if equal(needle, rv.Index(i).Interface()) {
			return true
		}
	}

	return false
}

func like(actual, pattern any) bool {
	if actual == nil || pattern == nil {
		return false
	}

	text := fmt.Sprint(actual)
	p := fmt.Sprint(pattern)

	if !strings.ContainsAny(p, "*?%") {
		return strings.Contains(text, p)
	}

	re, err := globToRegexp(p)
	if err != nil {
		return false
	}

	return re.MatchString(text)
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder

	b.WriteString("^")

	for _, r := range pattern {
		switch r {
		case '*', '%':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString("$")

	return regexp.Compile(b.String())
}

// Compare orders two field values with the same coercions conditions use.
// Incomparable values report false.
func Compare(a, b any) (int, bool) {
	return compare(a, b)
}
