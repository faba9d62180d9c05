// Package filter evaluates domains (AND-combined field conditions) against
// records. Evaluation never panics: operands that cannot be compared make
// the condition fail.
package filter

import (
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
)

// Fields is the read side of a record.
type Fields interface {
	Get(field string) (any, bool)
}

// Vars are the named bindings reachable from "$" references, e.g. "user",
// "now", "today" and any rule-specific context.
type Vars map[string]any

// RefPrefix marks a condition value as a dynamic reference.
const RefPrefix = "$"

// Matches reports whether rec satisfies every condition of domain. An
// empty domain always matches.
func Matches(domain models.Domain, rec Fields, vars Vars) bool {
	for _, cond := range domain {
		if !Match(cond, rec, vars) {
			return false
		}
	}

	return true
}

// Match evaluates a single condition.
func Match(cond models.Condition, rec Fields, vars Vars) bool {
	op, ok := cond.Operator.Normalize()
	if !ok {
		return false
	}

	var (
		actual any
		found  bool
	)
	if rec != nil {
		actual, found = lookupField(rec, cond.Field)
	}

	switch op {
	case models.OpIsNull:
		return !found || actual == nil
	case models.OpIsNotNull:
		return found && actual != nil
	}

	if !found {
		return false
	}

	expected := Resolve(cond.Value, rec, vars)

	switch op {
	case models.OpEqual:
		return equal(actual, expected)
	case models.OpNotEqual:
		return !equal(actual, expected)
	case models.OpGreater:
		c, ok := compare(actual, expected)
		return ok && c > 0
	case models.OpGreaterEqual:
		c, ok := compare(actual, expected)
		return ok && c >= 0
	case models.OpLess:
		c, ok := compare(actual, expected)
		return ok && c < 0
	case models.OpLessEqual:
		c, ok := compare(actual, expected)
		return ok && c <= 0
	case models.OpIn:
		return contains(expected, actual)
	case models.OpNotIn:
		return !contains(expected, actual)
	case models.OpLike:
		return like(actual, expected)
	default:
		return false
	}
}

// Resolve returns value unchanged unless it is a "$" reference, in which case
// the dotted path is walked through vars. A path starting at "record" walks
// rec. Unresolvable references yield nil.
func Resolve(value any, rec Fields, vars Vars) any {
	ref, ok := value.(string)
	if !ok || !strings.HasPrefix(ref, RefPrefix) {
		return value
	}

	path := strings.Split(strings.TrimPrefix(ref, RefPrefix), ".")
	if len(path) == 0 || path[0] == "" {
		return nil
	}

	var current any

	switch head := path[0]; {
	case head == "record" && rec != nil:
		current = rec
	default:
		v, found := vars[head]
		if !found {
			v, found = builtin(head)
		}

		if !found {
			return nil
		}

		current = v
	}

	for _, segment := range path[1:] {
		next, found := step(current, segment)
		if !found {
			return nil
		}

		current = next
	}

	return current
}

func builtin(name string) (any, bool) {
	now := time.Now().UTC()

	switch name {
	case "now":
		return now, true
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	default:
		return nil, false
	}
}

// lookupField supports dotted field names ("partner.name") on records whose
// values are nested maps or records.
func lookupField(rec Fields, field string) (any, bool) {
	if v, ok := rec.Get(field); ok {
		return v, true
	}

	parts := strings.Split(field, ".")
	if len(parts) < 2 {
		return nil, false
	}

	current, ok := rec.Get(parts[0])
	if !ok {
		return nil, false
	}

	for _, segment := range parts[1:] {
		current, ok = step(current, segment)
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func step(current any, segment string) (any, bool) {
	switch v := current.(type) {
	case Fields:
		return v.Get(segment)
	case Vars:
		val, ok := v[segment]
		return val, ok
	case map[string]any:
		val, ok := v[segment]
		return val, ok
	case map[string]string:
		val, ok := v[segment]
		return val, ok
	default:
		return nil, false
	}
}
