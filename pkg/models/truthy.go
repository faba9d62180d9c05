package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Truthy turns the output of a guard expression into a verdict. Evaluator
// output is usually text, so surrounding whitespace is ignored and empty
// output is false, as is nil. Numbers are true when non zero.
func Truthy(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(x))

		switch s {
		case "", "no", "off":
			return false, nil
		case "yes", "on":
			return true, nil
		}

		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}

		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0, nil
		}

		return false, fmt.Errorf("cannot read %q as a condition result", x)
	case int:
		return x != 0, nil
	case int32:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case uint:
		return x != 0, nil
	case uint64:
		return x != 0, nil
	case float32:
		return x != 0, nil
	case float64:
		return x != 0, nil
	default:
		return false, fmt.Errorf("cannot read %T as a condition result", v)
	}
}
