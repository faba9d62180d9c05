package filter

import (
	"github.com/dukex/ruleflow/pkg/models"
)

// Validate checks that every condition names a field and uses a supported
// operator. It is meant for definition save time.
func Validate(domain models.Domain) error {
	for i, cond := range domain {
		if cond.Field == "" {
			return models.NewConfigurationError("filter.Validate", "condition %d has no field", i)
		}

		if _, ok := cond.Operator.Normalize(); !ok {
			return models.NewConfigurationError("filter.Validate",
				"condition %d on %q uses unsupported operator %q", i, cond.Field, cond.Operator)
		}
	}

	return nil
}

// Normalize returns a copy of domain with operator aliases resolved.
func Normalize(domain models.Domain) models.Domain {
	if domain == nil {
		return nil
	}

	out := make(models.Domain, len(domain))
	for i, cond := range domain {
		if op, ok := cond.Operator.Normalize(); ok {
			cond.Operator = op
		}

		out[i] = cond
	}

	return out
}
