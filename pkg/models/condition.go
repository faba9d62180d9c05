package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operator is a comparison used by a domain condition.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not in"
	OpLike         Operator = "like"
	OpIsNull       Operator = "is null"
	OpIsNotNull    Operator = "is not null"
)

var operatorAliases = map[Operator]Operator{
	"==":          OpEqual,
	"<>":          OpNotEqual,
	"contains":    OpLike,
	"not_in":      OpNotIn,
	"is_null":     OpIsNull,
	"is_not_null": OpIsNotNull,
}

var knownOperators = map[Operator]struct{}{
	OpEqual: {}, OpNotEqual: {}, OpGreater: {}, OpLess: {}, OpGreaterEqual: {},
	OpLessEqual: {}, OpIn: {}, OpNotIn: {}, OpLike: {}, OpIsNull: {}, OpIsNotNull: {},
}

// Normalize resolves operator aliases. The second result is false for
// operators that are not supported at all.
func (o Operator) Normalize() (Operator, bool) {
	if alias, ok := operatorAliases[o]; ok {
		return alias, true
	}

	_, ok := knownOperators[o]

	return o, ok
}

// Condition is a single field comparison. Value may be a literal, a list,
// or a "$"-prefixed reference resolved at evaluation time.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// UnmarshalJSON accepts both the object form and the compact
// ["field", "operator", value] triple.
func (c *Condition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var triple []json.RawMessage
		if err := json.Unmarshal(data, &triple); err != nil {
			return err
		}

		if len(triple) < 2 || len(triple) > 3 {
			return fmt.Errorf("condition triple must have 2 or 3 elements, got %d", len(triple))
		}

		if err := json.Unmarshal(triple[0], &c.Field); err != nil {
			return fmt.Errorf("condition field: %w", err)
		}

		if err := json.Unmarshal(triple[1], &c.Operator); err != nil {
			return fmt.Errorf("condition operator: %w", err)
		}

		c.Value = nil
		if len(triple) == 3 {
			if err := json.Unmarshal(triple[2], &c.Value); err != nil {
				return fmt.Errorf("condition value: %w", err)
			}
		}

		return nil
	}

	type plain Condition

	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*c = Condition(p)

	return nil
}

// Domain is an AND-combined list of conditions. An empty domain matches everything.
type Domain []Condition

func (d Domain) IsEmpty() bool {
	return len(d) == 0
}
