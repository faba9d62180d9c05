package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/models"
)

type fields map[string]any

func (f fields) Get(field string) (any, bool) {
	v, ok := f[field]

	return v, ok
}

func TestMatch(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := fields{
		"state":      "draft",
		"amount":     150,
		"ratio":      0.5,
		"priority":   "high",
		"partner_id": nil,
		"name":       "Quarterly report",
		"created_at": created,
		"deadline":   "2026-03-05T00:00:00Z",
		"tags":       []string{"a", "b"},
		"partner":    map[string]any{"name": "ACME"},
	}

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equal string", models.Condition{Field: "state", Operator: "=", Value: "draft"}, true},
		{"equal alias", models.Condition{Field: "state", Operator: "==", Value: "draft"}, true},
		{"not equal alias", models.Condition{Field: "state", Operator: "<>", Value: "done"}, true},
		{"int vs float equal", models.Condition{Field: "amount", Operator: "=", Value: 150.0}, true},
		{"greater", models.Condition{Field: "amount", Operator: ">", Value: 100}, true},
		{"greater equal boundary", models.Condition{Field: "amount", Operator: ">=", Value: 150}, true},
		{"less fails", models.Condition{Field: "amount", Operator: "<", Value: 150}, false},
		{"less equal float", models.Condition{Field: "ratio", Operator: "<=", Value: 0.5}, true},
		{"number vs string incomparable", models.Condition{Field: "amount", Operator: ">", Value: "abc"}, false},
		{"in list", models.Condition{Field: "priority", Operator: "in", Value: []any{"high", "urgent"}}, true},
		{"in scalar", models.Condition{Field: "priority", Operator: "in", Value: "high"}, true},
		{"in typed list miss", models.Condition{Field: "priority", Operator: "in", Value: []string{"low"}}, false},
		{"not in", models.Condition{Field: "priority", Operator: "not in", Value: []any{"low"}}, true},
		{"not in alias", models.Condition{Field: "priority", Operator: "not_in", Value: []any{"high"}}, false},
		{"like substring", models.Condition{Field: "name", Operator: "like", Value: "report"}, true},
		{"contains alias", models.Condition{Field: "name", Operator: "contains", Value: "Quarter"}, true},
		{"like glob", models.Condition{Field: "name", Operator: "like", Value: "Q*report"}, true},
		{"like percent", models.Condition{Field: "name", Operator: "like", Value: "%report"}, true},
		{"like glob miss", models.Condition{Field: "name", Operator: "like", Value: "report*"}, false},
		{"is null on nil value", models.Condition{Field: "partner_id", Operator: "is null"}, true},
		{"is null on missing field", models.Condition{Field: "missing", Operator: "is null"}, true},
		{"is not null", models.Condition{Field: "state", Operator: "is not null"}, true},
		{"is not null on nil", models.Condition{Field: "partner_id", Operator: "is not null"}, false},
		{"unknown field fails", models.Condition{Field: "missing", Operator: "=", Value: nil}, false},
		{"unknown field fails for not equal", models.Condition{Field: "missing", Operator: "!=", Value: "x"}, false},
		{"unknown operator fails", models.Condition{Field: "state", Operator: "~", Value: "draft"}, false},
		{"time vs time", models.Condition{Field: "created_at", Operator: "<", Value: created.Add(time.Hour)}, true},
		{"time vs rfc3339 string", models.Condition{Field: "created_at", Operator: "<=", Value: "2026-03-01T12:00:00Z"}, true},
		{"string date vs time", models.Condition{Field: "deadline", Operator: ">", Value: created}, true},
		{"dotted field", models.Condition{Field: "partner.name", Operator: "=", Value: "ACME"}, true},
		{"equal nil to nil", models.Condition{Field: "partner_id", Operator: "=", Value: nil}, true},
		{"list equality", models.Condition{Field: "tags", Operator: "=", Value: []string{"a", "b"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.cond, rec, nil))
		})
	}
}

func TestMatches_ANDSemantics(t *testing.T) {
	rec := fields{"state": "draft", "amount": 10}

	assert.True(t, Matches(nil, rec, nil), "empty domain matches everything")
	assert.True(t, Matches(models.Domain{
		{Field: "state", Operator: "=", Value: "draft"},
		{Field: "amount", Operator: "<", Value: 20},
	}, rec, nil))
	assert.False(t, Matches(models.Domain{
		{Field: "state", Operator: "=", Value: "draft"},
		{Field: "amount", Operator: ">", Value: 20},
	}, rec, nil))
}

func TestResolve(t *testing.T) {
	rec := fields{"owner_id": "u1", "partner": map[string]any{"name": "ACME"}}
	vars := Vars{
		"user":    models.Actor{ID: "u1", Name: "Ada", Groups: []string{"hr"}},
		"context": map[string]any{"threshold": 5},
		"now":     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, "u1", Resolve("$user.id", rec, vars))
	assert.Equal(t, "ACME", Resolve("$record.partner.name", rec, vars))
	assert.Equal(t, 5, Resolve("$context.threshold", rec, vars))
	assert.Equal(t, vars["now"], Resolve("$now", rec, vars))
	assert.Nil(t, Resolve("$user.missing", rec, vars))
	assert.Nil(t, Resolve("$nothing.here", rec, vars))
	assert.Nil(t, Resolve("$", rec, vars))
	assert.Equal(t, "plain", Resolve("plain", rec, vars))
	assert.Equal(t, 42, Resolve(42, rec, vars))

	today, ok := Resolve("$today", rec, nil).(time.Time)
	require.True(t, ok, "today is always available")
	assert.Equal(t, 0, today.Hour())
}

func TestMatch_DynamicReference(t *testing.T) {
	rec := fields{"owner_id": "u1", "state": "draft"}
	vars := Vars{"user": models.Actor{ID: "u1"}}

	assert.True(t, Match(models.Condition{Field: "owner_id", Operator: "=", Value: "$user.id"}, rec, vars))
	assert.False(t, Match(models.Condition{Field: "owner_id", Operator: "=", Value: "$user.name"}, rec, vars),
		"unresolved attributes become empty and do not match")
	assert.True(t, Match(models.Condition{Field: "state", Operator: "=", Value: "$record.state"}, rec, vars))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(models.Domain{
		{Field: "state", Operator: "==", Value: "draft"},
		{Field: "partner_id", Operator: "is null"},
	}))

	err := Validate(models.Domain{{Field: "", Operator: "="}})
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))

	err = Validate(models.Domain{{Field: "state", Operator: "between"}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "between")

	normalized := Normalize(models.Domain{{Field: "a", Operator: "<>"}})
	assert.Equal(t, models.OpNotEqual, normalized[0].Operator)
}
