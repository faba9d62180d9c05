package automation

import (
	"encoding/json"
	"errors"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/record"
)

// Change is the old and new value of one written field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes holds the written fields of each record in a write batch.
type Changes map[record.Ref]map[string]Change

// Of returns the field changes written to rec, nil when none were given.
func (c Changes) Of(rec record.Record) map[string]Change {
	if c == nil {
		return nil
	}

	return c[record.RefOf(rec)]
}

// Execution is one rule applied to one record.
type Execution struct {
	RuleID   string     `json:"rule_id"`
	RuleCode string     `json:"rule_code"`
	Record   record.Ref `json:"record"`
	Result   any        `json:"result,omitempty"`
}

// Failure is a rule that could not be applied to a record. Record is empty
// when the rule failed before any record was considered.
type Failure struct {
	RuleID   string           `json:"rule_id,omitempty"`
	RuleCode string           `json:"rule_code,omitempty"`
	Record   record.Ref       `json:"record"`
	Kind     models.ErrorKind `json:"kind"`
	Err      error            `json:"-"`
}

func (f Failure) Error() string {
	prefix := f.RuleCode
	if f.Record.ID != "" {
		prefix += " " + f.Record.Model + "/" + f.Record.ID
	}

	if f.Err == nil {
		return prefix + ": " + string(f.Kind)
	}

	return prefix + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}

// MarshalJSON adds the error message, which the Err field cannot carry.
func (f Failure) MarshalJSON() ([]byte, error) {
	type failure Failure

	var msg string
	if f.Err != nil {
		msg = f.Err.Error()
	}

	return json.Marshal(struct {
		failure
		Error string `json:"error,omitempty"`
	}{failure(f), msg})
}

// Report collects the outcome of one lifecycle trigger.
type Report struct {
	Trigger    models.Trigger `json:"trigger"`
	Executions []Execution    `json:"executions"`
	Failures   []Failure      `json:"failures"`
}

func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Err joins every failure, or returns nil when there were none.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}

	return errors.Join(errs...)
}

// Run status of a time based rule.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RuleRunResult is the outcome of one on_time rule in RunTimeBased.
type RuleRunResult struct {
	RuleID    string    `json:"rule_id"`
	RuleCode  string    `json:"rule_code"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Processed int       `json:"processed"`
	Failures  []Failure `json:"failures,omitempty"`
	Advanced  bool      `json:"advanced"`
}
