package models

import (
	"sort"
	"time"
)

// Trigger selects when an automation rule fires.
type Trigger string

const (
	TriggerOnCreate Trigger = "on_create"
	TriggerOnWrite  Trigger = "on_write"
	TriggerOnDelete Trigger = "on_delete"
	TriggerOnTime   Trigger = "on_time"
	TriggerManual   Trigger = "manual"
)

// DefaultMaxRecordsPerRun caps a single time-based run when a rule leaves it unset.
const DefaultMaxRecordsPerRun = 1000

func (t Trigger) Valid() bool {
	switch t {
	case TriggerOnCreate, TriggerOnWrite, TriggerOnDelete, TriggerOnTime, TriggerManual:
		return true
	default:
		return false
	}
}

// AutomationRule binds a trigger on a model to an inline effect or a ServerAction.
type AutomationRule struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"                          validate:"required"`
	Name             string     `json:"name"                          validate:"required"`
	ModelName        string     `json:"model_name"                    validate:"required"`
	Trigger          Trigger    `json:"trigger"                       validate:"required"`
	Domain           Domain     `json:"domain,omitempty"`
	BeforeDomain     Domain     `json:"before_domain,omitempty"`
	TimeField        string     `json:"time_field,omitempty"`
	TimeDelta        int        `json:"time_delta,omitempty"` // minutes
	LastRun          *time.Time `json:"last_run,omitempty"`
	ActionID         string     `json:"action_id,omitempty"`
	ActionCode       string     `json:"action_code,omitempty"`
	InlineCode       string     `json:"inline_code,omitempty"`
	Sequence         int        `json:"sequence"`
	Active           bool       `json:"active"`
	MaxRecordsPerRun int        `json:"max_records_per_run,omitempty" validate:"gte=0"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (r *AutomationRule) RecordLimit() int {
	if r.MaxRecordsPerRun <= 0 {
		return DefaultMaxRecordsPerRun
	}

	return r.MaxRecordsPerRun
}

func (r *AutomationRule) HasEffect() bool {
	return r.InlineCode != "" || r.ActionID != "" || r.ActionCode != ""
}

// SortRules orders rules by ascending sequence, ties broken by code.
func SortRules(rules []*AutomationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Sequence != rules[j].Sequence {
			return rules[i].Sequence < rules[j].Sequence
		}

		return rules[i].Code < rules[j].Code
	})
}
