// Package models defines the workflow, action and automation rule types
// shared by every ruleflow package.
package models

import (
	"sort"
	"time"
)

// State is one named state of a workflow.
type State struct {
	Code     string `json:"code"               validate:"required"`
	Name     string `json:"name"               validate:"required"`
	Sequence int    `json:"sequence"`
	IsStart  bool   `json:"is_start,omitempty"`
	IsEnd    bool   `json:"is_end,omitempty"`
	Color    string `json:"color,omitempty"`
}

// WorkflowDefinition is the state machine attached to one record model.
type WorkflowDefinition struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"                  validate:"required"`
	Name         string    `json:"name"                  validate:"required"`
	ModelName    string    `json:"model_name"            validate:"required"`
	States       []State   `json:"states"                validate:"required,min=1,dive"`
	DefaultState string    `json:"default_state"`
	Active       bool      `json:"active"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasState reports whether code is one of the declared states.
func (w *WorkflowDefinition) HasState(code string) bool {
	_, ok := w.State(code)

	return ok
}

func (w *WorkflowDefinition) State(code string) (State, bool) {
	for _, s := range w.States {
		if s.Code == code {
			return s, true
		}
	}

	return State{}, false
}

// SortedStates returns the states ordered by sequence, then code.
func (w *WorkflowDefinition) SortedStates() []State {
	states := make([]State, len(w.States))
	copy(states, w.States)
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].Sequence != states[j].Sequence {
			return states[i].Sequence < states[j].Sequence
		}

		return states[i].Code < states[j].Code
	})

	return states
}

// ResolveDefaultState returns the explicit default, else the first start
// state, else the first state by sequence.
func (w *WorkflowDefinition) ResolveDefaultState() string {
	if w.DefaultState != "" {
		return w.DefaultState
	}

	sorted := w.SortedStates()
	for _, s := range sorted {
		if s.IsStart {
			return s.Code
		}
	}

	if len(sorted) > 0 {
		return sorted[0].Code
	}

	return ""
}

// TransitionGuard restricts who may fire a transition and when.
type TransitionGuard struct {
	Domain         Domain   `json:"domain,omitempty"`
	Expression     string   `json:"expression,omitempty"`
	RequiredGroups []string `json:"required_groups,omitempty"`
}

func (g TransitionGuard) HasCondition() bool {
	return len(g.Domain) > 0 || g.Expression != ""
}

// TransitionUI carries presentation hints only.
type TransitionUI struct {
	ButtonName     string `json:"button_name,omitempty"`
	ButtonClass    string `json:"button_class,omitempty"`
	Icon           string `json:"icon,omitempty"`
	ConfirmMessage string `json:"confirm_message,omitempty"`
}

// Transition is a directed edge between two states of a workflow.
type Transition struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"          validate:"required"`
	Code       string          `json:"code"                 validate:"required"`
	Name       string          `json:"name"                 validate:"required"`
	FromState  string          `json:"from_state"           validate:"required"`
	ToState    string          `json:"to_state"             validate:"required"`
	Guard      TransitionGuard `json:"guard"`
	ActionID   string          `json:"action_id,omitempty"`
	ActionCode string          `json:"action_code,omitempty"`
	InlineCode string          `json:"inline_code,omitempty"`
	UI         TransitionUI    `json:"ui"`
	Sequence   int             `json:"sequence"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SortTransitions orders transitions by sequence, then code.
func SortTransitions(transitions []*Transition) {
	sort.SliceStable(transitions, func(i, j int) bool {
		if transitions[i].Sequence != transitions[j].Sequence {
			return transitions[i].Sequence < transitions[j].Sequence
		}

		return transitions[i].Code < transitions[j].Code
	})
}
