package models

import "time"

// HistoryEntry is one executed transition in a record's history.
type HistoryEntry struct {
	FromState      string    `json:"from_state"`
	ToState        string    `json:"to_state"`
	TransitionID   string    `json:"transition_id"`
	TransitionCode string    `json:"transition_code"`
	ActorID        string    `json:"actor_id"`
	At             time.Time `json:"at"`
	Note           string    `json:"note,omitempty"`
}

// StateRecord tracks the current state of one record under one workflow.
// Version increases on every successful save.
type StateRecord struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"`
	ModelName        string         `json:"model_name"`
	RecordID         string         `json:"record_id"`
	CurrentState     string         `json:"current_state"`
	PreviousState    string         `json:"previous_state,omitempty"`
	History          []HistoryEntry `json:"history"`
	LastTransitionID string         `json:"last_transition_id,omitempty"`
	LastChangedBy    string         `json:"last_changed_by,omitempty"`
	LastChangedAt    *time.Time     `json:"last_changed_at,omitempty"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Clone returns a deep copy so callers can mutate it before an optimistic save.
func (s *StateRecord) Clone() *StateRecord {
	c := *s
	c.History = make([]HistoryEntry, len(s.History))
	copy(c.History, s.History)

	if s.LastChangedAt != nil {
		at := *s.LastChangedAt
		c.LastChangedAt = &at
	}

	return &c
}

// Advance moves the record to the transition's target state and appends
// the corresponding history entry.
func (s *StateRecord) Advance(t *Transition, actorID, note string, at time.Time) HistoryEntry {
	entry := HistoryEntry{
		FromState:      s.CurrentState,
		ToState:        t.ToState,
		TransitionID:   t.ID,
		TransitionCode: t.Code,
		ActorID:        actorID,
		At:             at,
		Note:           note,
	}

	s.History = append(s.History, entry)
	s.PreviousState = s.CurrentState
	s.CurrentState = t.ToState
	s.LastTransitionID = t.ID
	s.LastChangedBy = actorID
	s.LastChangedAt = &at

	return entry
}

// ActivityLogEntry is the immutable audit row written for every executed
// transition. WorkflowID and TransitionID become nil when their targets are deleted.
type ActivityLogEntry struct {
	ID             string         `json:"id"`
	WorkflowID     *string        `json:"workflow_id"`
	TransitionID   *string        `json:"transition_id"`
	TransitionCode string         `json:"transition_code"`
	ModelName      string         `json:"model_name"`
	RecordID       string         `json:"record_id"`
	FromState      string         `json:"from_state"`
	ToState        string         `json:"to_state"`
	ActorID        string         `json:"actor_id"`
	ActorName      string         `json:"actor_name,omitempty"`
	Note           string         `json:"note,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	IsAutomatic    bool           `json:"is_automatic"`
	ActionError    string         `json:"action_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
