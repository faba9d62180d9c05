// Package events defines the notifications published when transitions
// execute, rules run and notifications are requested.
package events

import (
	"time"
)

type EventType string

// Topic is the single topic all ruleflow events are published on.
const Topic = "ruleflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TransitionExecutedEvent    EventType = "workflow.transition.executed"
	RuleExecutedEvent          EventType = "automation.rule.executed"
	RuleFailedEvent            EventType = "automation.rule.failed"
	NotificationRequestedEvent EventType = "notification.requested"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps an event of type t with id and the current time.
func NewBaseEvent(id string, t EventType) BaseEvent {
	return BaseEvent{
		ID:        id,
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

type TransitionExecuted struct {
	BaseEvent

	WorkflowID     string `json:"workflow_id"`
	WorkflowCode   string `json:"workflow_code"`
	TransitionID   string `json:"transition_id"`
	TransitionCode string `json:"transition_code"`
	ModelName      string `json:"model_name"`
	RecordID       string `json:"record_id"`
	FromState      string `json:"from_state"`
	ToState        string `json:"to_state"`
	ActorID        string `json:"actor_id"`
	IsAutomatic    bool   `json:"is_automatic"`
	ActionError    string `json:"action_error,omitempty"`
}

func (e TransitionExecuted) GetType() EventType {
	return TransitionExecutedEvent
}

type RuleExecuted struct {
	BaseEvent

	RuleID    string         `json:"rule_id"`
	RuleCode  string         `json:"rule_code"`
	Trigger   string         `json:"trigger"`
	ModelName string         `json:"model_name"`
	RecordID  string         `json:"record_id"`
	Result    map[string]any `json:"result,omitempty"`
}

func (e RuleExecuted) GetType() EventType {
	return RuleExecutedEvent
}

type RuleFailed struct {
	BaseEvent

	RuleID    string `json:"rule_id"`
	RuleCode  string `json:"rule_code"`
	Trigger   string `json:"trigger"`
	ModelName string `json:"model_name"`
	RecordID  string `json:"record_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

func (e RuleFailed) GetType() EventType {
	return RuleFailedEvent
}

// NotificationRequested is emitted by SendNotification actions for a
// delivery service to pick up.
type NotificationRequested struct {
	BaseEvent

	ActionCode string   `json:"action_code"`
	Channel    string   `json:"channel,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`
	Template   string   `json:"template,omitempty"`
	ModelName  string   `json:"model_name"`
	RecordID   string   `json:"record_id"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
