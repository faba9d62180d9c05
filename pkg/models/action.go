package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind discriminates the ServerAction variants.
type ActionKind string

const (
	ActionRunCode          ActionKind = "run_code"
	ActionCallMethod       ActionKind = "call_method"
	ActionUpdateRecord     ActionKind = "update_record"
	ActionCreateRecord     ActionKind = "create_record"
	ActionSendNotification ActionKind = "send_notification"
	ActionCallWebhook      ActionKind = "call_webhook"
	ActionChainActions     ActionKind = "chain_actions"
)

// ActionSpec is the closed set of action payloads. Only the types in this
// file implement it.
type ActionSpec interface {
	Kind() ActionKind
	isActionSpec()
}

type RunCode struct {
	Code string `json:"code" validate:"required"`
}

type CallMethod struct {
	Method string `json:"method" validate:"required"`
	Args   []any  `json:"args,omitempty"`
}

type UpdateRecord struct {
	Values map[string]any `json:"values" validate:"required,min=1"`
}

type CreateRecord struct {
	Model  string         `json:"model"  validate:"required"`
	Values map[string]any `json:"values"`
}

type SendNotification struct {
	Channel    string   `json:"channel,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`
	Template   string   `json:"template,omitempty"`
}

type CallWebhook struct {
	URL            string            `json:"url"                       validate:"required"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Payload        map[string]any    `json:"payload,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"gte=0"`
}

type ChainActions struct {
	ChildIDs []string `json:"child_ids" validate:"required,min=1"`
}

func (RunCode) Kind() ActionKind          { return ActionRunCode }
func (CallMethod) Kind() ActionKind       { return ActionCallMethod }
func (UpdateRecord) Kind() ActionKind     { return ActionUpdateRecord }
func (CreateRecord) Kind() ActionKind     { return ActionCreateRecord }
func (SendNotification) Kind() ActionKind { return ActionSendNotification }
func (CallWebhook) Kind() ActionKind      { return ActionCallWebhook }
func (ChainActions) Kind() ActionKind     { return ActionChainActions }

func (RunCode) isActionSpec()          {}
func (CallMethod) isActionSpec()       {}
func (UpdateRecord) isActionSpec()     {}
func (CreateRecord) isActionSpec()     {}
func (SendNotification) isActionSpec() {}
func (CallWebhook) isActionSpec()      {}
func (ChainActions) isActionSpec()     {}

// ServerAction is a reusable, named side effect.
type ServerAction struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"       validate:"required"`
	Name      string     `json:"name"       validate:"required"`
	ModelName string     `json:"model_name"`
	Sequence  int        `json:"sequence"`
	Active    bool       `json:"active"`
	Spec      ActionSpec `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Kind returns the variant of the action's spec, or "" when unset.
func (a *ServerAction) Kind() ActionKind {
	if a.Spec == nil {
		return ""
	}

	return a.Spec.Kind()
}

type serverActionAlias ServerAction

type serverActionJSON struct {
	*serverActionAlias
	Kind ActionKind      `json:"kind"`
	Spec json.RawMessage `json:"spec"`
}

func (a ServerAction) MarshalJSON() ([]byte, error) {
	if a.Spec == nil {
		return nil, fmt.Errorf("action %q has no spec", a.Code)
	}

	spec, err := json.Marshal(a.Spec)
	if err != nil {
		return nil, err
	}

	alias := serverActionAlias(a)

	return json.Marshal(serverActionJSON{
		serverActionAlias: &alias,
		Kind:              a.Spec.Kind(),
		Spec:              spec,
	})
}

func (a *ServerAction) UnmarshalJSON(data []byte) error {
	raw := serverActionJSON{serverActionAlias: (*serverActionAlias)(a)}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	spec, err := DecodeActionSpec(raw.Kind, raw.Spec)
	if err != nil {
		return err
	}

	a.Spec = spec

	return nil
}

// DecodeActionSpec builds the typed spec for kind from its JSON payload.
//
// nolint:ireturn // closed union
func DecodeActionSpec(kind ActionKind, data json.RawMessage) (ActionSpec, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	switch kind {
	case ActionRunCode:
		return decodeSpec[RunCode](data)
	case ActionCallMethod:
		return decodeSpec[CallMethod](data)
	case ActionUpdateRecord:
		return decodeSpec[UpdateRecord](data)
	case ActionCreateRecord:
		return decodeSpec[CreateRecord](data)
	case ActionSendNotification:
		return decodeSpec[SendNotification](data)
	case ActionCallWebhook:
		return decodeSpec[CallWebhook](data)
	case ActionChainActions:
		return decodeSpec[ChainActions](data)
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}

func decodeSpec[T ActionSpec](data json.RawMessage) (ActionSpec, error) {
	var spec T
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	return spec, nil
}
