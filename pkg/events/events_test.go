package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	assert.Equal(t, TransitionExecutedEvent, TransitionExecuted{}.GetType())
	assert.Equal(t, RuleExecutedEvent, RuleExecuted{}.GetType())
	assert.Equal(t, RuleFailedEvent, RuleFailed{}.GetType())
	assert.Equal(t, NotificationRequestedEvent, NotificationRequested{}.GetType())
}

func TestNotificationRequested_JSON(t *testing.T) {
	event := NotificationRequested{
		BaseEvent:  NewBaseEvent("01H", NotificationRequestedEvent),
		ActionCode: "notify_manager",
		Recipients: []string{"manager@example.com"},
		Subject:    "Leave request",
		ModelName:  "leave.request",
		RecordID:   "7",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "notification.requested", decoded["type"])
	assert.Equal(t, "notify_manager", decoded["action_code"])
	assert.Equal(t, "7", decoded["record_id"])
	assert.NotContains(t, decoded, "template")
}
