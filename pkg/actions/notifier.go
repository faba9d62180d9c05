package actions

import (
	"context"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/record"
)

// Notification is a rendered SendNotification request.
type Notification struct {
	ActionCode string
	Channel    string
	Recipients []string
	Subject    string
	Body       string
	Template   string
	Record     record.Ref
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// EventNotifier hands notifications to a delivery service by publishing a
// notification.requested event.
type EventNotifier struct {
	bus eventbus.EventBus
}

func NewEventNotifier(bus eventbus.EventBus) *EventNotifier {
	return &EventNotifier{bus: bus}
}

func (n *EventNotifier) Notify(ctx context.Context, notification Notification) error {
	event := events.NotificationRequested{
		BaseEvent:  events.NewBaseEvent(n.bus.GenerateID(), events.NotificationRequestedEvent),
		ActionCode: notification.ActionCode,
		Channel:    notification.Channel,
		Recipients: notification.Recipients,
		Subject:    notification.Subject,
		Body:       notification.Body,
		Template:   notification.Template,
		ModelName:  notification.Record.Model,
		RecordID:   notification.Record.ID,
	}

	return n.bus.Publish(ctx, notification.Record.Model+":"+notification.Record.ID, event)
}

// LogNotifier only logs notifications. It is the default when no delivery
// is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "notification requested",
		"action", notification.ActionCode,
		"channel", notification.Channel,
		"recipients", notification.Recipients,
		"subject", notification.Subject,
		"model", notification.Record.Model,
		"record", notification.Record.ID,
	)

	return nil
}
