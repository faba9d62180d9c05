package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/ruleflow/pkg/channels/gochannel"
	"github.com/dukex/ruleflow/pkg/channels/kafka"
	"github.com/dukex/ruleflow/pkg/eventbus"
)

// ConsumerGroup is the Kafka consumer group of the ruleflow service.
const ConsumerGroup = "ruleflow"

// NewEventBus creates the event bus for provider. An empty provider
// disables publishing and returns nil. consumerGroup only matters for
// Kafka; processes that must each see every event need distinct groups.
func NewEventBus(provider, brokers, consumerGroup string, logger *slog.Logger) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "":
		return nil, nil
	case "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), consumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
