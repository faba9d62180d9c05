package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/log"
)

var watchedEvents = []events.EventType{
	events.TransitionExecutedEvent,
	events.RuleExecutedEvent,
	events.RuleFailedEvent,
	events.NotificationRequestedEvent,
}

// WatchCommand prints the domain events published by other ruleflow
// processes, one JSON document per line.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print workflow and automation events as they are published",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("watch")

			cfg, err := resolveConfig(command)
			if err != nil {
				return err
			}

			if cfg.EventBus == "" {
				return errors.New("an event bus is required (--event-bus or EVENT_BUS)")
			}

			bus, err := cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, cmd.ConsumerGroup+"-watch-"+watermill.NewShortUUID(), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex

			enc := json.NewEncoder(command.Root().Writer)

			for _, eventType := range watchedEvents {
				if err := bus.Handle(eventType, func(_ context.Context, event any) error {
					mu.Lock()
					defer mu.Unlock()

					return enc.Encode(event)
				}); err != nil {
					return err
				}
			}

			if err := bus.Subscribe(ctx); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Watching events", "event_bus", cfg.EventBus)

			<-ctx.Done()

			return nil
		},
	}
}
