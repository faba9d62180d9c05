// Package main provides the ruleflow command: definition import and
// validation, workflow graphs, and the scheduler host that runs time based
// rules and serves the HTTP API.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/log"
)

const serviceName = "ruleflow"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  serviceName,
		Usage:                 "Workflow state machines and automation rules for business records",
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			ValidateCommand(),
			ImportCommand(),
			GraphCommand(),
			RunCommand(),
			ServeCommand(),
			WatchCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML host configuration file",
			Sources: cli.EnvVars("RULEFLOW_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (file://<dir> or postgres://...)",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   config.DefaultLogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus for domain events (gochannel, kafka); empty disables publishing",
			Sources: cli.EnvVars("EVENT_BUS"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for distributed locks; empty uses in-process locks",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "records",
			Usage:   "JSON record snapshot to load into an in-memory record store",
			Sources: cli.EnvVars("RECORDS"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING"),
		},
	}
}

// resolveConfig reads the configuration file, if any, and overlays every
// flag that was set explicitly or through its environment variable.
func resolveConfig(command *cli.Command) (config.Config, error) {
	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]*string{
		"database-url":  &cfg.DatabaseURL,
		"log-level":     &cfg.LogLevel,
		"event-bus":     &cfg.EventBus,
		"kafka-brokers": &cfg.KafkaBrokers,
		"redis-url":     &cfg.RedisURL,
		"records":       &cfg.Records,
	}

	for name, target := range overrides {
		if command.IsSet(name) {
			*target = command.String(name)
		}
	}

	if command.IsSet("tracing") {
		cfg.Tracing = command.Bool("tracing")
	}

	if command.IsSet("schedule") {
		cfg.Schedule = command.String("schedule")
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	log.Setup(cfg.LogLevel)

	return cfg, nil
}
