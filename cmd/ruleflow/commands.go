package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/definitions"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/scheduler"
	"github.com/dukex/ruleflow/pkg/web"
)

const shutdownTimeout = 10 * time.Second

func definitionsArg(command *cli.Command) (string, error) {
	path := command.Args().First()
	if path == "" {
		return "", errors.New("missing definitions file argument")
	}

	return path, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a definitions bundle without touching any database",
		ArgsUsage: "<bundle.json|bundle.yaml>",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("validate")

			path, err := definitionsArg(command)
			if err != nil {
				return err
			}

			bundle, err := definitions.LoadFile(path)
			if err != nil {
				return err
			}

			summary, err := definitions.Check(ctx, bundle, logger)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Bundle is valid", "file", path)

			return printJSON(command.Root().Writer, summary)
		},
	}
}

func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create or update the definitions of a bundle",
		ArgsUsage: "<bundle.json|bundle.yaml>",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("import")

			cfg, err := resolveConfig(command)
			if err != nil {
				return err
			}

			path, err := definitionsArg(command)
			if err != nil {
				return err
			}

			bundle, err := definitions.LoadFile(path)
			if err != nil {
				return err
			}

			h, err := newHost(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer h.Close(ctx)

			summary, err := definitions.NewApplier(h.workflows, h.engine, logger).Apply(ctx, bundle)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Bundle imported", "file", path)

			return printJSON(command.Root().Writer, summary)
		},
	}
}

func GraphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Print the state graph of a workflow",
		ArgsUsage: "<workflow-code>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (mermaid, json)",
				Value: "mermaid",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := resolveConfig(command)
			if err != nil {
				return err
			}

			code := command.Args().First()
			if code == "" {
				return errors.New("missing workflow code argument")
			}

			h, err := newHost(ctx, cfg, log.WithModule("graph"))
			if err != nil {
				return err
			}
			defer h.Close(ctx)

			graph, err := h.workflows.Visualize(ctx, code)
			if err != nil {
				return err
			}

			switch command.String("format") {
			case "json":
				return printJSON(command.Root().Writer, graph)
			case "mermaid":
				_, err := io.WriteString(command.Root().Writer, graph.Mermaid())

				return err
			default:
				return fmt.Errorf("unsupported format %q", command.String("format"))
			}
		},
	}
}

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run every time based rule once and print the outcome",
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := resolveConfig(command)
			if err != nil {
				return err
			}

			logger := log.WithModule("run")

			h, err := newHost(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer h.Close(ctx)

			s, err := scheduler.New(h.engine, config.DefaultSchedule, logger)
			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, s.RunOnce(ctx))
		},
	}
}

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run time based rules on a schedule and serve the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   config.DefaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for time based rules",
				Value:   config.DefaultSchedule,
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "definitions",
				Usage:   "Bundle to import before starting",
				Sources: cli.EnvVars("DEFINITIONS"),
			},
			&cli.BoolFlag{
				Name:    "watch",
				Usage:   "Re-import the definitions bundle whenever it changes",
				Sources: cli.EnvVars("WATCH_DEFINITIONS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("serve")

			cfg, err := resolveConfig(command)
			if err != nil {
				return err
			}

			if command.IsSet("definitions") {
				cfg.Definitions = command.String("definitions")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			h, err := newHost(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer h.Close(context.WithoutCancel(ctx))

			if cfg.Definitions != "" {
				applier := definitions.NewApplier(h.workflows, h.engine, logger)

				bundle, err := definitions.LoadFile(cfg.Definitions)
				if err != nil {
					return err
				}

				if _, err := applier.Apply(ctx, bundle); err != nil {
					return err
				}

				if command.Bool("watch") {
					go func() {
						if err := definitions.Watch(ctx, cfg.Definitions, applier, logger); err != nil {
							logger.ErrorContext(ctx, "Definitions watcher stopped", "error", err)
						}
					}()
				}
			}

			s, err := scheduler.New(h.engine, cfg.Schedule, logger)
			if err != nil {
				return err
			}

			if err := s.Start(ctx); err != nil {
				return err
			}

			handlers := web.NewAPIHandlers(
				h.workflows,
				h.engine,
				h.store,
				validator.New(validator.WithRequiredStructEnabled()),
				map[string]web.HealthChecker{"persistence": h.persistence},
			)
			app := web.App(handlers, h.registry)

			errCh := make(chan error, 1)

			go func() {
				logger.InfoContext(ctx, "Starting HTTP server", "port", cfg.Port, "schedule", cfg.Schedule, "next_run", s.Next())
				errCh <- web.Listen(app, cfg.Port)
			}()

			select {
			case err = <-errCh:
				if err != nil {
					logger.ErrorContext(ctx, "HTTP server failed", "error", err)
				}
			case <-ctx.Done():
				logger.InfoContext(ctx, "Shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
				logger.ErrorContext(shutdownCtx, "Failed to stop HTTP server", "error", shutdownErr)
			}

			if stopErr := s.Stop(shutdownCtx); stopErr != nil {
				logger.ErrorContext(shutdownCtx, "Failed to stop scheduler", "error", stopErr)
			}

			return err
		},
	}
}
