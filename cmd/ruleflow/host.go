package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/automation"
	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/lock"
	"github.com/dukex/ruleflow/pkg/metrics"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/workflow"
)

var errNoDatabase = errors.New("database url is required (--database-url or DATABASE_URL)")

// host holds everything a command needs once the configuration is known.
type host struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	store       record.Store
	bus         eventbus.EventBus
	locker      lock.Locker
	registry    *prometheus.Registry
	workflows   *workflow.Service
	engine      *automation.Engine
}

func newHost(ctx context.Context, cfg config.Config, logger *slog.Logger) (*host, error) {
	if cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}

	h := &host{logger: logger}

	p, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	h.persistence = p

	if h.store, err = cmd.NewRecordStore(ctx, logger, cfg.Records, p); err != nil {
		h.Close(ctx)

		return nil, fmt.Errorf("failed to create record store: %w", err)
	}

	if h.bus, err = cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, cmd.ConsumerGroup, logger); err != nil {
		h.Close(ctx)

		return nil, err
	}

	if h.locker, err = cmd.NewLocker(cfg.RedisURL); err != nil {
		h.Close(ctx)

		return nil, fmt.Errorf("failed to create locker: %w", err)
	}

	var tracer trace.Tracer

	if cfg.Tracing {
		if tracer, err = otelhelper.NewTracer(ctx, serviceName); err != nil {
			h.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	h.registry = prometheus.NewRegistry()
	h.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(h.registry)

	var notifier actions.Notifier = actions.NewLogNotifier(logger.With("module", "notifier"))
	if h.bus != nil {
		notifier = actions.NewEventNotifier(h.bus)
	}

	executor := actions.NewExecutor(
		actions.WithStore(h.store),
		actions.WithActionSource(p.Actions()),
		actions.WithNotifier(notifier),
		actions.WithLogger(logger.With("module", "actions")),
		actions.WithTracer(tracer),
		actions.WithMetrics(m),
	)

	workflowOpts := []workflow.Option{
		workflow.WithExecutor(executor),
		workflow.WithLocker(h.locker),
		workflow.WithLogger(logger.With("module", "workflow")),
		workflow.WithTracer(tracer),
		workflow.WithMetrics(m),
	}

	engineOpts := []automation.Option{
		automation.WithExecutor(executor),
		automation.WithLocker(h.locker),
		automation.WithLogger(logger.With("module", "automation")),
		automation.WithTracer(tracer),
		automation.WithMetrics(m),
	}

	if h.bus != nil {
		workflowOpts = append(workflowOpts, workflow.WithEventBus(h.bus))
		engineOpts = append(engineOpts, automation.WithEventBus(h.bus))
	}

	h.workflows = workflow.NewService(p, h.store, workflowOpts...)
	h.engine = automation.NewEngine(p.Rules(), p.Actions(), h.store, engineOpts...)

	return h, nil
}

func (h *host) Close(ctx context.Context) {
	if h.bus != nil {
		if err := h.bus.Close(); err != nil {
			h.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if h.persistence != nil {
		if err := h.persistence.Close(ctx); err != nil {
			h.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}
}
