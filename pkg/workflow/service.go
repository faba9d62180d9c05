// Package workflow drives records through the states of configurable
// workflows via guarded transitions.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/lock"
	"github.com/dukex/ruleflow/pkg/metrics"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/template"
)

const defaultRecordLockTTL = time.Minute

// Service is the workflow state machine. It is safe for concurrent use;
// concurrent transitions of one record are resolved by the state version.
type Service struct {
	persistence persistence.Persistence
	store       record.Store
	executor    *actions.Executor
	evaluator   actions.Evaluator
	locker      lock.Locker
	publisher   eventbus.EventPublisher
	idgen       func() string
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Service)

// WithExecutor replaces the executor built from the service's store and
// action repository.
func WithExecutor(executor *actions.Executor) Option {
	return func(s *Service) { s.executor = executor }
}

// WithEvaluator sets the evaluator for guard expressions.
func WithEvaluator(evaluator actions.Evaluator) Option {
	return func(s *Service) { s.evaluator = evaluator }
}

// WithLocker serialises transitions of the same record across callers.
// Without it, a concurrent transition fails with invalid_state at save.
func WithLocker(locker lock.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

// WithEventBus publishes a transition.executed event per transition.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Service) {
		s.publisher = bus
		s.idgen = bus.GenerateID
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("module", "workflow") }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the workflow service. store may be nil when no guard
// conditions or actions need to read records.
func NewService(p persistence.Persistence, store record.Store, opts ...Option) *Service {
	s := &Service{
		persistence: p,
		store:       store,
		logger:      slog.Default().With("module", "workflow"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.evaluator == nil {
		s.evaluator = template.NewEvaluator()
	}

	if s.executor == nil {
		s.executor = actions.NewExecutor(
			actions.WithStore(store),
			actions.WithActionSource(p.Actions()),
			actions.WithEvaluator(s.evaluator),
			actions.WithLogger(s.logger),
			actions.WithTracer(s.tracer),
			actions.WithMetrics(s.metrics),
		)
	}

	s.tracer = otelhelper.Tracer(s.tracer)

	return s
}

// workflowByID loads a workflow or fails with not_found.
func (s *Service) workflowByID(ctx context.Context, op, id string) (*models.WorkflowDefinition, error) {
	wf, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load workflow %s: %w", op, id, err)
	}

	if wf == nil {
		return nil, models.NewNotFoundError(op, "workflow %q does not exist", id)
	}

	return wf, nil
}

// activeWorkflowForModel returns the single active workflow driving model.
func (s *Service) activeWorkflowForModel(ctx context.Context, op, model string) (*models.WorkflowDefinition, error) {
	workflows, err := s.persistence.Workflows().List(ctx, persistence.ListWorkflowsOptions{ModelName: model, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list workflows: %w", op, err)
	}

	if len(workflows) == 0 {
		return nil, models.NewNotFoundError(op, "no active workflow for model %q", model)
	}

	return workflows[0], nil
}

func (s *Service) newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	return id.String(), nil
}
