// Package persistence provides the storage abstraction for workflow
// definitions, state records, activity logs, server actions and automation rules.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
)

// Persistence groups the repositories of one storage backend.
type Persistence interface {
	Workflows() WorkflowRepository
	Transitions() TransitionRepository
	States() StateRepository
	Activities() ActivityRepository
	Actions() ActionRepository
	Rules() RuleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters WorkflowRepository.List.
type ListWorkflowsOptions struct {
	ModelName  string
	ActiveOnly bool
}

// WorkflowRepository stores workflow definitions. Getters return (nil, nil)
// when nothing matches.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	GetByCode(ctx context.Context, code string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// TransitionRepository stores transitions. ListByWorkflow returns them
// ordered by sequence, then code.
type TransitionRepository interface {
	Save(ctx context.Context, transition *models.Transition) error
	GetByID(ctx context.Context, id string) (*models.Transition, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Transition, error)
	Delete(ctx context.Context, id string) error
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

// StateRepository stores per-record workflow state with optimistic versioning.
type StateRepository interface {
	Get(ctx context.Context, workflowID, modelName, recordID string) (*models.StateRecord, error)
	// FindByRecord returns the state record of any workflow tracking the record.
	FindByRecord(ctx context.Context, modelName, recordID string) (*models.StateRecord, error)
	// Create inserts state unless a row for the same (workflow, model, record)
	// exists. It returns whichever row is persisted afterwards.
	Create(ctx context.Context, state *models.StateRecord) (*models.StateRecord, error)
	// Save persists state if the stored version still equals expectedVersion,
	// and bumps state.Version. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, state *models.StateRecord, expectedVersion int64) error
	ListInState(ctx context.Context, workflowID, state string) ([]*models.StateRecord, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

// ActivityFilter narrows ActivityRepository.List. Zero values do not filter.
type ActivityFilter struct {
	WorkflowID string
	ModelName  string
	RecordID   string
	ActorID    string
	Limit      int
}

// ActivityRepository is the append-only transition audit log.
type ActivityRepository interface {
	Append(ctx context.Context, entry *models.ActivityLogEntry) error
	// List returns entries newest first.
	List(ctx context.Context, filter ActivityFilter) ([]*models.ActivityLogEntry, error)
	// DetachWorkflow clears the workflow reference on every entry pointing at it.
	DetachWorkflow(ctx context.Context, workflowID string) error
	// DetachTransition clears the transition reference on every entry pointing at it.
	DetachTransition(ctx context.Context, transitionID string) error
}

// ActionRepository stores server actions.
type ActionRepository interface {
	Save(ctx context.Context, action *models.ServerAction) error
	GetByID(ctx context.Context, id string) (*models.ServerAction, error)
	GetByCode(ctx context.Context, code string) (*models.ServerAction, error)
	List(ctx context.Context) ([]*models.ServerAction, error)
	Delete(ctx context.Context, id string) error
}

// RuleFilter narrows RuleRepository.List. Zero values do not filter.
type RuleFilter struct {
	ModelName  string
	Trigger    models.Trigger
	ActiveOnly bool
}

// RuleRepository stores automation rules. List orders by sequence, then code.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, id string) (*models.AutomationRule, error)
	GetByCode(ctx context.Context, code string) (*models.AutomationRule, error)
	List(ctx context.Context, filter RuleFilter) ([]*models.AutomationRule, error)
	UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error
	Delete(ctx context.Context, id string) error
}
