package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/ruleflow/pkg/filter"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

const (
	opCreateWorkflow   = "CreateWorkflow"
	opUpdateWorkflow   = "UpdateWorkflow"
	opDeleteWorkflow   = "DeleteWorkflow"
	opGetWorkflow      = "GetWorkflow"
	opCreateTransition = "CreateTransition"
	opUpdateTransition = "UpdateTransition"
	opDeleteTransition = "DeleteTransition"
)

// WorkflowUpdate holds the fields UpdateWorkflow changes. Nil fields are
// left as they are.
type WorkflowUpdate struct {
	Name         *string
	Description  *string
	States       []models.State
	DefaultState *string
	Active       *bool
}

// CreateWorkflow validates and stores a new workflow. An empty default
// state is derived from the start state, else the first state.
func (s *Service) CreateWorkflow(ctx context.Context, wf *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if wf == nil {
		return nil, models.NewConfigurationError(opCreateWorkflow, "no workflow given")
	}

	if err := s.validateWorkflow(ctx, opCreateWorkflow, wf); err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	wf.ID = id
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := s.persistence.Workflows().Save(ctx, wf); err != nil {
		if persistence.IsAlreadyExists(err) {
			return nil, models.NewConfigurationError(opCreateWorkflow, "workflow code %q is already used", wf.Code)
		}

		return nil, fmt.Errorf("%s: %w", opCreateWorkflow, err)
	}

	s.logger.InfoContext(ctx, "workflow created", "workflow", wf.Code, "model", wf.ModelName)

	return wf, nil
}

func (s *Service) validateWorkflow(ctx context.Context, op string, wf *models.WorkflowDefinition) error {
	if err := models.ValidateStruct(op, wf); err != nil {
		return err
	}

	seen := make(map[string]bool, len(wf.States))
	for _, st := range wf.States {
		if seen[st.Code] {
			return models.NewConfigurationError(op, "state %q is declared twice", st.Code)
		}

		seen[st.Code] = true
	}

	if wf.DefaultState == "" {
		wf.DefaultState = wf.ResolveDefaultState()
	}

	if !wf.HasState(wf.DefaultState) {
		return models.NewConfigurationError(op, "default state %q is not declared", wf.DefaultState)
	}

	if !wf.Active {
		return nil
	}

	active, err := s.persistence.Workflows().List(ctx, persistence.ListWorkflowsOptions{ModelName: wf.ModelName, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("%s: failed to list workflows: %w", op, err)
	}

	for _, other := range active {
		if other.ID != wf.ID {
			return models.NewConfigurationError(op, "model %q already has active workflow %q", wf.ModelName, other.Code)
		}
	}

	return nil
}

// UpdateWorkflow applies upd to the workflow with id. Removing a state is
// refused while a transition or a record still uses it.
func (s *Service) UpdateWorkflow(ctx context.Context, id string, upd WorkflowUpdate) (*models.WorkflowDefinition, error) {
	wf, err := s.workflowByID(ctx, opUpdateWorkflow, id)
	if err != nil {
		return nil, err
	}

	previous := *wf

	if upd.Name != nil {
		wf.Name = *upd.Name
	}

	if upd.Description != nil {
		wf.Description = *upd.Description
	}

	if upd.Active != nil {
		wf.Active = *upd.Active
	}

	if upd.States != nil {
		wf.States = upd.States
		if upd.DefaultState == nil && !wf.HasState(wf.DefaultState) {
			wf.DefaultState = ""
		}
	}

	if upd.DefaultState != nil {
		wf.DefaultState = *upd.DefaultState
	}

	if err := s.validateWorkflow(ctx, opUpdateWorkflow, wf); err != nil {
		return nil, err
	}

	if upd.States != nil {
		if err := s.checkRemovedStates(ctx, &previous, wf); err != nil {
			return nil, err
		}
	}

	wf.UpdatedAt = s.now().UTC()

	if err := s.persistence.Workflows().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("%s: %w", opUpdateWorkflow, err)
	}

	return wf, nil
}

func (s *Service) checkRemovedStates(ctx context.Context, previous, wf *models.WorkflowDefinition) error {
	transitions, err := s.persistence.Transitions().ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("%s: failed to list transitions: %w", opUpdateWorkflow, err)
	}

	for _, t := range transitions {
		if !wf.HasState(t.FromState) || !wf.HasState(t.ToState) {
			return models.NewConfigurationError(opUpdateWorkflow,
				"transition %q uses a removed state (%s -> %s)", t.Code, t.FromState, t.ToState)
		}
	}

	for _, st := range previous.States {
		if wf.HasState(st.Code) {
			continue
		}

		records, err := s.persistence.States().ListInState(ctx, wf.ID, st.Code)
		if err != nil {
			return fmt.Errorf("%s: failed to list records: %w", opUpdateWorkflow, err)
		}

		if len(records) > 0 {
			return models.NewConfigurationError(opUpdateWorkflow,
				"state %q still holds %d record(s)", st.Code, len(records))
		}
	}

	return nil
}

// DeleteWorkflow removes a workflow with its transitions and state
// records. Activity entries are kept with their references cleared.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	wf, err := s.workflowByID(ctx, opDeleteWorkflow, id)
	if err != nil {
		return err
	}

	transitions, err := s.persistence.Transitions().ListByWorkflow(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: failed to list transitions: %w", opDeleteWorkflow, err)
	}

	for _, t := range transitions {
		if err := s.persistence.Activities().DetachTransition(ctx, t.ID); err != nil {
			return fmt.Errorf("%s: %w", opDeleteWorkflow, err)
		}
	}

	if err := s.persistence.Activities().DetachWorkflow(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", opDeleteWorkflow, err)
	}

	if err := s.persistence.Transitions().DeleteByWorkflow(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", opDeleteWorkflow, err)
	}

	if err := s.persistence.States().DeleteByWorkflow(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", opDeleteWorkflow, err)
	}

	if err := s.persistence.Workflows().Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", opDeleteWorkflow, err)
	}

	s.logger.InfoContext(ctx, "workflow deleted", "workflow", wf.Code, "transitions", len(transitions))

	return nil
}

// GetWorkflow returns the workflow with code.
func (s *Service) GetWorkflow(ctx context.Context, code string) (*models.WorkflowDefinition, error) {
	wf, err := s.persistence.Workflows().GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opGetWorkflow, err)
	}

	if wf == nil {
		return nil, models.NewNotFoundError(opGetWorkflow, "workflow %q does not exist", code)
	}

	return wf, nil
}

// ListWorkflows lists workflows, optionally limited to one model and to
// active ones.
func (s *Service) ListWorkflows(ctx context.Context, model string, activeOnly bool) ([]*models.WorkflowDefinition, error) {
	return s.persistence.Workflows().List(ctx, persistence.ListWorkflowsOptions{ModelName: model, ActiveOnly: activeOnly})
}

// CreateTransition validates and stores a transition. Its states must be
// declared by the parent workflow and its code unique within it.
func (s *Service) CreateTransition(ctx context.Context, t *models.Transition) (*models.Transition, error) {
	if t == nil {
		return nil, models.NewConfigurationError(opCreateTransition, "no transition given")
	}

	if err := s.validateTransition(ctx, opCreateTransition, t); err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.persistence.Transitions().Save(ctx, t); err != nil {
		if persistence.IsAlreadyExists(err) {
			return nil, models.NewConfigurationError(opCreateTransition, "transition code %q is already used", t.Code)
		}

		return nil, fmt.Errorf("%s: %w", opCreateTransition, err)
	}

	return t, nil
}

// UpdateTransition replaces a stored transition. It cannot move to another
// workflow.
func (s *Service) UpdateTransition(ctx context.Context, t *models.Transition) (*models.Transition, error) {
	if t == nil {
		return nil, models.NewConfigurationError(opUpdateTransition, "no transition given")
	}

	existing, err := s.persistence.Transitions().GetByID(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opUpdateTransition, err)
	}

	if existing == nil {
		return nil, models.NewNotFoundError(opUpdateTransition, "transition %q does not exist", t.ID)
	}

	if existing.WorkflowID != t.WorkflowID {
		return nil, models.NewConfigurationError(opUpdateTransition, "transition %q cannot move to another workflow", t.Code)
	}

	if err := s.validateTransition(ctx, opUpdateTransition, t); err != nil {
		return nil, err
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.now().UTC()

	if err := s.persistence.Transitions().Save(ctx, t); err != nil {
		return nil, fmt.Errorf("%s: %w", opUpdateTransition, err)
	}

	return t, nil
}

func (s *Service) validateTransition(ctx context.Context, op string, t *models.Transition) error {
	if err := models.ValidateStruct(op, t); err != nil {
		return err
	}

	wf, err := s.persistence.Workflows().GetByID(ctx, t.WorkflowID)
	if err != nil {
		return fmt.Errorf("%s: failed to load workflow: %w", op, err)
	}

	if wf == nil {
		return models.NewConfigurationError(op, "workflow %q does not exist", t.WorkflowID)
	}

	if !wf.HasState(t.FromState) {
		return models.NewConfigurationError(op, "from state %q is not declared by workflow %q", t.FromState, wf.Code)
	}

	if !wf.HasState(t.ToState) {
		return models.NewConfigurationError(op, "to state %q is not declared by workflow %q", t.ToState, wf.Code)
	}

	if err := filter.Validate(t.Guard.Domain); err != nil {
		return err
	}

	t.Guard.Domain = filter.Normalize(t.Guard.Domain)

	siblings, err := s.persistence.Transitions().ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("%s: failed to list transitions: %w", op, err)
	}

	for _, other := range siblings {
		if other.Code == t.Code && other.ID != t.ID {
			return models.NewConfigurationError(op, "workflow %q already has a transition %q", wf.Code, t.Code)
		}
	}

	if t.ActionID != "" || t.ActionCode != "" {
		action, err := s.executor.Resolve(ctx, t.ActionID, t.ActionCode)
		if err != nil {
			return err
		}

		if action.ModelName != "" && action.ModelName != wf.ModelName {
			return models.NewConfigurationError(op, "action %q targets %s, workflow %q targets %s",
				action.Code, action.ModelName, wf.Code, wf.ModelName)
		}
	}

	return nil
}

// DeleteTransition removes a transition; activity entries keep their rows
// with the transition reference cleared.
func (s *Service) DeleteTransition(ctx context.Context, id string) error {
	existing, err := s.persistence.Transitions().GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", opDeleteTransition, err)
	}

	if existing == nil {
		return models.NewNotFoundError(opDeleteTransition, "transition %q does not exist", id)
	}

	if err := s.persistence.Activities().DetachTransition(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", opDeleteTransition, err)
	}

	return s.persistence.Transitions().Delete(ctx, id)
}

// ListTransitions lists a workflow's transitions ordered by sequence.
// fromState and activeOnly narrow the result when set.
func (s *Service) ListTransitions(ctx context.Context, workflowID, fromState string, activeOnly bool) ([]*models.Transition, error) {
	all, err := s.persistence.Transitions().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	transitions := make([]*models.Transition, 0, len(all))
	for _, t := range all {
		if fromState != "" && t.FromState != fromState {
			continue
		}

		if activeOnly && !t.Active {
			continue
		}

		transitions = append(transitions, t)
	}

	models.SortTransitions(transitions)

	return transitions, nil
}
