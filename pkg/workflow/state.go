package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/filter"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/record"
)

const (
	opInitializeState   = "InitializeState"
	opExecuteTransition = "ExecuteTransition"
	opAvailable         = "GetAvailableTransitions"
	opGetState          = "GetState"
	opRecordsInState    = "RecordsInState"
)

// TransitionRequest asks for one transition of one record.
type TransitionRequest struct {
	TransitionID string
	Model        string
	RecordID     string
	Actor        models.Actor
	Note         string
	// Vars are merged into the context passed to the transition's effect.
	Vars map[string]any
	// Automatic marks transitions fired by the system rather than a user.
	Automatic bool
}

// Result is the outcome of a committed transition. ActionError is set when
// the state moved but the transition's effect failed.
type Result struct {
	State        *models.StateRecord `json:"state"`
	FromState    string              `json:"from_state"`
	ToState      string              `json:"to_state"`
	ActionResult any                 `json:"action_result,omitempty"`
	ActionError  string              `json:"action_error,omitempty"`

	// ActivityError is set when the state moved but its activity row
	// could not be written.
	ActivityError string `json:"activity_error,omitempty"`
}

// AvailableTransition summarises a transition the actor may fire now.
type AvailableTransition struct {
	ID        string              `json:"id"`
	Code      string              `json:"code"`
	Name      string              `json:"name"`
	FromState string              `json:"from_state"`
	ToState   string              `json:"to_state"`
	UI        models.TransitionUI `json:"ui"`
	Sequence  int                 `json:"sequence"`
}

// InitializeState creates the state record of a record under the model's
// active workflow. An empty initialState means the workflow default. When
// the record is already tracked the stored state is returned unchanged.
func (s *Service) InitializeState(ctx context.Context, model, recordID, initialState string) (*models.StateRecord, error) {
	wf, err := s.activeWorkflowForModel(ctx, opInitializeState, model)
	if err != nil {
		return nil, err
	}

	if initialState == "" {
		initialState = wf.ResolveDefaultState()
	}

	if !wf.HasState(initialState) {
		return nil, models.NewConfigurationError(opInitializeState,
			"state %q is not declared by workflow %q", initialState, wf.Code)
	}

	return s.createState(ctx, wf, model, recordID, initialState)
}

func (s *Service) createState(
	ctx context.Context,
	wf *models.WorkflowDefinition,
	model, recordID, initial string,
) (*models.StateRecord, error) {
	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	state, err := s.persistence.States().Create(ctx, &models.StateRecord{
		ID:           id,
		WorkflowID:   wf.ID,
		ModelName:    model,
		RecordID:     recordID,
		CurrentState: initial,
		History:      []models.HistoryEntry{},
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create state for %s:%s: %w", model, recordID, err)
	}

	return state, nil
}

// GetAvailableTransitions lists the active transitions leaving the record's
// current state whose guard passes for actor. Untracked records are treated
// as sitting in the default state.
func (s *Service) GetAvailableTransitions(
	ctx context.Context,
	model, recordID string,
	actor models.Actor,
) ([]AvailableTransition, error) {
	wf, err := s.activeWorkflowForModel(ctx, opAvailable, model)
	if err != nil {
		if models.IsNotFound(err) {
			return []AvailableTransition{}, nil
		}

		return nil, err
	}

	current := wf.ResolveDefaultState()

	state, err := s.persistence.States().Get(ctx, wf.ID, model, recordID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load state: %w", opAvailable, err)
	}

	if state != nil {
		current = state.CurrentState
	}

	transitions, err := s.ListTransitions(ctx, wf.ID, current, true)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list transitions: %w", opAvailable, err)
	}

	rec, err := s.loadRecord(ctx, model, recordID)
	if err != nil {
		return nil, err
	}

	available := make([]AvailableTransition, 0, len(transitions))
	for _, t := range transitions {
		if err := s.checkGuard(ctx, t, rec, actor, nil); err != nil {
			if models.IsGuardFailed(err) {
				continue
			}

			return nil, err
		}

		available = append(available, AvailableTransition{
			ID:        t.ID,
			Code:      t.Code,
			Name:      t.Name,
			FromState: t.FromState,
			ToState:   t.ToState,
			UI:        t.UI,
			Sequence:  t.Sequence,
		})
	}

	return available, nil
}

// ExecuteTransition fires one transition. The state change is committed
// before the transition's effect runs and is kept when the effect fails;
// in that case the returned error is action_failed and the Result is
// still filled in.
func (s *Service) ExecuteTransition(ctx context.Context, req TransitionRequest) (result *Result, err error) {
	started := s.now()

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "workflow.transition",
		attribute.String(otelhelper.TransitionIDKey, req.TransitionID),
		attribute.String(otelhelper.ModelKey, req.Model),
		attribute.String(otelhelper.RecordIDKey, req.RecordID),
	)
	defer span.End()

	var wfCode, trCode string

	defer func() {
		s.metrics.ObserveTransition(wfCode, trCode, started, err)

		if err != nil {
			otelhelper.SetError(span, err)
		}
	}()

	if s.locker != nil {
		unlock, lockErr := s.locker.Lock(ctx, recordLockKey(req.Model, req.RecordID), defaultRecordLockTTL)
		if lockErr != nil {
			return nil, fmt.Errorf("%s: failed to lock record: %w", opExecuteTransition, lockErr)
		}

		defer func() {
			if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				s.logger.WarnContext(ctx, "failed to unlock record", "model", req.Model, "record", req.RecordID, "error", unlockErr)
			}
		}()
	}

	t, err := s.persistence.Transitions().GetByID(ctx, req.TransitionID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load transition: %w", opExecuteTransition, err)
	}

	if t == nil {
		return nil, models.NewNotFoundError(opExecuteTransition, "transition %q does not exist", req.TransitionID)
	}

	wf, err := s.workflowByID(ctx, opExecuteTransition, t.WorkflowID)
	if err != nil {
		return nil, err
	}

	wfCode, trCode = wf.Code, t.Code
	span.SetAttributes(
		attribute.String(otelhelper.WorkflowCodeKey, wf.Code),
		attribute.String(otelhelper.TransitionCodeKey, t.Code),
	)

	if wf.ModelName != req.Model {
		return nil, models.NewConfigurationError(opExecuteTransition,
			"workflow %q drives %s, not %s", wf.Code, wf.ModelName, req.Model)
	}

	state, err := s.persistence.States().Get(ctx, wf.ID, req.Model, req.RecordID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load state: %w", opExecuteTransition, err)
	}

	// An untracked record sits in the default state; its row is only
	// created once the transition is known to fire.
	current := wf.ResolveDefaultState()
	if state != nil {
		current = state.CurrentState
	}

	if err := checkFireable(wf, t, req, current); err != nil {
		return nil, err
	}

	rec, err := s.loadRecord(ctx, req.Model, req.RecordID)
	if err != nil {
		return nil, err
	}

	if err := s.checkGuard(ctx, t, rec, req.Actor, req.Vars); err != nil {
		return nil, err
	}

	if state == nil {
		state, err = s.createState(ctx, wf, req.Model, req.RecordID, current)
		if err != nil {
			return nil, err
		}

		// A concurrent creator may have won with another state.
		if err := checkFireable(wf, t, req, state.CurrentState); err != nil {
			return nil, err
		}
	}

	at := s.now().UTC()
	next := state.Clone()
	entry := next.Advance(t, req.Actor.ID, req.Note, at)

	if err := s.persistence.States().Save(ctx, next, state.Version); err != nil {
		if persistence.IsVersionConflict(err) {
			return nil, &models.Error{
				Kind:   models.KindInvalidState,
				Op:     opExecuteTransition,
				Detail: fmt.Sprintf("record %s:%s changed state concurrently", req.Model, req.RecordID),
				Err:    err,
			}
		}

		return nil, fmt.Errorf("%s: failed to save state: %w", opExecuteTransition, err)
	}

	result = &Result{State: next, FromState: entry.FromState, ToState: entry.ToState}

	actionResult, actionErr := s.runEffect(ctx, t, rec, req, entry)
	result.ActionResult = actionResult

	if actionErr != nil {
		result.ActionError = actionErr.Error()
		s.logger.WarnContext(ctx, "transition effect failed",
			"workflow", wf.Code, "transition", t.Code, "record", req.RecordID, "error", actionErr)
	}

	activityErr := s.recordActivity(ctx, wf, t, req, entry, result)
	if activityErr != nil {
		result.ActivityError = activityErr.Error()
	}

	s.logger.InfoContext(ctx, "transition executed",
		"workflow", wf.Code,
		"transition", t.Code,
		"model", req.Model,
		"record", req.RecordID,
		"from", entry.FromState,
		"to", entry.ToState,
		"actor", req.Actor.ID,
	)

	return result, errors.Join(actionErr, activityErr)
}

// checkFireable verifies the record sits in the transition's source state,
// then that both the workflow and the transition are active.
func checkFireable(wf *models.WorkflowDefinition, t *models.Transition, req TransitionRequest, current string) error {
	if current != t.FromState {
		return models.NewInvalidStateError(opExecuteTransition,
			"record %s:%s is in %q, transition %q leaves %q",
			req.Model, req.RecordID, current, t.Code, t.FromState)
	}

	if !wf.Active {
		return models.NewNotActiveError(opExecuteTransition, "workflow %q is not active", wf.Code)
	}

	if !t.Active {
		return models.NewNotActiveError(opExecuteTransition, "transition %q is not active", t.Code)
	}

	return nil
}

func recordLockKey(model, recordID string) string {
	return "record:" + model + ":" + recordID
}

// loadRecord returns nil when there is no store or the record is unknown.
func (s *Service) loadRecord(ctx context.Context, model, recordID string) (record.Record, error) {
	if s.store == nil {
		return nil, nil
	}

	rec, err := s.store.Load(ctx, model, recordID)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load record %s:%s: %w", model, recordID, err)
	}

	return rec, nil
}

// checkGuard evaluates the permission clause first, then the condition
// clause. A condition cannot pass without a record to check it against.
func (s *Service) checkGuard(
	ctx context.Context,
	t *models.Transition,
	rec record.Record,
	actor models.Actor,
	vars map[string]any,
) error {
	guard := t.Guard

	if len(guard.RequiredGroups) > 0 && !actor.InAnyGroup(guard.RequiredGroups) {
		return models.NewGuardFailedError(opExecuteTransition, models.ClausePermission,
			"actor %q lacks any of groups %v for transition %q", actor.ID, guard.RequiredGroups, t.Code)
	}

	if !guard.HasCondition() {
		return nil
	}

	if rec == nil {
		return models.NewGuardFailedError(opExecuteTransition, models.ClauseCondition,
			"transition %q has a condition but the record cannot be loaded", t.Code)
	}

	bindings := guardBindings(actor, vars)

	if !filter.Matches(guard.Domain, rec, bindings) {
		return models.NewGuardFailedError(opExecuteTransition, models.ClauseCondition,
			"record does not satisfy the domain of transition %q", t.Code)
	}

	if guard.Expression == "" {
		return nil
	}

	out, err := s.evaluator.Run(ctx, guard.Expression, map[string]any{
		"record":  rec,
		"user":    actor,
		"context": map[string]any(bindings),
	})
	if err != nil {
		return &models.Error{
			Kind:   models.KindGuardFailed,
			Op:     opExecuteTransition,
			Clause: models.ClauseCondition,
			Detail: fmt.Sprintf("expression of transition %q failed", t.Code),
			Err:    err,
		}
	}

	ok, err := models.Truthy(out)
	if err != nil || !ok {
		return &models.Error{
			Kind:   models.KindGuardFailed,
			Op:     opExecuteTransition,
			Clause: models.ClauseCondition,
			Detail: fmt.Sprintf("expression of transition %q is false", t.Code),
			Err:    err,
		}
	}

	return nil
}

func guardBindings(actor models.Actor, vars map[string]any) filter.Vars {
	bindings := make(filter.Vars, len(vars)+1)
	for k, v := range vars {
		bindings[k] = v
	}

	if _, ok := bindings["user"]; !ok {
		bindings["user"] = actor
	}

	return bindings
}

// runEffect runs the inline code, then the referenced action. Failures are
// returned as action_failed.
func (s *Service) runEffect(
	ctx context.Context,
	t *models.Transition,
	rec record.Record,
	req TransitionRequest,
	entry models.HistoryEntry,
) (any, error) {
	vars := make(map[string]any, len(req.Vars)+4)
	for k, v := range req.Vars {
		vars[k] = v
	}

	vars["oldState"] = entry.FromState
	vars["newState"] = entry.ToState
	vars["actorId"] = req.Actor.ID
	vars["note"] = req.Note

	var result any

	if t.InlineCode != "" {
		out, err := s.executor.RunCode(ctx, t.InlineCode, rec, vars)
		if err != nil {
			return nil, asActionFailed(err, "inline code of transition %q failed", t.Code)
		}

		result = out
	}

	if t.ActionID == "" && t.ActionCode == "" {
		return result, nil
	}

	action, err := s.executor.Resolve(ctx, t.ActionID, t.ActionCode)
	if err != nil {
		return result, asActionFailed(err, "action of transition %q cannot be resolved", t.Code)
	}

	out, err := s.executor.Execute(ctx, action, rec, vars)
	if err != nil {
		return result, asActionFailed(err, "action %q of transition %q failed", action.Code, t.Code)
	}

	return out, nil
}

func asActionFailed(err error, format string, args ...any) error {
	if models.IsActionFailed(err) {
		return err
	}

	return models.NewActionFailedError(opExecuteTransition, err, format, args...)
}

func (s *Service) recordActivity(
	ctx context.Context,
	wf *models.WorkflowDefinition,
	t *models.Transition,
	req TransitionRequest,
	entry models.HistoryEntry,
	result *Result,
) error {
	id, err := s.newID()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to log activity", "error", err)

		return fmt.Errorf("%s: failed to log activity: %w", opExecuteTransition, err)
	}

	workflowID, transitionID := wf.ID, t.ID

	activity := &models.ActivityLogEntry{
		ID:             id,
		WorkflowID:     &workflowID,
		TransitionID:   &transitionID,
		TransitionCode: t.Code,
		ModelName:      req.Model,
		RecordID:       req.RecordID,
		FromState:      entry.FromState,
		ToState:        entry.ToState,
		ActorID:        req.Actor.ID,
		ActorName:      req.Actor.Name,
		Note:           req.Note,
		Context:        req.Vars,
		IsAutomatic:    req.Automatic,
		ActionError:    result.ActionError,
		CreatedAt:      entry.At,
	}

	var activityErr error

	if err := s.persistence.Activities().Append(ctx, activity); err != nil {
		s.logger.ErrorContext(ctx, "failed to log activity", "transition", t.Code, "record", req.RecordID, "error", err)
		activityErr = fmt.Errorf("%s: state of %s:%s moved but the activity was not logged: %w",
			opExecuteTransition, req.Model, req.RecordID, err)
	}

	if s.publisher == nil {
		return activityErr
	}

	event := events.TransitionExecuted{
		BaseEvent:      events.NewBaseEvent(s.eventID(), events.TransitionExecutedEvent),
		WorkflowID:     wf.ID,
		WorkflowCode:   wf.Code,
		TransitionID:   t.ID,
		TransitionCode: t.Code,
		ModelName:      req.Model,
		RecordID:       req.RecordID,
		FromState:      entry.FromState,
		ToState:        entry.ToState,
		ActorID:        req.Actor.ID,
		IsAutomatic:    req.Automatic,
		ActionError:    result.ActionError,
	}

	if err := s.publisher.Publish(ctx, req.Model+":"+req.RecordID, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}

	return activityErr
}

func (s *Service) eventID() string {
	if s.idgen == nil {
		return ""
	}

	return s.idgen()
}

// GetState returns the state record tracking the record, or not_found.
func (s *Service) GetState(ctx context.Context, model, recordID string) (*models.StateRecord, error) {
	state, err := s.persistence.States().FindByRecord(ctx, model, recordID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opGetState, err)
	}

	if state == nil {
		return nil, models.NewNotFoundError(opGetState, "record %s:%s has no workflow state", model, recordID)
	}

	return state, nil
}

// GetHistory returns the record's transition history, oldest first. An
// untracked record has an empty history.
func (s *Service) GetHistory(ctx context.Context, model, recordID string) ([]models.HistoryEntry, error) {
	state, err := s.GetState(ctx, model, recordID)
	if err != nil {
		if models.IsNotFound(err) {
			return []models.HistoryEntry{}, nil
		}

		return nil, err
	}

	return state.History, nil
}

// ListActivities returns audit entries, newest first.
func (s *Service) ListActivities(ctx context.Context, f persistence.ActivityFilter) ([]*models.ActivityLogEntry, error) {
	return s.persistence.Activities().List(ctx, f)
}

// RecordsInState lists the state records of a workflow currently in state.
func (s *Service) RecordsInState(ctx context.Context, workflowCode, state string) ([]*models.StateRecord, error) {
	wf, err := s.GetWorkflow(ctx, workflowCode)
	if err != nil {
		return nil, err
	}

	if !wf.HasState(state) {
		return nil, models.NewConfigurationError(opRecordsInState, "state %q is not declared by workflow %q", state, wf.Code)
	}

	return s.persistence.States().ListInState(ctx, wf.ID, state)
}

