package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

func TestNewPersistence(t *testing.T) {
	assert.Equal(t, "/tmp/test", NewPersistence("/tmp/test").root)
	assert.Equal(t, "/tmp/test", NewPersistence("file:///tmp/test").root)

	p := NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(t.Context()))
	require.NoError(t, p.Close(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func TestWorkflowRepository(t *testing.T) {
	testDir := t.TempDir()
	repo := NewPersistence(testDir).Workflows()
	ctx := t.Context()

	workflow := &models.WorkflowDefinition{
		Code:      "leave_request",
		Name:      "Leave Request",
		ModelName: "hr.leave",
		States:    []models.State{{Code: "draft", Name: "Draft"}},
		Active:    true,
	}

	require.NoError(t, repo.Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)
	assert.False(t, workflow.CreatedAt.IsZero())

	_, err := os.Stat(filepath.Join(testDir, "workflows", workflow.ID+".json"))
	require.NoError(t, err)

	loaded, err := repo.GetByCode(ctx, "leave_request")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, workflow.ID, loaded.ID)
	assert.Equal(t, workflow.States, loaded.States)

	duplicate := &models.WorkflowDefinition{Code: "leave_request", Name: "Other", ModelName: "x"}
	err = repo.Save(ctx, duplicate)
	assert.True(t, persistence.IsAlreadyExists(err))

	require.NoError(t, repo.Save(ctx, &models.WorkflowDefinition{Code: "expense", Name: "Expense", ModelName: "hr.expense"}))

	active, err := repo.List(ctx, persistence.ListWorkflowsOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "leave_request", active[0].Code)

	byModel, err := repo.List(ctx, persistence.ListWorkflowsOptions{ModelName: "hr.expense"})
	require.NoError(t, err)
	require.Len(t, byModel, 1)

	require.NoError(t, repo.Delete(ctx, workflow.ID))
	require.NoError(t, repo.Delete(ctx, workflow.ID), "deleting twice is not an error")

	gone, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTransitionRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Transitions()
	ctx := t.Context()

	for _, tr := range []*models.Transition{
		{WorkflowID: "w1", Code: "approve", Name: "Approve", FromState: "submitted", ToState: "approved", Sequence: 2},
		{WorkflowID: "w1", Code: "submit", Name: "Submit", FromState: "draft", ToState: "submitted", Sequence: 1},
		{WorkflowID: "w2", Code: "submit", Name: "Submit", FromState: "a", ToState: "b"},
	} {
		require.NoError(t, repo.Save(ctx, tr))
	}

	err := repo.Save(ctx, &models.Transition{WorkflowID: "w1", Code: "submit", Name: "Again"})
	assert.True(t, persistence.IsAlreadyExists(err))

	list, err := repo.ListByWorkflow(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "submit", list[0].Code)
	assert.Equal(t, "approve", list[1].Code)

	require.NoError(t, repo.DeleteByWorkflow(ctx, "w1"))

	list, err = repo.ListByWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, list)

	other, err := repo.ListByWorkflow(ctx, "w2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestStateRepository_CreateIsInsertIfAbsent(t *testing.T) {
	repo := NewPersistence(t.TempDir()).States()
	ctx := t.Context()

	var (
		wg      sync.WaitGroup
		created = make([]*models.StateRecord, 8)
	)

	for i := range created {
		wg.Add(1)

		go func() {
			defer wg.Done()

			state, err := repo.Create(ctx, &models.StateRecord{
				WorkflowID: "w1", ModelName: "hr.leave", RecordID: "l1", CurrentState: "draft",
			})
			assert.NoError(t, err)
			created[i] = state
		}()
	}

	wg.Wait()

	for _, state := range created {
		require.NotNil(t, state)
		assert.Equal(t, created[0].ID, state.ID, "all creators converge on one row")
	}

	found, err := repo.FindByRecord(ctx, "hr.leave", "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.Version)
}

func TestStateRepository_OptimisticSave(t *testing.T) {
	repo := NewPersistence(t.TempDir()).States()
	ctx := t.Context()

	state, err := repo.Create(ctx, &models.StateRecord{
		WorkflowID: "w1", ModelName: "hr.leave", RecordID: "l1", CurrentState: "draft",
	})
	require.NoError(t, err)

	first := state.Clone()
	second := state.Clone()

	first.Advance(&models.Transition{ID: "t1", Code: "submit", ToState: "submitted"}, "u1", "", time.Now().UTC())
	require.NoError(t, repo.Save(ctx, first, state.Version))
	assert.Equal(t, int64(2), first.Version)

	second.Advance(&models.Transition{ID: "t2", Code: "cancel", ToState: "cancelled"}, "u2", "", time.Now().UTC())
	err = repo.Save(ctx, second, state.Version)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	stored, err := repo.Get(ctx, "w1", "hr.leave", "l1")
	require.NoError(t, err)
	assert.Equal(t, "submitted", stored.CurrentState)
	assert.Len(t, stored.History, 1)

	inState, err := repo.ListInState(ctx, "w1", "submitted")
	require.NoError(t, err)
	assert.Len(t, inState, 1)

	require.NoError(t, repo.DeleteByWorkflow(ctx, "w1"))

	stored, err = repo.Get(ctx, "w1", "hr.leave", "l1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestActivityRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Activities()
	ctx := t.Context()

	workflowID := "w1"
	transitionID := "t1"
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for i, actor := range []string{"u1", "u2", "u1"} {
		wid, tid := workflowID, transitionID
		require.NoError(t, repo.Append(ctx, &models.ActivityLogEntry{
			WorkflowID:   &wid,
			TransitionID: &tid,
			ModelName:    "hr.leave",
			RecordID:     "l1",
			ActorID:      actor,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := repo.List(ctx, persistence.ActivityFilter{ActorID: "u1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt), "newest first")

	limited, err := repo.List(ctx, persistence.ActivityFilter{RecordID: "l1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, repo.DetachTransition(ctx, transitionID))
	require.NoError(t, repo.DetachWorkflow(ctx, workflowID))

	entries, err = repo.List(ctx, persistence.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3, "activity rows survive their workflow")

	for _, entry := range entries {
		assert.Nil(t, entry.WorkflowID)
		assert.Nil(t, entry.TransitionID)
	}

	filtered, err := repo.List(ctx, persistence.ActivityFilter{WorkflowID: workflowID})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestActionRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Actions()
	ctx := t.Context()

	action := &models.ServerAction{
		Code:   "mark_done",
		Name:   "Mark done",
		Active: true,
		Spec:   models.UpdateRecord{Values: map[string]any{"state": "done"}},
	}
	require.NoError(t, repo.Save(ctx, action))

	loaded, err := repo.GetByCode(ctx, "mark_done")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.ActionUpdateRecord, loaded.Kind())
	assert.Equal(t, action.Spec, loaded.Spec)

	err = repo.Save(ctx, &models.ServerAction{Code: "mark_done", Name: "x", Spec: models.RunCode{Code: "1"}})
	assert.True(t, persistence.IsAlreadyExists(err))

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRuleRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Rules()
	ctx := t.Context()

	rules := []*models.AutomationRule{
		{Code: "late", Name: "Late", ModelName: "task", Trigger: models.TriggerOnTime, Sequence: 5, Active: true},
		{Code: "first", Name: "First", ModelName: "task", Trigger: models.TriggerOnCreate, Sequence: 1, Active: true},
		{Code: "second", Name: "Second", ModelName: "task", Trigger: models.TriggerOnCreate, Sequence: 2, Active: true},
		{Code: "off", Name: "Off", ModelName: "task", Trigger: models.TriggerOnCreate, Sequence: 0, Active: false},
	}
	for _, rule := range rules {
		require.NoError(t, repo.Save(ctx, rule))
	}

	onCreate, err := repo.List(ctx, persistence.RuleFilter{ModelName: "task", Trigger: models.TriggerOnCreate, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, onCreate, 2)
	assert.Equal(t, "first", onCreate[0].Code)
	assert.Equal(t, "second", onCreate[1].Code)

	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastRun(ctx, rules[0].ID, now))

	late, err := repo.GetByCode(ctx, "late")
	require.NoError(t, err)
	require.NotNil(t, late.LastRun)
	assert.True(t, now.Equal(*late.LastRun))

	err = repo.UpdateLastRun(ctx, "missing", now)
	assert.True(t, persistence.IsRuleNotFound(err))
}
