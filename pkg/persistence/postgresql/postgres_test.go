package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last.
	for _, table := range []string{
		"workflow_activities", "workflow_states", "workflow_transitions", "workflow_definitions",
		"automation_rules", "server_actions", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("ruleflow_test"),
			postgres.WithUsername("ruleflow"),
			postgres.WithPassword("ruleflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func saveLeaveWorkflow(ctx context.Context, t *testing.T, p *postgresql.Persistence) (*models.WorkflowDefinition, *models.Transition) {
	t.Helper()

	workflow := &models.WorkflowDefinition{
		Code:      "leave_request",
		Name:      "Leave Request",
		ModelName: "hr.leave",
		States: []models.State{
			{Code: "draft", Name: "Draft", Sequence: 1, IsStart: true},
			{Code: "submitted", Name: "Submitted", Sequence: 2},
		},
		DefaultState: "draft",
		Active:       true,
	}
	require.NoError(t, p.Workflows().Save(ctx, workflow))

	transition := &models.Transition{
		WorkflowID: workflow.ID,
		Code:       "submit",
		Name:       "Submit",
		FromState:  "draft",
		ToState:    "submitted",
		Guard: models.TransitionGuard{
			Domain:         models.Domain{{Field: "days", Operator: models.OpGreater, Value: float64(0)}},
			RequiredGroups: []string{"employee"},
		},
		UI:     models.TransitionUI{ButtonName: "Submit"},
		Active: true,
	}
	require.NoError(t, p.Transitions().Save(ctx, transition))

	return workflow, transition
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx := setupTestDB(t)

	var version int
	require.NoError(t, p.DB().QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
	require.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowAndTransitionRepositories(t *testing.T) {
	p, ctx := setupTestDB(t)
	workflow, transition := saveLeaveWorkflow(ctx, t, p)

	loaded, err := p.Workflows().GetByCode(ctx, "leave_request")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, workflow.States, loaded.States)

	err = p.Workflows().Save(ctx, &models.WorkflowDefinition{
		Code: "leave_request", Name: "Dup", ModelName: "x", States: []models.State{{Code: "a", Name: "A"}},
	})
	assert.True(t, persistence.IsAlreadyExists(err))

	list, err := p.Transitions().ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, transition.Guard, list[0].Guard)
	assert.Equal(t, "Submit", list[0].UI.ButtonName)

	missing, err := p.Transitions().GetByID(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStateRepository_VersionCheck(t *testing.T) {
	p, ctx := setupTestDB(t)
	workflow, transition := saveLeaveWorkflow(ctx, t, p)

	state, err := p.States().Create(ctx, &models.StateRecord{
		WorkflowID: workflow.ID, ModelName: "hr.leave", RecordID: "42", CurrentState: "draft",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)

	again, err := p.States().Create(ctx, &models.StateRecord{
		WorkflowID: workflow.ID, ModelName: "hr.leave", RecordID: "42", CurrentState: "submitted",
	})
	require.NoError(t, err)
	assert.Equal(t, state.ID, again.ID, "insert-if-absent keeps the first row")
	assert.Equal(t, "draft", again.CurrentState)

	next := state.Clone()
	next.Advance(transition, "u1", "note", time.Now().UTC())
	require.NoError(t, p.States().Save(ctx, next, state.Version))
	assert.Equal(t, int64(2), next.Version)

	stale := state.Clone()
	stale.CurrentState = "cancelled"
	err = p.States().Save(ctx, stale, state.Version)
	assert.True(t, persistence.IsVersionConflict(err))

	stored, err := p.States().FindByRecord(ctx, "hr.leave", "42")
	require.NoError(t, err)
	assert.Equal(t, "submitted", stored.CurrentState)
	assert.Equal(t, "draft", stored.PreviousState)
	require.Len(t, stored.History, 1)
	assert.Equal(t, "submit", stored.History[0].TransitionCode)

	inState, err := p.States().ListInState(ctx, workflow.ID, "submitted")
	require.NoError(t, err)
	assert.Len(t, inState, 1)
}

func TestActivityRepository_SurvivesWorkflowDeletion(t *testing.T) {
	p, ctx := setupTestDB(t)
	workflow, transition := saveLeaveWorkflow(ctx, t, p)

	require.NoError(t, p.Activities().Append(ctx, &models.ActivityLogEntry{
		WorkflowID:     &workflow.ID,
		TransitionID:   &transition.ID,
		TransitionCode: "submit",
		ModelName:      "hr.leave",
		RecordID:       "42",
		FromState:      "draft",
		ToState:        "submitted",
		ActorID:        "u1",
		Context:        map[string]any{"source": "test"},
	}))

	require.NoError(t, p.Activities().DetachTransition(ctx, transition.ID))
	require.NoError(t, p.Activities().DetachWorkflow(ctx, workflow.ID))
	require.NoError(t, p.Transitions().DeleteByWorkflow(ctx, workflow.ID))
	require.NoError(t, p.States().DeleteByWorkflow(ctx, workflow.ID))
	require.NoError(t, p.Workflows().Delete(ctx, workflow.ID))

	entries, err := p.Activities().List(ctx, persistence.ActivityFilter{RecordID: "42", Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].WorkflowID)
	assert.Nil(t, entries[0].TransitionID)
	assert.Equal(t, "test", entries[0].Context["source"])
}

func TestActionAndRuleRepositories(t *testing.T) {
	p, ctx := setupTestDB(t)

	action := &models.ServerAction{
		ID:     "notify-manager",
		Code:   "notify_manager",
		Name:   "Notify manager",
		Active: true,
		Spec: models.SendNotification{
			Channel: "email", Recipients: []string{"boss@example.com"}, Subject: "Leave",
		},
	}
	require.NoError(t, p.Actions().Save(ctx, action))

	loaded, err := p.Actions().GetByID(ctx, "notify-manager")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, action.Spec, loaded.Spec)

	rule := &models.AutomationRule{
		Code:       "remind",
		Name:       "Remind",
		ModelName:  "hr.leave",
		Trigger:    models.TriggerOnTime,
		Domain:     models.Domain{{Field: "state", Operator: models.OpEqual, Value: "submitted"}},
		TimeField:  "submitted_at",
		TimeDelta:  60,
		ActionCode: "notify_manager",
		Active:     true,
	}
	require.NoError(t, p.Rules().Save(ctx, rule))

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Rules().UpdateLastRun(ctx, rule.ID, now))

	// A later definition save must not reset the watermark.
	rule.Name = "Remind manager"
	rule.LastRun = nil
	require.NoError(t, p.Rules().Save(ctx, rule))

	rules, err := p.Rules().List(ctx, persistence.RuleFilter{ModelName: "hr.leave", Trigger: models.TriggerOnTime, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Remind manager", rules[0].Name)
	require.NotNil(t, rules[0].LastRun)
	assert.True(t, now.Equal(*rules[0].LastRun))
	assert.Equal(t, rule.Domain, rules[0].Domain)

	err = p.Rules().UpdateLastRun(ctx, "00000000-0000-7000-8000-000000000000", now)
	assert.True(t, persistence.IsRuleNotFound(err))
}
