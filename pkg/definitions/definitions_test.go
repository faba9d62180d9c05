package definitions

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/automation"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/workflow"
)

type fixture struct {
	applier   *Applier
	workflows *workflow.Service
	engine    *automation.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := file.NewPersistence(t.TempDir())
	store := record.NewMemoryStore()
	logger := log.Discard()

	workflows := workflow.NewService(db, store, workflow.WithLogger(logger))
	engine := automation.NewEngine(db.Rules(), db.Actions(), store, automation.WithLogger(logger))

	return &fixture{
		applier:   NewApplier(workflows, engine, logger),
		workflows: workflows,
		engine:    engine,
	}
}

func TestLoadFile(t *testing.T) {
	bundle, err := LoadFile("testdata/leave.json")
	require.NoError(t, err)

	require.Len(t, bundle.Actions, 3)
	assert.Equal(t, models.ActionChainActions, bundle.Actions[0].Kind())

	notify, ok := bundle.Actions[1].Spec.(models.SendNotification)
	require.True(t, ok)
	assert.Equal(t, "email", notify.Channel)

	require.Len(t, bundle.Workflows, 1)
	assert.Equal(t, "leave_request", bundle.Workflows[0].Code)
	assert.Len(t, bundle.Workflows[0].States, 4)
	require.Len(t, bundle.Workflows[0].Transitions, 3)
	assert.Equal(t, []string{"managers"}, bundle.Workflows[0].Transitions[1].Guard.RequiredGroups)

	require.Len(t, bundle.Rules, 2)
	assert.Equal(t, models.TriggerOnTime, bundle.Rules[0].Trigger)
	assert.Equal(t, 2880, bundle.Rules[0].TimeDelta)
	assert.Equal(t, models.OpIsNull, bundle.Rules[1].Domain[0].Operator)
}

func TestLoadFile_YAML(t *testing.T) {
	bundle, err := LoadFile("testdata/expense.yaml")
	require.NoError(t, err)

	require.Len(t, bundle.Actions, 1)
	update, ok := bundle.Actions[0].Spec.(models.UpdateRecord)
	require.True(t, ok)
	assert.Equal(t, true, update.Values["paid"])

	require.Len(t, bundle.Workflows, 1)
	require.Len(t, bundle.Workflows[0].Transitions, 1)
	pay := bundle.Workflows[0].Transitions[0]
	assert.Equal(t, "mark_paid", pay.ActionCode)
	require.Len(t, pay.Guard.Domain, 1)
	assert.Equal(t, models.OpGreater, pay.Guard.Domain[0].Operator)

	require.Len(t, bundle.Rules, 1)
	assert.Equal(t, models.TriggerOnWrite, bundle.Rules[0].Trigger)

	_, err = ParseYAML([]byte("actions: [\n"))
	assert.True(t, models.IsConfigurationError(err))
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		contains string
	}{
		{name: "not json", doc: `{"actions": [`},
		{name: "unknown section", doc: `{"views": []}`, contains: "views"},
		{
			name:     "unknown action kind",
			doc:      `{"actions": [{"code": "a", "name": "A", "kind": "send_fax", "spec": {}}]}`,
			contains: "kind",
		},
		{
			name:     "workflow without states",
			doc:      `{"workflows": [{"code": "w", "name": "W", "model_name": "m", "states": []}]}`,
			contains: "states",
		},
		{
			name:     "unknown trigger",
			doc:      `{"rules": [{"code": "r", "name": "R", "model_name": "m", "trigger": "hourly"}]}`,
			contains: "trigger",
		},
		{
			name:     "condition triple too long",
			doc:      `{"rules": [{"code": "r", "name": "R", "model_name": "m", "trigger": "on_create", "domain": [["a", "=", 1, 2]]}]}`,
			contains: "domain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, models.IsConfigurationError(err))

			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestApply_CreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bundle, err := LoadFile("testdata/leave.json")
	require.NoError(t, err)

	summary, err := f.applier.Apply(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, Counts{Created: 3}, summary.Actions)
	assert.Equal(t, Counts{Created: 1}, summary.Workflows)
	assert.Equal(t, Counts{Created: 3}, summary.Transitions)
	assert.Equal(t, Counts{Created: 2}, summary.Rules)

	escalate, err := f.engine.GetAction(ctx, "escalate")
	require.NoError(t, err)

	notify, err := f.engine.GetAction(ctx, "notify_manager")
	require.NoError(t, err)

	stamp, err := f.engine.GetAction(ctx, "stamp")
	require.NoError(t, err)

	chain, ok := escalate.Spec.(models.ChainActions)
	require.True(t, ok)
	assert.Equal(t, []string{notify.ID, stamp.ID}, chain.ChildIDs)

	wf, err := f.workflows.GetWorkflow(ctx, "leave_request")
	require.NoError(t, err)
	assert.Equal(t, "draft", wf.DefaultState)

	again, err := LoadFile("testdata/leave.json")
	require.NoError(t, err)
	again.Workflows[0].Name = "Leave request v2"

	summary, err = f.applier.Apply(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, Counts{Updated: 3}, summary.Actions)
	assert.Equal(t, Counts{Updated: 1}, summary.Workflows)
	assert.Equal(t, Counts{Updated: 3}, summary.Transitions)
	assert.Equal(t, Counts{Updated: 2}, summary.Rules)

	updated, err := f.workflows.GetWorkflow(ctx, "leave_request")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, updated.ID)
	assert.Equal(t, "Leave request v2", updated.Name)

	actions, err := f.engine.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, actions, 3)

	rules, err := f.engine.ListRules(ctx, persistence.RuleFilter{ModelName: "leave"})
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestApply_StopsAtInvalidDefinition(t *testing.T) {
	f := newFixture(t)

	bundle, err := Parse([]byte(`{
		"workflows": [{
			"code": "w", "name": "W", "model_name": "m", "active": true,
			"states": [{"code": "open", "name": "Open"}],
			"transitions": [{"code": "close", "name": "Close", "from_state": "open", "to_state": "closed"}]
		}],
		"rules": [{"code": "r", "name": "R", "model_name": "m", "trigger": "on_create", "inline_code": "x"}]
	}`))
	require.NoError(t, err)

	summary, err := f.applier.Apply(context.Background(), bundle)
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "close")
	assert.Equal(t, 1, summary.Workflows.Created)
	assert.Zero(t, summary.Rules.Created)
}

func TestCheck_LeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bundle, err := LoadFile("testdata/leave.json")
	require.NoError(t, err)

	summary, err := Check(ctx, bundle, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Actions.Created)

	_, err = f.workflows.GetWorkflow(ctx, "leave_request")
	assert.True(t, models.IsNotFound(err))

	summary, err = f.applier.Apply(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Actions.Created)
}

func TestCheck_ReportsMissingChainChild(t *testing.T) {
	bundle, err := Parse([]byte(`{"actions": [
		{"code": "c", "name": "C", "active": true, "kind": "chain_actions", "spec": {"child_ids": ["ghost"]}}
	]}`))
	require.NoError(t, err)

	_, err = Check(context.Background(), bundle, log.Discard())
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
}
