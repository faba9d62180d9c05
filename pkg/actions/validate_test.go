package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/models"
)

func TestValidate(t *testing.T) {
	source := actionMap{}
	source.add("leaf", models.RunCode{Code: "1"})
	source.add("mid", models.ChainActions{ChildIDs: []string{"leaf"}})
	source.add("loop", models.ChainActions{ChildIDs: []string{"top"}})

	tests := []struct {
		name   string
		action *models.ServerAction
		check  func(error) bool
	}{
		{
			name:   "valid webhook",
			action: &models.ServerAction{Code: "hook", Name: "Hook", Spec: models.CallWebhook{URL: "https://example.com"}},
		},
		{
			name:   "missing name",
			action: &models.ServerAction{Code: "hook", Spec: models.RunCode{Code: "1"}},
			check:  models.IsConfigurationError,
		},
		{
			name:   "missing spec",
			action: &models.ServerAction{Code: "empty", Name: "Empty"},
			check:  models.IsConfigurationError,
		},
		{
			name:   "invalid spec",
			action: &models.ServerAction{Code: "upd", Name: "Update", Spec: models.UpdateRecord{}},
			check:  models.IsConfigurationError,
		},
		{
			name:   "valid nested chain",
			action: &models.ServerAction{ID: "top", Code: "top", Name: "Top", Spec: models.ChainActions{ChildIDs: []string{"mid", "leaf"}}},
		},
		{
			name:   "self reference",
			action: &models.ServerAction{ID: "top", Code: "top", Name: "Top", Spec: models.ChainActions{ChildIDs: []string{"top"}}},
			check:  models.IsCycleDetected,
		},
		{
			name:   "indirect cycle through stored action",
			action: &models.ServerAction{ID: "top", Code: "top", Name: "Top", Spec: models.ChainActions{ChildIDs: []string{"leaf", "loop"}}},
			check:  models.IsCycleDetected,
		},
		{
			name:   "missing child",
			action: &models.ServerAction{ID: "top", Code: "top", Name: "Top", Spec: models.ChainActions{ChildIDs: []string{"ghost"}}},
			check:  models.IsConfigurationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(context.Background(), source, tt.action)
			if tt.check == nil {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}
}

func TestDetectCycle_DiamondIsNotACycle(t *testing.T) {
	source := actionMap{}
	source.add("shared", models.RunCode{Code: "1"})
	source.add("left", models.ChainActions{ChildIDs: []string{"shared"}})
	source.add("right", models.ChainActions{ChildIDs: []string{"shared"}})
	root := source.add("root", models.ChainActions{ChildIDs: []string{"left", "right"}})

	require.NoError(t, detectCycle(context.Background(), source, root))
}
