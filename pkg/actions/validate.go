package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
)

const opValidate = "ValidateAction"

// Validate checks an action before it is saved: struct tags on the action
// and its spec, and for chains that every reachable child exists and the
// graph has no cycle. source may still hold the previous version of action;
// the candidate is used in its place.
func Validate(ctx context.Context, source ActionSource, action *models.ServerAction) error {
	if action == nil {
		return models.NewConfigurationError(opValidate, "no action given")
	}

	if err := models.ValidateStruct(opValidate, action); err != nil {
		return err
	}

	if action.Spec == nil {
		return models.NewConfigurationError(opValidate, "action %q has no spec", action.Code)
	}

	if err := models.ValidateStruct(opValidate, action.Spec); err != nil {
		return err
	}

	if _, ok := action.Spec.(models.ChainActions); ok {
		return detectCycle(ctx, source, action)
	}

	return nil
}

// detectCycle walks the chain graph reachable from root depth first. It
// fails with cycle_detected when a child leads back to an action on the
// current path, and with configuration_error when a child is missing.
func detectCycle(ctx context.Context, source ActionSource, root *models.ServerAction) error {
	if source == nil {
		return models.NewConfigurationError(opExecute, "chain %q needs an action source", root.Code)
	}

	done := make(map[string]bool)

	var path []string

	onPath := make(map[string]bool)

	var visit func(action *models.ServerAction) error

	visit = func(action *models.ServerAction) error {
		key := actionKey(action)
		if onPath[key] {
			return models.NewCycleDetectedError(opExecute, "%s -> %s", strings.Join(path, " -> "), action.Code)
		}

		if done[key] {
			return nil
		}

		chain, ok := action.Spec.(models.ChainActions)
		if !ok {
			done[key] = true

			return nil
		}

		onPath[key] = true
		path = append(path, action.Code)

		for _, childID := range chain.ChildIDs {
			child, err := lookupChild(ctx, source, root, childID)
			if err != nil {
				return err
			}

			if child == nil {
				return models.NewConfigurationError(opExecute, "chain %q: child action %q does not exist", action.Code, childID)
			}

			if err := visit(child); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		onPath[key] = false
		done[key] = true

		return nil
	}

	return visit(root)
}

func lookupChild(ctx context.Context, source ActionSource, root *models.ServerAction, id string) (*models.ServerAction, error) {
	if root.ID != "" && id == root.ID {
		return root, nil
	}

	child, err := source.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load action %q: %w", id, err)
	}

	return child, nil
}

func actionKey(action *models.ServerAction) string {
	if action.ID != "" {
		return action.ID
	}

	return "code:" + action.Code
}
