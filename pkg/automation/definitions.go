package automation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/filter"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

const (
	opSaveAction   = "SaveAction"
	opDeleteAction = "DeleteAction"
	opSaveRule     = "SaveRule"
	opDeleteRule   = "DeleteRule"
)

// SaveAction validates and stores action, assigning an id on first save.
// Chains are checked for missing children and cycles before anything is
// written.
func (e *Engine) SaveAction(ctx context.Context, action *models.ServerAction) error {
	if err := actions.Validate(ctx, e.actions, action); err != nil {
		return err
	}

	now := e.now().UTC()

	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate id: %w", err)
		}

		action.ID = id.String()
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	if err := e.actions.Save(ctx, action); err != nil {
		if persistence.IsAlreadyExists(err) {
			return models.NewConfigurationError(opSaveAction, "action code %q is already used", action.Code)
		}

		return fmt.Errorf("%s: %w", opSaveAction, err)
	}

	return nil
}

// DeleteAction removes an action. Rules keep their reference and fail with
// a configuration error when they next fire.
func (e *Engine) DeleteAction(ctx context.Context, id string) error {
	action, err := e.actions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", opDeleteAction, err)
	}

	if action == nil {
		return models.NewNotFoundError(opDeleteAction, "action %q does not exist", id)
	}

	return e.actions.Delete(ctx, id)
}

// GetAction looks an action up by id, then by code.
func (e *Engine) GetAction(ctx context.Context, ref string) (*models.ServerAction, error) {
	action, err := e.actions.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}

	if action == nil {
		action, err = e.actions.GetByCode(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	if action == nil {
		return nil, models.NewNotFoundError("GetAction", "action %q does not exist", ref)
	}

	return action, nil
}

func (e *Engine) ListActions(ctx context.Context) ([]*models.ServerAction, error) {
	return e.actions.List(ctx)
}

// SaveRule validates and stores rule, normalising operator aliases in its
// domains.
func (e *Engine) SaveRule(ctx context.Context, rule *models.AutomationRule) error {
	if err := e.validateRule(ctx, rule); err != nil {
		return err
	}

	rule.Domain = filter.Normalize(rule.Domain)
	rule.BeforeDomain = filter.Normalize(rule.BeforeDomain)

	now := e.now().UTC()

	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate id: %w", err)
		}

		rule.ID = id.String()
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	if err := e.rules.Save(ctx, rule); err != nil {
		if persistence.IsAlreadyExists(err) {
			return models.NewConfigurationError(opSaveRule, "rule code %q is already used", rule.Code)
		}

		return fmt.Errorf("%s: %w", opSaveRule, err)
	}

	return nil
}

func (e *Engine) validateRule(ctx context.Context, rule *models.AutomationRule) error {
	if rule == nil {
		return models.NewConfigurationError(opSaveRule, "no rule given")
	}

	if err := models.ValidateStruct(opSaveRule, rule); err != nil {
		return err
	}

	if !rule.Trigger.Valid() {
		return models.NewConfigurationError(opSaveRule, "unknown trigger %q", rule.Trigger)
	}

	if err := filter.Validate(rule.Domain); err != nil {
		return err
	}

	if !rule.BeforeDomain.IsEmpty() && rule.Trigger != models.TriggerOnWrite {
		return models.NewConfigurationError(opSaveRule, "before_domain only applies to on_write rules")
	}

	if err := filter.Validate(rule.BeforeDomain); err != nil {
		return err
	}

	if rule.TimeDelta < 0 {
		return models.NewConfigurationError(opSaveRule, "time_delta must not be negative")
	}

	if !rule.HasEffect() {
		return models.NewConfigurationError(opSaveRule, "rule %q needs inline code or an action", rule.Code)
	}

	if rule.InlineCode == "" {
		action, err := e.executor.Resolve(ctx, rule.ActionID, rule.ActionCode)
		if err != nil {
			return err
		}

		if action.ModelName != "" && action.ModelName != rule.ModelName {
			return models.NewConfigurationError(opSaveRule, "action %q targets %s, rule targets %s",
				action.Code, action.ModelName, rule.ModelName)
		}
	}

	return nil
}

// DeleteRule removes a rule by id.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	rule, err := e.rules.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", opDeleteRule, err)
	}

	if rule == nil {
		return models.NewNotFoundError(opDeleteRule, "rule %q does not exist", id)
	}

	return e.rules.Delete(ctx, id)
}

// GetRule looks a rule up by id, then by code.
func (e *Engine) GetRule(ctx context.Context, ref string) (*models.AutomationRule, error) {
	rule, err := e.rules.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}

	if rule == nil {
		rule, err = e.rules.GetByCode(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	if rule == nil {
		return nil, models.NewNotFoundError("GetRule", "rule %q does not exist", ref)
	}

	return rule, nil
}

func (e *Engine) ListRules(ctx context.Context, f persistence.RuleFilter) ([]*models.AutomationRule, error) {
	rules, err := e.rules.List(ctx, f)
	if err != nil {
		return nil, err
	}

	models.SortRules(rules)

	return rules, nil
}
