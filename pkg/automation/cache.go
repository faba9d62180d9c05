package automation

import (
	"context"
	"fmt"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

type ruleKey struct {
	model   string
	trigger models.Trigger
}

// definitionCache memoises rule and action lookups for the duration of one
// engine call. It is never shared between calls.
type definitionCache struct {
	engine  *Engine
	rules   map[ruleKey][]*models.AutomationRule
	actions map[string]*models.ServerAction
}

func (e *Engine) newCache() *definitionCache {
	return &definitionCache{
		engine:  e,
		rules:   make(map[ruleKey][]*models.AutomationRule),
		actions: make(map[string]*models.ServerAction),
	}
}

// activeRules returns the active rules for model and trigger ordered by
// sequence, then code.
func (c *definitionCache) activeRules(ctx context.Context, model string, trigger models.Trigger) ([]*models.AutomationRule, error) {
	key := ruleKey{model: model, trigger: trigger}
	if rules, ok := c.rules[key]; ok {
		return rules, nil
	}

	rules, err := c.engine.rules.List(ctx, persistence.RuleFilter{
		ModelName:  model,
		Trigger:    trigger,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules for %s: %w", trigger, model, err)
	}

	models.SortRules(rules)
	c.rules[key] = rules

	return rules, nil
}

func (c *definitionCache) action(ctx context.Context, rule *models.AutomationRule) (*models.ServerAction, error) {
	key := "id:" + rule.ActionID
	if rule.ActionID == "" {
		key = "code:" + rule.ActionCode
	}

	if action, ok := c.actions[key]; ok {
		return action, nil
	}

	action, err := c.engine.executor.Resolve(ctx, rule.ActionID, rule.ActionCode)
	if err != nil {
		return nil, err
	}

	c.actions[key] = action

	return action, nil
}
