package file

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

type ruleDoc = models.AutomationRule

// RuleRepository handles automation rule files.
type RuleRepository struct {
	mu   *sync.Mutex
	docs collection[ruleDoc]
}

func (rr *RuleRepository) Save(_ context.Context, rule *models.AutomationRule) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	all, err := rr.docs.all()
	if err != nil {
		return err
	}

	for _, other := range all {
		if other.Code == rule.Code && other.ID != rule.ID {
			return persistence.NewEntityError("Save", "rule", rule.Code, persistence.ErrAlreadyExists)
		}
	}

	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		rule.ID = id.String()
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	return rr.docs.put(rule.ID, rule)
}

func (rr *RuleRepository) GetByID(_ context.Context, id string) (*models.AutomationRule, error) {
	return rr.docs.get(id)
}

func (rr *RuleRepository) GetByCode(_ context.Context, code string) (*models.AutomationRule, error) {
	all, err := rr.docs.all()
	if err != nil {
		return nil, err
	}

	for _, rule := range all {
		if rule.Code == code {
			return rule, nil
		}
	}

	return nil, nil
}

func (rr *RuleRepository) List(_ context.Context, filter persistence.RuleFilter) ([]*models.AutomationRule, error) {
	all, err := rr.docs.all()
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomationRule, 0, len(all))

	for _, rule := range all {
		if filter.ModelName != "" && rule.ModelName != filter.ModelName {
			continue
		}

		if filter.Trigger != "" && rule.Trigger != filter.Trigger {
			continue
		}

		if filter.ActiveOnly && !rule.Active {
			continue
		}

		rules = append(rules, rule)
	}

	models.SortRules(rules)

	return rules, nil
}

// UpdateLastRun only touches the watermark, leaving concurrent definition edits intact.
func (rr *RuleRepository) UpdateLastRun(_ context.Context, id string, lastRun time.Time) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rule, err := rr.docs.get(id)
	if err != nil {
		return err
	}

	if rule == nil {
		return persistence.NewEntityError("UpdateLastRun", "rule", id, persistence.ErrRuleNotFound)
	}

	at := lastRun.UTC()
	rule.LastRun = &at

	return rr.docs.put(rule.ID, rule)
}

func (rr *RuleRepository) Delete(_ context.Context, id string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.docs.remove(id)
}
