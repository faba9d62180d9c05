package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

const ruleColumns = `
	id
  , code
  , name
  , model_name
  , trigger
  , domain
  , before_domain
  , time_field
  , time_delta
  , last_run
  , action_id
  , action_code
  , inline_code
  , sequence
  , active
  , max_records_per_run
  , created_at
  , updated_at
`

// RuleRepository handles automation rule database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	now := time.Now().UTC()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate rule ID: %w", err)
		}

		rule.ID = id.String()
	}

	domain, err := json.Marshal(rule.Domain)
	if err != nil {
		return fmt.Errorf("failed to marshal rule domain: %w", err)
	}

	beforeDomain, err := json.Marshal(rule.BeforeDomain)
	if err != nil {
		return fmt.Errorf("failed to marshal rule before domain: %w", err)
	}

	// last_run is owned by UpdateLastRun and is not overwritten on conflict.
	query := `
		INSERT INTO automation_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			model_name = EXCLUDED.model_name,
			trigger = EXCLUDED.trigger,
			domain = EXCLUDED.domain,
			before_domain = EXCLUDED.before_domain,
			time_field = EXCLUDED.time_field,
			time_delta = EXCLUDED.time_delta,
			action_id = EXCLUDED.action_id,
			action_code = EXCLUDED.action_code,
			inline_code = EXCLUDED.inline_code,
			sequence = EXCLUDED.sequence,
			active = EXCLUDED.active,
			max_records_per_run = EXCLUDED.max_records_per_run,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Code, rule.Name, rule.ModelName, string(rule.Trigger), domain,
		beforeDomain, rule.TimeField, rule.TimeDelta, rule.LastRun, rule.ActionID,
		rule.ActionCode, rule.InlineCode, rule.Sequence, rule.Active, rule.MaxRecordsPerRun,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Save", "rule", rule.Code, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to save rule: %w", err)
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	return r.getOne(ctx, "id", id)
}

func (r *RuleRepository) GetByCode(ctx context.Context, code string) (*models.AutomationRule, error) {
	return r.getOne(ctx, "code", code)
}

func (r *RuleRepository) getOne(ctx context.Context, column, value string) (*models.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE ` + column + ` = $1`

	rule, err := r.scanRule(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context, filter persistence.RuleFilter) ([]*models.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE ($1 = '' OR model_name = $1)
		  AND ($2 = '' OR trigger = $2)
		  AND (NOT $3 OR active)
		ORDER BY sequence, code
	`

	rows, err := r.db.QueryContext(ctx, query, filter.ModelName, string(filter.Trigger), filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	rules := make([]*models.AutomationRule, 0)

	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

func (r *RuleRepository) UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error {
	if uuid.Validate(id) != nil {
		return persistence.NewEntityError("UpdateLastRun", "rule", id, persistence.ErrRuleNotFound)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE automation_rules SET last_run = $1 WHERE id = $2`, lastRun.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule last run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("UpdateLastRun", "rule", id, persistence.ErrRuleNotFound)
	}

	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	return nil
}

func (r *RuleRepository) scanRule(row scanner) (*models.AutomationRule, error) {
	var (
		rule                 models.AutomationRule
		trigger              string
		domain, beforeDomain []byte
		lastRun              sql.NullTime
	)

	err := row.Scan(
		&rule.ID, &rule.Code, &rule.Name, &rule.ModelName, &trigger, &domain,
		&beforeDomain, &rule.TimeField, &rule.TimeDelta, &lastRun, &rule.ActionID,
		&rule.ActionCode, &rule.InlineCode, &rule.Sequence, &rule.Active, &rule.MaxRecordsPerRun,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Trigger = models.Trigger(trigger)

	if lastRun.Valid {
		at := lastRun.Time.UTC()
		rule.LastRun = &at
	}

	if len(domain) > 0 {
		err = json.Unmarshal(domain, &rule.Domain)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule domain: %w", err)
		}
	}

	if len(beforeDomain) > 0 {
		err = json.Unmarshal(beforeDomain, &rule.BeforeDomain)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule before domain: %w", err)
		}
	}

	return &rule, nil
}
