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

const transitionColumns = `
	id
  , workflow_id
  , code
  , name
  , from_state
  , to_state
  , guard
  , action_id
  , action_code
  , inline_code
  , ui
  , sequence
  , active
  , created_at
  , updated_at
`

// TransitionRepository handles transition database operations.
type TransitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *TransitionRepository) Save(ctx context.Context, transition *models.Transition) error {
	now := time.Now().UTC()

	if transition.CreatedAt.IsZero() {
		transition.CreatedAt = now
	}

	transition.UpdatedAt = now

	if transition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate transition ID: %w", err)
		}

		transition.ID = id.String()
	}

	guard, err := json.Marshal(transition.Guard)
	if err != nil {
		return fmt.Errorf("failed to marshal transition guard: %w", err)
	}

	ui, err := json.Marshal(transition.UI)
	if err != nil {
		return fmt.Errorf("failed to marshal transition ui: %w", err)
	}

	query := `
		INSERT INTO workflow_transitions (` + transitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			from_state = EXCLUDED.from_state,
			to_state = EXCLUDED.to_state,
			guard = EXCLUDED.guard,
			action_id = EXCLUDED.action_id,
			action_code = EXCLUDED.action_code,
			inline_code = EXCLUDED.inline_code,
			ui = EXCLUDED.ui,
			sequence = EXCLUDED.sequence,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		transition.ID, transition.WorkflowID, transition.Code, transition.Name,
		transition.FromState, transition.ToState, guard, transition.ActionID,
		transition.ActionCode, transition.InlineCode, ui, transition.Sequence,
		transition.Active, transition.CreatedAt, transition.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Save", "transition", transition.Code, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to save transition: %w", err)
	}

	return nil
}

func (r *TransitionRepository) GetByID(ctx context.Context, id string) (*models.Transition, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE id = $1`

	transition, err := r.scanTransition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}

	return transition, nil
}

func (r *TransitionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Transition, error) {
	if uuid.Validate(workflowID) != nil {
		return []*models.Transition{}, nil
	}

	query := `
		SELECT ` + transitionColumns + `
		FROM workflow_transitions
		WHERE workflow_id = $1
		ORDER BY sequence, code
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	transitions := make([]*models.Transition, 0)

	for rows.Next() {
		transition, err := r.scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}

		transitions = append(transitions, transition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}

func (r *TransitionRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transition: %w", err)
	}

	return nil
}

func (r *TransitionRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	if uuid.Validate(workflowID) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow transitions: %w", err)
	}

	return nil
}

func (r *TransitionRepository) scanTransition(row scanner) (*models.Transition, error) {
	var (
		transition models.Transition
		guard, ui  []byte
	)

	err := row.Scan(
		&transition.ID, &transition.WorkflowID, &transition.Code, &transition.Name,
		&transition.FromState, &transition.ToState, &guard, &transition.ActionID,
		&transition.ActionCode, &transition.InlineCode, &ui, &transition.Sequence,
		&transition.Active, &transition.CreatedAt, &transition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(guard, &transition.Guard)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transition guard: %w", err)
	}

	err = json.Unmarshal(ui, &transition.UI)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transition ui: %w", err)
	}

	return &transition, nil
}
