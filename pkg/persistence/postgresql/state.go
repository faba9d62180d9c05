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

const stateColumns = `
	id
  , workflow_id
  , model_name
  , record_id
  , current_state
  , previous_state
  , history
  , last_transition_id
  , last_changed_by
  , last_changed_at
  , version
  , created_at
`

// StateRepository handles per-record workflow state with optimistic versioning.
type StateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *StateRepository) Get(ctx context.Context, workflowID, modelName, recordID string) (*models.StateRecord, error) {
	if uuid.Validate(workflowID) != nil {
		return nil, nil
	}

	query := `
		SELECT ` + stateColumns + `
		FROM workflow_states
		WHERE workflow_id = $1 AND model_name = $2 AND record_id = $3
	`

	return r.getOne(r.db.QueryRowContext(ctx, query, workflowID, modelName, recordID))
}

func (r *StateRepository) FindByRecord(ctx context.Context, modelName, recordID string) (*models.StateRecord, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM workflow_states
		WHERE model_name = $1 AND record_id = $2
		ORDER BY created_at
		LIMIT 1
	`

	return r.getOne(r.db.QueryRowContext(ctx, query, modelName, recordID))
}

func (r *StateRepository) getOne(row *sql.Row) (*models.StateRecord, error) {
	state, err := r.scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan state: %w", err)
	}

	return state, nil
}

// Create relies on the (workflow_id, model_name, record_id) unique key so
// concurrent creators converge on one row.
func (r *StateRepository) Create(ctx context.Context, state *models.StateRecord) (*models.StateRecord, error) {
	if state.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate state ID: %w", err)
		}

		state.ID = id.String()
	}

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}

	if state.History == nil {
		state.History = []models.HistoryEntry{}
	}

	history, err := json.Marshal(state.History)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state history: %w", err)
	}

	query := `
		INSERT INTO workflow_states (` + stateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11)
		ON CONFLICT (workflow_id, model_name, record_id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query,
		state.ID, state.WorkflowID, state.ModelName, state.RecordID, state.CurrentState,
		state.PreviousState, history, state.LastTransitionID, state.LastChangedBy,
		state.LastChangedAt, state.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state: %w", err)
	}

	persisted, err := r.Get(ctx, state.WorkflowID, state.ModelName, state.RecordID)
	if err != nil {
		return nil, err
	}

	if persisted == nil {
		return nil, persistence.NewEntityError("Create", "state", state.ID, sql.ErrNoRows)
	}

	return persisted, nil
}

func (r *StateRepository) Save(ctx context.Context, state *models.StateRecord, expectedVersion int64) error {
	history, err := json.Marshal(state.History)
	if err != nil {
		return fmt.Errorf("failed to marshal state history: %w", err)
	}

	query := `
		UPDATE workflow_states SET
			current_state = $1,
			previous_state = $2,
			history = $3,
			last_transition_id = $4,
			last_changed_by = $5,
			last_changed_at = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
		RETURNING version
	`

	var version int64

	err = r.db.QueryRowContext(ctx, query,
		state.CurrentState, state.PreviousState, history, state.LastTransitionID,
		state.LastChangedBy, state.LastChangedAt, state.ID, expectedVersion,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewEntityError("Save", "state", state.ID, persistence.ErrVersionConflict)
		}

		return fmt.Errorf("failed to save state: %w", err)
	}

	state.Version = version

	return nil
}

func (r *StateRepository) ListInState(ctx context.Context, workflowID, state string) ([]*models.StateRecord, error) {
	if uuid.Validate(workflowID) != nil {
		return []*models.StateRecord{}, nil
	}

	query := `
		SELECT ` + stateColumns + `
		FROM workflow_states
		WHERE workflow_id = $1 AND current_state = $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, state)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	states := make([]*models.StateRecord, 0)

	for rows.Next() {
		s, err := r.scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}

		states = append(states, s)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating states: %w", err)
	}

	return states, nil
}

func (r *StateRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	if uuid.Validate(workflowID) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_states WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow states: %w", err)
	}

	return nil
}

func (r *StateRepository) scanState(row scanner) (*models.StateRecord, error) {
	var (
		state         models.StateRecord
		history       []byte
		lastChangedAt sql.NullTime
	)

	err := row.Scan(
		&state.ID, &state.WorkflowID, &state.ModelName, &state.RecordID, &state.CurrentState,
		&state.PreviousState, &history, &state.LastTransitionID, &state.LastChangedBy,
		&lastChangedAt, &state.Version, &state.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastChangedAt.Valid {
		at := lastChangedAt.Time.UTC()
		state.LastChangedAt = &at
	}

	err = json.Unmarshal(history, &state.History)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal state history: %w", err)
	}

	return &state, nil
}
