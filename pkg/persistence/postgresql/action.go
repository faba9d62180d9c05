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

const actionColumns = `
	id
  , code
  , name
  , model_name
  , sequence
  , active
  , kind
  , spec
  , created_at
  , updated_at
`

// ActionRepository handles server action database operations. The spec
// variant is stored as kind + JSONB payload.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ActionRepository) Save(ctx context.Context, action *models.ServerAction) error {
	if action.Spec == nil {
		return fmt.Errorf("action %q has no spec", action.Code)
	}

	now := time.Now().UTC()

	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action ID: %w", err)
		}

		action.ID = id.String()
	}

	spec, err := json.Marshal(action.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal action spec: %w", err)
	}

	query := `
		INSERT INTO server_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			model_name = EXCLUDED.model_name,
			sequence = EXCLUDED.sequence,
			active = EXCLUDED.active,
			kind = EXCLUDED.kind,
			spec = EXCLUDED.spec,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ID, action.Code, action.Name, action.ModelName, action.Sequence,
		action.Active, string(action.Spec.Kind()), spec, action.CreatedAt, action.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Save", "action", action.Code, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to save action: %w", err)
	}

	return nil
}

func (r *ActionRepository) GetByID(ctx context.Context, id string) (*models.ServerAction, error) {
	return r.getOne(ctx, "id", id)
}

func (r *ActionRepository) GetByCode(ctx context.Context, code string) (*models.ServerAction, error) {
	return r.getOne(ctx, "code", code)
}

func (r *ActionRepository) getOne(ctx context.Context, column, value string) (*models.ServerAction, error) {
	query := `SELECT ` + actionColumns + ` FROM server_actions WHERE ` + column + ` = $1`

	action, err := r.scanAction(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	return action, nil
}

func (r *ActionRepository) List(ctx context.Context) ([]*models.ServerAction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM server_actions ORDER BY sequence, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.ServerAction, 0)

	for rows.Next() {
		action, err := r.scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		actions = append(actions, action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

func (r *ActionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM server_actions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}

	return nil
}

func (r *ActionRepository) scanAction(row scanner) (*models.ServerAction, error) {
	var (
		action models.ServerAction
		kind   string
		spec   []byte
	)

	err := row.Scan(
		&action.ID, &action.Code, &action.Name, &action.ModelName, &action.Sequence,
		&action.Active, &kind, &spec, &action.CreatedAt, &action.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	action.Spec, err = models.DecodeActionSpec(models.ActionKind(kind), spec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode action spec: %w", err)
	}

	return &action, nil
}
