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

const workflowColumns = `
	id
  , code
  , name
  , model_name
  , states
  , default_state
  , active
  , description
  , created_at
  , updated_at
`

// WorkflowRepository handles workflow definition database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Save upserts a workflow definition.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	states, err := json.Marshal(workflow.States)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow states: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			model_name = EXCLUDED.model_name,
			states = EXCLUDED.states,
			default_state = EXCLUDED.default_state,
			active = EXCLUDED.active,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.Code, workflow.Name, workflow.ModelName, states,
		workflow.DefaultState, workflow.Active, workflow.Description,
		workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Save", "workflow", workflow.Code, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	return r.getOne(ctx, "id", id)
}

func (r *WorkflowRepository) GetByCode(ctx context.Context, code string) (*models.WorkflowDefinition, error) {
	return r.getOne(ctx, "code", code)
}

func (r *WorkflowRepository) getOne(ctx context.Context, column, value string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE ` + column + ` = $1`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow_definitions
		WHERE ($1 = '' OR model_name = $1)
		  AND (NOT $2 OR active)
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, query, opts.ModelName, opts.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.WorkflowDefinition, error) {
	var (
		workflow models.WorkflowDefinition
		states   []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.Code, &workflow.Name, &workflow.ModelName, &states,
		&workflow.DefaultState, &workflow.Active, &workflow.Description,
		&workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(states, &workflow.States)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow states: %w", err)
	}

	return &workflow, nil
}
