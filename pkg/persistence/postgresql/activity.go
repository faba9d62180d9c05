package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

const activityColumns = `
	id
  , workflow_id
  , transition_id
  , transition_code
  , model_name
  , record_id
  , from_state
  , to_state
  , actor_id
  , actor_name
  , note
  , context
  , is_automatic
  , action_error
  , created_at
`

// ActivityRepository is the append-only activity log table.
type ActivityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ActivityRepository) Append(ctx context.Context, entry *models.ActivityLogEntry) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate activity ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var contextJSON any

	if entry.Context != nil {
		data, err := json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal activity context: %w", err)
		}

		contextJSON = data
	}

	query := `
		INSERT INTO workflow_activities (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, nullString(entry.WorkflowID), nullString(entry.TransitionID), entry.TransitionCode,
		entry.ModelName, entry.RecordID, entry.FromState, entry.ToState, entry.ActorID,
		entry.ActorName, entry.Note, contextJSON, entry.IsAutomatic, entry.ActionError,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	return nil
}

func (r *ActivityRepository) List(ctx context.Context, filter persistence.ActivityFilter) ([]*models.ActivityLogEntry, error) {
	var (
		clauses []string
		args    []any
	)

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.WorkflowID != "" {
		if uuid.Validate(filter.WorkflowID) != nil {
			return []*models.ActivityLogEntry{}, nil
		}

		add("workflow_id = $%d", filter.WorkflowID)
	}

	if filter.ModelName != "" {
		add("model_name = $%d", filter.ModelName)
	}

	if filter.RecordID != "" {
		add("record_id = $%d", filter.RecordID)
	}

	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}

	query := `SELECT ` + activityColumns + ` FROM workflow_activities`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.ActivityLogEntry, 0)

	for rows.Next() {
		entry, err := r.scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return entries, nil
}

func (r *ActivityRepository) DetachWorkflow(ctx context.Context, workflowID string) error {
	if uuid.Validate(workflowID) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `UPDATE workflow_activities SET workflow_id = NULL WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to detach activities from workflow: %w", err)
	}

	return nil
}

func (r *ActivityRepository) DetachTransition(ctx context.Context, transitionID string) error {
	if uuid.Validate(transitionID) != nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `UPDATE workflow_activities SET transition_id = NULL WHERE transition_id = $1`, transitionID)
	if err != nil {
		return fmt.Errorf("failed to detach activities from transition: %w", err)
	}

	return nil
}

func (r *ActivityRepository) scanActivity(row scanner) (*models.ActivityLogEntry, error) {
	var (
		entry                    models.ActivityLogEntry
		workflowID, transitionID sql.NullString
		contextJSON              []byte
	)

	err := row.Scan(
		&entry.ID, &workflowID, &transitionID, &entry.TransitionCode, &entry.ModelName,
		&entry.RecordID, &entry.FromState, &entry.ToState, &entry.ActorID, &entry.ActorName,
		&entry.Note, &contextJSON, &entry.IsAutomatic, &entry.ActionError, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.WorkflowID = stringPtr(workflowID)
	entry.TransitionID = stringPtr(transitionID)

	if len(contextJSON) > 0 {
		err = json.Unmarshal(contextJSON, &entry.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal activity context: %w", err)
		}
	}

	return &entry, nil
}
