// Package postgresql provides PostgreSQL persistence for workflow
// definitions, state records, activities, server actions and automation rules.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/sqlbase"
)

const uniqueViolation = "23505"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo   *WorkflowRepository
	transitionRepo *TransitionRepository
	stateRepo      *StateRepository
	activityRepo   *ActivityRepository
	actionRepo     *ActionRepository
	ruleRepo       *RuleRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPersistenceWithDB(ctx, logger, database)
}

// NewPersistenceWithDB runs migrations on an already opened database.
func NewPersistenceWithDB(ctx context.Context, logger *slog.Logger, database *sql.DB) (*Persistence, error) {
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:             database,
		logger:         logger,
		workflowRepo:   &WorkflowRepository{db: database, logger: logger},
		transitionRepo: &TransitionRepository{db: database, logger: logger},
		stateRepo:      &StateRepository{db: database, logger: logger},
		activityRepo:   &ActivityRepository{db: database, logger: logger},
		actionRepo:     &ActionRepository{db: database, logger: logger},
		ruleRepo:       &RuleRepository{db: database, logger: logger},
	}

	err := migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// DB exposes the underlying connection pool so other stores can share it.
func (p *Persistence) DB() *sql.DB {
	return p.db
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository     { return p.workflowRepo }
func (p *Persistence) Transitions() persistence.TransitionRepository { return p.transitionRepo }
func (p *Persistence) States() persistence.StateRepository           { return p.stateRepo }
func (p *Persistence) Activities() persistence.ActivityRepository    { return p.activityRepo }
func (p *Persistence) Actions() persistence.ActionRepository         { return p.actionRepo }
func (p *Persistence) Rules() persistence.RuleRepository             { return p.ruleRepo }

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}

	v := s.String

	return &v
}
