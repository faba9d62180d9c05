// Package postgresql is a generic record.Store keeping business records as
// JSONB documents, for hosts that have no store of their own.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/filter"
	"github.com/dukex/ruleflow/pkg/persistence/sqlbase"
	"github.com/dukex/ruleflow/pkg/record"
)

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE records (
				model VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				fields JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (model, id)
			);
		`,
	}
}

// Store implements record.Store on a single "records" table. Domains are
// evaluated in process after loading the model's rows.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.RWMutex
	methods map[string]map[string]record.MethodFunc
}

func NewStore(ctx context.Context, logger *slog.Logger, db *sql.DB) (*Store, error) {
	migrationManager := sqlbase.NewMigrationManager(logger, db, migrations(), sqlbase.WithTable("record_schema_migrations"))

	err := migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run record migrations: %w", err)
	}

	return &Store{
		db:      db,
		logger:  logger,
		methods: make(map[string]map[string]record.MethodFunc),
	}, nil
}

// RegisterMethod makes fn callable as method on records of model.
func (s *Store) RegisterMethod(model, method string, fn record.MethodFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.methods[model] == nil {
		s.methods[model] = make(map[string]record.MethodFunc)
	}

	s.methods[model][method] = fn
}

func (s *Store) Load(ctx context.Context, model, id string) (record.Record, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx, `SELECT fields FROM records WHERE model = $1 AND id = $2`, model, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", model, id, record.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	return decode(model, id, raw)
}

func (s *Store) Save(ctx context.Context, rec record.Record) error {
	fields, err := json.Marshal(rec.Fields())
	if err != nil {
		return fmt.Errorf("failed to marshal record fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (model, id, fields, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model, id) DO UPDATE SET
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`, rec.Model(), rec.ID(), fields, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

func (s *Store) Create(ctx context.Context, model string, values map[string]any) (record.Record, error) {
	id, _ := values["id"].(string)
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate record ID: %w", err)
		}

		id = generated.String()
	}

	rec := record.NewEntity(model, id, values)

	err := s.Save(ctx, rec)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *Store) Query(ctx context.Context, model string, q record.Query) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fields FROM records WHERE model = $1 ORDER BY id`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	matched := make([]record.Record, 0)

	for rows.Next() {
		var (
			id  string
			raw []byte
		)

		err := rows.Scan(&id, &raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec, err := decode(model, id, raw)
		if err != nil {
			return nil, err
		}

		if filter.Matches(q.Domain, rec, nil) {
			matched = append(matched, rec)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	if q.OrderBy != "" {
		record.SortBy(matched, q.OrderBy)
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return matched, nil
}

func (s *Store) Call(ctx context.Context, rec record.Record, method string, args []any) (any, error) {
	s.mu.RLock()
	fn, ok := s.methods[rec.Model()][method]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", rec.Model(), method, record.ErrMethodNotFound)
	}

	return fn(ctx, rec, args)
}

func decode(model, id string, raw []byte) (*record.Entity, error) {
	var fields map[string]any

	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s/%s: %w", model, id, err)
	}

	return record.NewEntity(model, id, fields), nil
}
