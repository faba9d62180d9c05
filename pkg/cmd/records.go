package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/postgresql"
	"github.com/dukex/ruleflow/pkg/record"
	recordpg "github.com/dukex/ruleflow/pkg/record/postgresql"
)

// NewRecordStore picks the host record store: a JSON snapshot when
// snapshotPath is set, the PostgreSQL JSONB store when definitions live in
// PostgreSQL, and an empty in-memory store otherwise.
func NewRecordStore(ctx context.Context, logger *slog.Logger, snapshotPath string, p persistence.Persistence) (record.Store, error) {
	if snapshotPath != "" {
		store, err := record.LoadSnapshot(snapshotPath)
		if err != nil {
			return nil, err
		}

		return store, nil
	}

	if pg, ok := p.(*postgresql.Persistence); ok {
		store, err := recordpg.NewStore(ctx, logger, pg.DB())
		if err != nil {
			return nil, err
		}

		return store, nil
	}

	return record.NewMemoryStore(), nil
}
