package definitions

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/ruleflow/pkg/automation"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/workflow"
)

// Check applies the bundle to a throwaway file store, running every
// semantic check Apply would, without touching real persistence.
func Check(ctx context.Context, bundle *Bundle, logger *slog.Logger) (*Summary, error) {
	dir, err := os.MkdirTemp("", "ruleflow-check-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.WarnContext(ctx, "failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	db := file.NewPersistence(dir)
	store := record.NewMemoryStore()

	workflows := workflow.NewService(db, store, workflow.WithLogger(logger))
	engine := automation.NewEngine(db.Rules(), db.Actions(), store, automation.WithLogger(logger))

	return NewApplier(workflows, engine, logger).Apply(ctx, bundle)
}
