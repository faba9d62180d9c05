// Package cmd builds the infrastructure the ruleflow binary wires
// together from command-line configuration.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL. postgres:// and
// postgresql:// URLs select PostgreSQL; anything else is a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
