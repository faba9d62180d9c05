package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/record/postgresql"
)

func setupStore(t *testing.T) (*postgresql.Store, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("records_test"),
		postgres.WithUsername("ruleflow"),
		postgres.WithPassword("ruleflow"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewStore(ctx, logger, db)
	require.NoError(t, err)

	return store, ctx
}

func TestStore_RoundTripAndQuery(t *testing.T) {
	store, ctx := setupStore(t)
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i, state := range []string{"open", "done", "open"} {
		_, err := store.Create(ctx, "task", map[string]any{
			"id":       []string{"t1", "t2", "t3"}[i],
			"state":    state,
			"deadline": base.Add(time.Duration(3-i) * time.Hour),
			"points":   i + 1,
		})
		require.NoError(t, err)
	}

	rec, err := store.Load(ctx, "task", "t1")
	require.NoError(t, err)
	require.NoError(t, rec.Set("state", "blocked"))
	require.NoError(t, store.Save(ctx, rec))

	reloaded, err := store.Load(ctx, "task", "t1")
	require.NoError(t, err)
	state, _ := reloaded.Get("state")
	assert.Equal(t, "blocked", state)

	points, _ := reloaded.Get("points")
	assert.Equal(t, float64(1), points, "JSONB numbers decode as float64")

	_, err = store.Load(ctx, "task", "missing")
	assert.ErrorIs(t, err, record.ErrRecordNotFound)

	overdue, err := store.Query(ctx, "task", record.Query{
		Domain:  models.Domain{{Field: "deadline", Operator: models.OpLessEqual, Value: base.Add(2 * time.Hour)}},
		OrderBy: "deadline",
	})
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "t3", overdue[0].ID())
	assert.Equal(t, "t2", overdue[1].ID())

	limited, err := store.Query(ctx, "task", record.Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Call(t *testing.T) {
	store, ctx := setupStore(t)

	rec, err := store.Create(ctx, "invoice", map[string]any{"total": 10})
	require.NoError(t, err)

	store.RegisterMethod("invoice", "confirm", func(ctx context.Context, r record.Record, _ []any) (any, error) {
		return "confirmed", nil
	})

	result, err := store.Call(ctx, rec, "confirm", nil)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", result)

	_, err = store.Call(ctx, rec, "cancel", nil)
	assert.ErrorIs(t, err, record.ErrMethodNotFound)
}
