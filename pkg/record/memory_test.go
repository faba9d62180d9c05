package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/models"
)

func TestMemoryStore_LoadSaveCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put("hr.leave", "l1", map[string]any{"state": "draft"})

	rec, err := store.Load(ctx, "hr.leave", "l1")
	require.NoError(t, err)
	assert.Equal(t, "l1", rec.ID())
	assert.Equal(t, "hr.leave", rec.Model())

	require.NoError(t, rec.Set("state", "submitted"))
	require.NoError(t, store.Save(ctx, rec))

	reloaded, err := store.Load(ctx, "hr.leave", "l1")
	require.NoError(t, err)
	state, _ := reloaded.Get("state")
	assert.Equal(t, "submitted", state)

	assert.Error(t, rec.Set("id", "other"), "id is read-only")

	_, err = store.Load(ctx, "hr.leave", "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	created, err := store.Create(ctx, "hr.task", map[string]any{"name": "Follow up"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID())

	fetched, err := store.Load(ctx, "hr.task", created.ID())
	require.NoError(t, err)
	name, _ := fetched.Get("name")
	assert.Equal(t, "Follow up", name)
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	store.Put("task", "c", map[string]any{"due": base.Add(1 * time.Hour), "done": false})
	store.Put("task", "a", map[string]any{"due": base.Add(3 * time.Hour), "done": false})
	store.Put("task", "b", map[string]any{"due": base.Add(2 * time.Hour), "done": true})
	store.Put("task", "d", map[string]any{"done": false})

	all, err := store.Query(ctx, "task", Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(all), "store order is by id")

	open, err := store.Query(ctx, "task", Query{
		Domain:  models.Domain{{Field: "done", Operator: models.OpEqual, Value: false}},
		OrderBy: "due",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "d"}, ids(open), "missing sort field sorts last")

	limited, err := store.Query(ctx, "task", Query{OrderBy: "due", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(limited))

	none, err := store.Query(ctx, "unknown", Query{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_Call(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := store.Put("invoice", "i1", map[string]any{"total": 10})

	store.RegisterMethod("invoice", "double", func(_ context.Context, r Record, args []any) (any, error) {
		total, _ := r.Get("total")
		return total.(int) * 2, nil
	})

	result, err := store.Call(ctx, rec, "double", nil)
	require.NoError(t, err)
	assert.Equal(t, 20, result)

	_, err = store.Call(ctx, rec, "triple", nil)
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

func TestOverlay(t *testing.T) {
	rec := NewEntity("ticket", "t1", map[string]any{"priority": "urgent", "title": "x"})
	before := Overlay{Record: rec, Values: map[string]any{"priority": "low"}}

	p, _ := before.Get("priority")
	assert.Equal(t, "low", p)

	title, _ := before.Get("title")
	assert.Equal(t, "x", title)
	assert.Equal(t, "low", before.Fields()["priority"])

	current, _ := rec.Get("priority")
	assert.Equal(t, "urgent", current)
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"task": [{"id": "t1", "name": "one"}]}`), 0o600))

	store, err := LoadSnapshot(path)
	require.NoError(t, err)

	rec, err := store.Load(context.Background(), "task", "t1")
	require.NoError(t, err)
	name, _ := rec.Get("name")
	assert.Equal(t, "one", name)

	require.NoError(t, os.WriteFile(path, []byte(`{"task": [{"name": "no id"}]}`), 0o600))
	_, err = LoadSnapshot(path)
	assert.Error(t, err)
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}

	return out
}
