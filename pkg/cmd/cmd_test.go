package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/lock"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/record"
)

func TestParsePersistenceProvider(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"file://./data", "file"},
		{"./data", "file"},
		{"postgres://u:p@localhost/db", "postgres"},
		{"postgresql://localhost/db", "postgresql"},
		{"mongodb://localhost", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePersistenceProvider(tt.url))
		})
	}
}

func TestNewPersistence_File(t *testing.T) {
	p, err := NewPersistence(context.Background(), log.Discard(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("", "", ConsumerGroup, log.Discard())
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = NewEventBus("gochannel", "", ConsumerGroup, log.Discard())
	require.NoError(t, err)
	require.NotNil(t, bus)
	assert.NotEmpty(t, bus.GenerateID())
	require.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", ConsumerGroup, log.Discard())
	require.Error(t, err)

	_, err = NewEventBus("carrier-pigeon", "", ConsumerGroup, log.Discard())
	require.Error(t, err)
}

func TestNewLocker(t *testing.T) {
	locker, err := NewLocker("")
	require.NoError(t, err)
	assert.IsType(t, &lock.Local{}, locker)

	server := miniredis.RunT(t)

	locker, err = NewLocker("redis://" + server.Addr())
	require.NoError(t, err)

	unlock, ok, err := locker.TryLock(context.Background(), "rule:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, unlock(context.Background()))

	_, err = NewLocker("://bad")
	require.Error(t, err)
}

func TestNewRecordStore(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	store, err := NewRecordStore(ctx, log.Discard(), "", p)
	require.NoError(t, err)
	assert.IsType(t, &record.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"leave": [{"id": "L1", "days": 3}]}`), 0o600))

	store, err = NewRecordStore(ctx, log.Discard(), path, p)
	require.NoError(t, err)

	rec, err := store.Load(ctx, "leave", "L1")
	require.NoError(t, err)

	days, _ := rec.Get("days")
	assert.InDelta(t, 3, days, 0)
}
