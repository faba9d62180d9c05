package definitions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/log"
)

func TestWatch_ReappliesChangedBundle(t *testing.T) {
	f := newFixture(t)

	original, err := os.ReadFile("testdata/leave.json")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "leave.json")
	require.NoError(t, os.WriteFile(path, original, 0o600))

	bundle, err := LoadFile(path)
	require.NoError(t, err)

	_, err = f.applier.Apply(context.Background(), bundle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- Watch(ctx, path, f.applier, log.Discard()) }()

	renamed := strings.Replace(string(original), `"name": "Leave request"`, `"name": "Time off request"`, 1)

	// The watcher may not be registered yet when the first write lands.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(renamed), 0o600)

		wf, err := f.workflows.GetWorkflow(context.Background(), "leave_request")

		return err == nil && wf.Name == "Time off request"
	}, 5*time.Second, 200*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"actions": [`), 0o600))
	time.Sleep(3 * DebounceInterval)

	wf, err := f.workflows.GetWorkflow(context.Background(), "leave_request")
	require.NoError(t, err)
	assert.Equal(t, "Time off request", wf.Name)

	cancel()
	require.NoError(t, <-done)
}
