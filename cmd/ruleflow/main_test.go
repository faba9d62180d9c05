package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/automation"
	"github.com/dukex/ruleflow/pkg/definitions"
)

const bundle = "../../pkg/definitions/testdata/leave.json"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := newApp()
	app.Writer = &out

	err := app.Run(context.Background(), append([]string{serviceName, "--log-level", "error"}, args...))

	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", bundle)
	require.NoError(t, err)

	var summary definitions.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Actions.Created)
	assert.Equal(t, 1, summary.Workflows.Created)

	_, err = run(t, "validate")
	assert.Error(t, err)
}

func TestImportGraphAndRun(t *testing.T) {
	db := "file://" + t.TempDir()

	out, err := run(t, "--database-url", db, "import", bundle)
	require.NoError(t, err)

	var summary definitions.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Transitions.Created)

	out, err = run(t, "--database-url", db, "import", bundle)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 0, summary.Transitions.Created)
	assert.Equal(t, 3, summary.Transitions.Updated)

	out, err = run(t, "--database-url", db, "graph", "leave_request")
	require.NoError(t, err)
	assert.Contains(t, out, "stateDiagram-v2")
	assert.Contains(t, out, "draft --> submitted: Submit")

	_, err = run(t, "--database-url", db, "graph", "--format", "dot", "leave_request")
	assert.Error(t, err)

	records := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(records, []byte(`{"leave": [{"id": "L1", "status": "draft"}]}`), 0o600))

	out, err = run(t, "--database-url", db, "--records", records, "run")
	require.NoError(t, err)

	var results []automation.RuleRunResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "remind_pending", results[0].RuleCode)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ruleflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_url: file://"+t.TempDir()+"\n"), 0o600))

	_, err := run(t, "--config", path, "import", bundle)
	require.NoError(t, err)

	_, err = run(t, "import", bundle)
	require.ErrorIs(t, err, errNoDatabase)
}
