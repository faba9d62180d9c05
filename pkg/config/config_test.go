package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ruleflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database_url: postgres://localhost/ruleflow
event_bus: kafka
kafka_brokers: localhost:9092
schedule: "*/5 * * * *"
records: ./records.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/ruleflow", cfg.DatabaseURL)
	assert.Equal(t, "kafka", cfg.EventBus)
	assert.Equal(t, "*/5 * * * *", cfg.Schedule)
	assert.Equal(t, "./records.json", cfg.Records)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "broken yaml", content: "port: [1"},
		{name: "bad schedule", content: "schedule: every tuesday"},
		{name: "bad port", content: "port: 70000"},
		{name: "unknown event bus", content: "event_bus: nats"},
		{name: "kafka without brokers", content: "event_bus: kafka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}
