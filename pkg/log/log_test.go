package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetupWithWriter_JSON(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	SetupWithWriter(&buf, "debug", "json")

	WithModule("automation").Debug("hello", "rule", "r1")

	assert.Contains(t, buf.String(), `"module":"automation"`)
	assert.Contains(t, buf.String(), `"rule":"r1"`)
}

func TestFromContext(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := Discard().With("request", "abc")
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))
}
