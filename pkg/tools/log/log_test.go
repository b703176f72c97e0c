package logtool

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/agentbundle/pkg/toolrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool_Definition(t *testing.T) {
	tool := New()

	assert.Equal(t, "log", tool.ID())
	assert.Equal(t, []any{"message"}, tool.Parameters()["required"])
}

func TestTool_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := toolrunner.WithMetadata(context.Background(), map[string]string{"session": "s1", "bundle": "2"})

	out, err := New().Execute(ctx, map[string]any{"message": "hello there", "level": "warn"}, logger)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"logged": true}, out)

	line := buf.String()
	assert.Contains(t, line, "level=WARN")
	assert.Contains(t, line, `msg="hello there"`)
	assert.Contains(t, line, "bundle=2 session=s1")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
