// Package logtool provides a tool that lets the model write to the run log.
package logtool

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/dukex/agentbundle/pkg/toolrunner"
)

const ToolID = "log"

type Tool struct{}

func New() *Tool {
	return &Tool{}
}

func (*Tool) ID() string {
	return ToolID
}

func (*Tool) Description() string {
	return "Write a message to the run log."
}

func (*Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level": map[string]any{
				"type": "string",
				"enum": []any{"debug", "info", "warn", "error"},
			},
		},
		"required": []any{"message"},
	}
}

func (*Tool) Execute(ctx context.Context, args map[string]any, logger *slog.Logger) (any, error) {
	message, _ := args["message"].(string)
	level, _ := args["level"].(string)

	attrs := []any{"tool", ToolID}

	md := toolrunner.MetadataFromContext(ctx)
	for _, k := range slices.Sorted(maps.Keys(md)) {
		attrs = append(attrs, k, md[k])
	}

	logger.Log(ctx, parseLevel(level), message, attrs...)

	return map[string]any{"logged": true}, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
