package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/agentbundle/pkg/cmd"
	"github.com/dukex/agentbundle/pkg/engine"
	"github.com/dukex/agentbundle/pkg/otelhelper"
	"github.com/dukex/agentbundle/pkg/workspace"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "agentbundle"

func providerConfig(command *cli.Command) cmd.ProviderConfig {
	return cmd.ProviderConfig{
		Model:           command.String("model"),
		OpenAIKey:       command.String("openai-api-key"),
		AnthropicKey:    command.String("anthropic-api-key"),
		ToolProviderKey: command.String("tool-provider-key"),
	}
}

// newWorkspace builds the workspace the commands drive. The returned close
// function releases the event bus and flushes traces.
func newWorkspace(ctx context.Context, command *cli.Command, logger *slog.Logger) (*workspace.Workspace, func(), error) {
	cfg := providerConfig(command)
	engineOpts := []engine.Option{engine.WithDefaultModel(cfg.Model)}

	shutdown := otelhelper.ShutdownFunc(func(context.Context) error { return nil })

	if command.Bool("otel") {
		tracer, stop, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		engineOpts = append(engineOpts, engine.WithTracer(tracer))
		shutdown = stop
	}

	ws, err := workspace.New(ctx, cmd.NewToolRunner(cfg, logger), logger,
		workspace.WithEventBus(cmd.NewEventBus(command.String("event-bus"), logger)),
		workspace.WithEngineOptions(engineOpts...),
	)
	if err != nil {
		_ = shutdown(ctx)

		return nil, nil, err
	}

	closeAll := func() {
		if err := ws.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}

		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}

	return ws, closeAll, nil
}

// initialize hands the configured provider key to the workspace.
func initialize(ctx context.Context, command *cli.Command, ws *workspace.Workspace) error {
	creds, err := providerConfig(command).Credentials()
	if err != nil {
		return err
	}

	return ws.Initialize(ctx, creds)
}
