// Package main provides the agentbundle command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/agentbundle/pkg/engine"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "agentbundle:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "agentbundle",
		Usage:                 "Validate, export and run bundles of YAML-defined agents",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "OpenAI API key",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "anthropic-api-key",
				Usage:   "Anthropic API key, used for claude models",
				Sources: cli.EnvVars("ANTHROPIC_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "tool-provider-key",
				Usage:   "Key handed to the tool provider",
				Sources: cli.EnvVars("TOOL_PROVIDER_KEY"),
			},
			&cli.StringFlag{
				Name:    "model",
				Usage:   "Model used when neither the node nor the definition sets one",
				Value:   engine.DefaultModel,
				Sources: cli.EnvVars("DEFAULT_MODEL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (memory, gochannel)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			ValidateCommand(),
			ExportCommand(),
			RunCommand(),
			ServeCommand(),
		},
	}
}
