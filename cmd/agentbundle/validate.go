package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/agentbundle/pkg/agentconfig"
	cli "github.com/urfave/cli/v3"
)

var (
	ErrNoFiles            = errors.New("at least one agent definition file is required")
	ErrInvalidDefinitions = errors.New("some agent definitions are invalid")
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check agent definition files",
		ArgsUsage: "FILE...",
		Action: func(_ context.Context, command *cli.Command) error {
			files := command.Args().Slice()
			if len(files) == 0 {
				return ErrNoFiles
			}

			out := command.Root().Writer
			failed := 0

			for _, file := range files {
				result, err := validateFile(file)
				if err != nil {
					failed++

					fmt.Fprintf(out, "%s: %v\n", file, err)

					continue
				}

				status := "ok"
				if !result.Valid {
					failed++
					status = "invalid"
				}

				fmt.Fprintf(out, "%s: %s\n", file, status)

				for _, e := range result.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}

				for _, w := range result.Warnings {
					fmt.Fprintf(out, "  warning: %s\n", w)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidDefinitions, failed, len(files))
			}

			return nil
		},
	}
}

func validateFile(file string) (agentconfig.ValidationResult, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return agentconfig.ValidationResult{}, err
	}

	config, err := agentconfig.Parse(string(raw))
	if err != nil {
		return agentconfig.ValidationResult{}, err
	}

	return agentconfig.Validate(config), nil
}
