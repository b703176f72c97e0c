package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/agentbundle/pkg/agentconfig"
	cli "github.com/urfave/cli/v3"
)

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Print the normalized form of an agent definition",
		ArgsUsage: "FILE",
		Action: func(_ context.Context, command *cli.Command) error {
			if command.NArg() != 1 {
				return ErrNoFiles
			}

			raw, err := os.ReadFile(command.Args().First())
			if err != nil {
				return err
			}

			config, err := agentconfig.Parse(string(raw))
			if err != nil {
				return err
			}

			if err := agentconfig.Validate(config).Err(); err != nil {
				return err
			}

			text, err := agentconfig.Serialize(config)
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(command.Root().Writer, text)

			return err
		},
	}
}
