package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/log"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/workspace"
	cli "github.com/urfave/cli/v3"
)

var (
	ErrUnitsFailed = errors.New("some agents failed")
	ErrInvalidVar  = errors.New("variable overrides must look like name=value")
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Load agents, group them into bundles by their bundle field and run every bundle",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "Override a variable of every agent that defines it, as name=value",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("run")

			files := command.Args().Slice()
			if len(files) == 0 {
				return ErrNoFiles
			}

			overrides, err := parseVars(command.StringSlice("var"))
			if err != nil {
				return err
			}

			ws, closeAll, err := newWorkspace(ctx, command, logger)
			if err != nil {
				return err
			}
			defer closeAll()

			uploads, err := uploadFiles(ctx, ws, files, overrides)
			if err != nil {
				return err
			}

			names, groups := groupByBundle(uploads)
			for _, name := range names {
				if _, err := ws.CreateBundle(ctx, groups[name], bundle.CreateOptions{Name: name}); err != nil {
					return fmt.Errorf("bundle %s: %w", name, err)
				}
			}

			if err := initialize(ctx, command, ws); err != nil {
				return err
			}

			runs, runErr := ws.RunAllBundles(ctx)

			failed := printRuns(command.Root().Writer, runs)

			switch {
			case runErr != nil:
				return runErr
			case failed > 0:
				return fmt.Errorf("%w: %d", ErrUnitsFailed, failed)
			default:
				return nil
			}
		},
	}
}

func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVar, pair)
		}

		vars[strings.TrimSpace(name)] = value
	}

	return vars, nil
}

func uploadFiles(ctx context.Context, ws *workspace.Workspace, files []string, overrides map[string]any) ([]*workspace.UploadResult, error) {
	uploads := make([]*workspace.UploadResult, 0, len(files))

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		result, err := ws.UploadAgent(ctx, string(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		if vars := applicable(result.Config, overrides); len(vars) > 0 {
			if _, err := ws.SetVariables(ctx, result.Agent.ID, vars); err != nil {
				return nil, err
			}
		}

		uploads = append(uploads, result)
	}

	return uploads, nil
}

// applicable keeps the overrides the definition declares.
func applicable(config *models.AgentConfig, overrides map[string]any) map[string]any {
	vars := map[string]any{}

	for name, value := range overrides {
		if _, ok := config.Vars[name]; ok {
			vars[name] = value
		}
	}

	return vars
}

// groupByBundle returns the bundle names in first-seen order and the agent
// and output node ids of each.
func groupByBundle(uploads []*workspace.UploadResult) ([]string, map[string][]string) {
	var names []string

	groups := map[string][]string{}

	for _, u := range uploads {
		name := u.Config.Bundle
		if name == "" {
			name = models.DefaultBundle
		}

		if _, seen := groups[name]; !seen {
			names = append(names, name)
		}

		groups[name] = append(groups[name], u.Agent.ID, u.Output.ID)
	}

	return names, groups
}

// printRuns writes every unit outcome and returns the number of failures.
func printRuns(out io.Writer, runs []*models.BundleRun) int {
	failed := 0

	for _, run := range runs {
		fmt.Fprintf(out, "== %s ==\n", run.BundleName)

		for _, unit := range run.Units {
			if unit.State != models.UnitStateSucceeded {
				failed++

				fmt.Fprintf(out, "--- %s failed (%s): %s\n", unit.AgentNodeID, unit.FailureKind, unit.Error)

				continue
			}

			title := unit.AgentNodeID
			if unit.Envelope != nil {
				title = fmt.Sprintf("%s [%s]", unit.Envelope.AgentTitle, unit.Envelope.Model)
			}

			fmt.Fprintf(out, "--- %s\n%s\n", title, unit.Output)
		}
	}

	return failed
}
