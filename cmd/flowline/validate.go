package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/log"
	"github.com/urfave/cli/v3"
)

var ErrMissingWorkflowFile = errors.New("workflow file argument is required")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a workflow definition without activating it",
		ArgsUsage: "<workflow.json>",
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return ErrMissingWorkflowFile
			}

			logger := log.WithModule("validate")

			rt, err := newRuntime(logger, runtimeConfig{
				pluginsPath: command.String("plugins-path"),
				historySize: defaultHistorySize,
			})
			if err != nil {
				return err
			}

			wf, err := loadWorkflow(path)
			if err != nil {
				return err
			}

			out := command.Root().Writer

			g, err := rt.manager.Registry().Validate(wf)
			if err != nil {
				_, _ = fmt.Fprintf(out, "❌ INVALID: %s (%s): %v\n", wf.Name, wf.ID, err)

				return err
			}

			_, _ = fmt.Fprintf(out, "✅ VALID: %s (%s), %d nodes, %d edges, trigger %s\n",
				wf.Name, wf.ID, len(g.Nodes()), len(g.Edges()), g.Trigger().ID)

			return nil
		},
	}
}
