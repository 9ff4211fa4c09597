package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/flowline/pkg/log"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a workflow definition once and print the run",
		ArgsUsage: "<workflow.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "payload",
				Usage: "JSON payload delivered to the trigger",
				Value: "{}",
			},
			&cli.StringSliceFlag{
				Name:  "credential",
				Usage: "Credential as name=value, repeatable",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return ErrMissingWorkflowFile
			}

			logger := log.WithModule("run")

			wf, err := loadWorkflow(path)
			if err != nil {
				return err
			}

			if wf.Credentials, err = parseCredentials(command.StringSlice("credential")); err != nil {
				return err
			}

			var payload any
			if err := json.Unmarshal([]byte(command.String("payload")), &payload); err != nil {
				return fmt.Errorf("decoding payload: %w", err)
			}

			rt, err := newRuntime(logger, runtimeConfig{
				pluginsPath: command.String("plugins-path"),
				historySize: defaultHistorySize,
			})
			if err != nil {
				return err
			}

			run, err := rt.manager.RunOnce(ctx, wf, payload)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			if err := encoder.Encode(run); err != nil {
				return err
			}

			if run.Failed() {
				return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
			}

			return nil
		},
	}
}
