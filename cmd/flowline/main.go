// Package main provides the flowline command: the workflow API server and local tooling.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/flowline/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort        = 9091
	defaultHistorySize = 50
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "flowline",
		Usage:                 "Activate and run node-graph workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing action plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewValidateCommand(),
			NewRunCommand(),
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
