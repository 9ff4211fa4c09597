package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/flowline/pkg/cmd"
	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the workflow API and trigger adapters",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "public-url",
				Usage:   "Externally reachable base URL used to build webhook URLs",
				Value:   fmt.Sprintf("http://localhost:%d", defaultPort),
				Sources: cli.EnvVars("PUBLIC_URL"),
			},
			&cli.IntFlag{
				Name:    "history-size",
				Usage:   "Number of runs kept per workflow",
				Value:   defaultHistorySize,
				Sources: cli.EnvVars("HISTORY_SIZE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers, used by the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("api")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Flowline API")

			tracer, shutdownTracer, err := newTracer(ctx, command.Bool("otel-enabled"))
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			if err := logRunEvents(ctx, eventBus, logger); err != nil {
				return err
			}

			rt, err := newRuntime(logger, runtimeConfig{
				pluginsPath: command.String("plugins-path"),
				publicURL:   command.String("public-url"),
				historySize: command.Int("history-size"),
				publisher:   eventBus,
				tracer:      tracer,
			})
			if err != nil {
				return err
			}

			if err := rt.manager.Start(ctx); err != nil {
				return err
			}

			api := NewAPI(logger, rt)
			app := api.App()

			listenErr := make(chan error, 1)

			go func() {
				listenErr <- api.Listen(app, command.Int("port"))
			}()

			select {
			case err = <-listenErr:
			case <-ctx.Done():
				logger.Info("Shutting down gracefully...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
				logger.Error("Failed to shutdown HTTP server", "error", shutdownErr)
			}

			if stopErr := rt.manager.Stop(shutdownCtx); stopErr != nil {
				logger.Error("Failed to stop workflow manager", "error", stopErr)
			}

			return err
		},
	}
}

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func newTracer(ctx context.Context, enabled bool) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, "flowline")
}

// logRunEvents subscribes to the run lifecycle events and logs them.
func logRunEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.RunStartedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.RunStarted)
			if !ok {
				return errors.New("unexpected run.started payload")
			}

			logger.DebugContext(ctx, "Run started", "workflow_id", e.WorkflowID, "run_id", e.RunID, "mode", e.Mode)

			return nil
		},
		events.RunCompletedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.RunCompleted)
			if !ok {
				return errors.New("unexpected run.completed payload")
			}

			logger.InfoContext(ctx, "Run completed",
				"workflow_id", e.WorkflowID, "run_id", e.RunID, "steps", e.Steps, "duration", e.Duration)

			return nil
		},
		events.RunFailedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.RunFailed)
			if !ok {
				return errors.New("unexpected run.failed payload")
			}

			logger.WarnContext(ctx, "Run failed",
				"workflow_id", e.WorkflowID, "run_id", e.RunID, "node_id", e.NodeID, "error", e.Error)

			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("registering %s handler: %w", eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}
