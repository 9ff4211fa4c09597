package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/graph"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/nodes"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunRequest describes a single run of a validated graph.
type RunRequest struct {
	RunID       string
	WorkflowID  string
	Graph       *graph.Graph
	Payload     any
	Mode        models.RunMode
	Credentials map[string]string
}

// Executor walks a graph from its trigger and records every node execution.
// Each call to Run is independent; concurrent runs share no mutable state.
type Executor struct {
	nodes     *nodes.Set
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor creates an executor. publisher may be nil; a nil tracer records nothing.
func NewExecutor(set *nodes.Set, publisher eventbus.EventPublisher, tracer trace.Tracer, logger *slog.Logger) *Executor {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Executor{
		nodes:     set,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger.With("module", "workflow_executor"),
		now:       time.Now,
	}
}

// Run executes req to completion or to the first error and returns the recorded run.
func (e *Executor) Run(ctx context.Context, req RunRequest) *models.Run {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	if req.Mode == "" {
		req.Mode = models.RunModeTrigger
	}

	run := &models.Run{
		ID:         req.RunID,
		WorkflowID: req.WorkflowID,
		Mode:       req.Mode,
		StartedAt:  e.now(),
		Steps:      []models.StepResult{},
	}

	logger := e.logger.With("workflow_id", req.WorkflowID, "run_id", req.RunID, "mode", req.Mode)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.RunIDKey, req.RunID),
		attribute.String(otelhelper.RunModeKey, string(req.Mode)),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting run")
	e.publish(ctx, req.WorkflowID, events.RunStarted{
		BaseEvent:   e.baseEvent(events.RunStartedEvent, run),
		Mode:        string(req.Mode),
		TriggerData: req.Payload,
	})

	state := &runState{executor: e, req: req, run: run, logger: logger}
	err := state.drain(ctx, state.rootScope())

	run.FinishedAt = e.now()
	run.FinalOutput = state.finalOutput

	if err != nil {
		run.Error = runError(err)

		var nodeErr *NodeExecutionError

		failedNode := ""
		if errors.As(err, &nodeErr) {
			failedNode = nodeErr.NodeID
		}

		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, failedNode))
		logger.WarnContext(ctx, "Run failed", "node_id", failedNode, "error", err, "steps", len(run.Steps))

		e.publish(ctx, req.WorkflowID, events.RunFailed{
			BaseEvent: e.baseEvent(events.RunFailedEvent, run),
			NodeID:    failedNode,
			Error:     run.Error,
			Steps:     len(run.Steps),
			Duration:  run.Duration(),
		})

		return run
	}

	logger.InfoContext(ctx, "Run completed", "steps", len(run.Steps), "duration", run.Duration())

	e.publish(ctx, req.WorkflowID, events.RunCompleted{
		BaseEvent:   e.baseEvent(events.RunCompletedEvent, run),
		Steps:       len(run.Steps),
		FinalOutput: run.FinalOutput,
		Duration:    run.Duration(),
	})

	return run
}

func (e *Executor) baseEvent(eventType events.EventType, run *models.Run) events.BaseEvent {
	id := uuid.NewString()
	if gen, ok := e.publisher.(interface{ GenerateID() string }); ok {
		id = gen.GenerateID()
	}

	return events.BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  e.now(),
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
	}
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}
