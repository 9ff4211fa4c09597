// Package schedule provides the cron-based trigger adapter.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/triggers"
	"github.com/robfig/cron/v3"
)

// ID is the adapter id used in trigger node configuration.
const ID = "schedule"

var (
	ErrMissingSchedule = errors.New("schedule trigger cron expression is required")
	ErrNotStarted      = errors.New("schedule adapter not started")
)

// Adapter fires one event per cron tick for every subscribed workflow.
type Adapter struct {
	logger   *slog.Logger
	cron     *cron.Cron
	mu       sync.Mutex
	entries  map[string]cron.EntryID
	callback protocol.TriggerCallback
	ctx      context.Context
	now      func() time.Time
}

// NewAdapter creates the schedule adapter. Jobs run once Start is called.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{
		logger: logger.With("module", "schedule_trigger"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]cron.EntryID),
		now:     time.Now,
	}
}

// ID returns the adapter id.
func (a *Adapter) ID() string {
	return ID
}

// Normalize wraps the tick payload as {json: payload}.
func (a *Adapter) Normalize(raw any, credentials map[string]string) map[string]any {
	return triggers.Normalize(raw, credentials)
}

// Start begins dispatching ticks to callback.
func (a *Adapter) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	a.mu.Lock()
	a.callback = callback
	a.ctx = ctx
	a.mu.Unlock()

	a.logger.Info("Starting schedule adapter")
	a.cron.Start()

	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("Stopping schedule adapter")

	select {
	case <-a.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSubscription schedules the workflow, replacing any previous schedule for it.
func (a *Adapter) CreateSubscription(_ context.Context, sub protocol.Subscription) error {
	expr, _ := sub.Config["schedule"].(string)
	if expr == "" {
		return ErrMissingSchedule
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.entries[sub.WorkflowID]; ok {
		a.cron.Remove(id)
	}

	workflowID := sub.WorkflowID
	a.entries[workflowID] = a.cron.Schedule(schedule, cron.FuncJob(func() {
		if err := a.Fire(workflowID); err != nil {
			a.logger.Error("Error dispatching scheduled event", "workflow_id", workflowID, "error", err)
		}
	}))

	a.logger.Info("Scheduled workflow", "workflow_id", workflowID, "cron", expr)

	return nil
}

// RemoveSubscription unschedules the workflow.
func (a *Adapter) RemoveSubscription(_ context.Context, sub protocol.Subscription) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.entries[sub.WorkflowID]; ok {
		a.cron.Remove(id)
		delete(a.entries, sub.WorkflowID)
		a.logger.Info("Unscheduled workflow", "workflow_id", sub.WorkflowID)
	}

	return nil
}

// Scheduled reports whether workflowID has a cron entry.
func (a *Adapter) Scheduled(workflowID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.entries[workflowID]

	return ok
}

// Fire dispatches one tick for workflowID.
func (a *Adapter) Fire(workflowID string) error {
	a.mu.Lock()
	callback, ctx := a.callback, a.ctx
	a.mu.Unlock()

	if callback == nil {
		return ErrNotStarted
	}

	return callback(ctx, workflowID, map[string]any{
		"timestamp": a.now().UTC().Format(time.RFC3339),
	})
}
