package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/flowline/pkg/graph"
	"github.com/dukex/flowline/pkg/ledger"
	"github.com/dukex/flowline/pkg/models"
	triggernode "github.com/dukex/flowline/pkg/nodes/trigger"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Adapters looks trigger adapters up by id.
type Adapters interface {
	TriggerAdapter(id string) (protocol.TriggerAdapter, bool)
	Triggers() []protocol.TriggerAdapter
}

// ActivationResult is returned by a successful activation.
type ActivationResult struct {
	WorkflowID string `json:"workflowId"`
	WebhookURL string `json:"webhookUrl"`
}

// Manager ties the registry, the trigger adapters, the executor and the ledger together.
type Manager struct {
	registry  *Registry
	executor  *Executor
	ledger    *ledger.Ledger
	adapters  Adapters
	publicURL string
	logger    *slog.Logger

	activation sync.Mutex
	stopped    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. publicURL prefixes the webhook URL returned on activation.
func NewManager(
	registry *Registry,
	executor *Executor,
	history *ledger.Ledger,
	adapters Adapters,
	publicURL string,
	logger *slog.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		registry:  registry,
		executor:  executor,
		ledger:    history,
		adapters:  adapters,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger.With("module", "workflow_manager"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Registry returns the workflow registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// WebhookURL returns the URL inbound events for workflowID are posted to.
func (m *Manager) WebhookURL(workflowID string) string {
	return m.publicURL + "/webhook/" + url.PathEscape(workflowID)
}

// Activate validates wf, subscribes its trigger adapter and registers it as active.
// Missing credentials are reported before any subscription is attempted.
func (m *Manager) Activate(ctx context.Context, wf *models.Workflow, credentials map[string]string) (*ActivationResult, error) {
	m.activation.Lock()
	defer m.activation.Unlock()

	g, err := m.registry.Validate(wf)
	if err != nil {
		return nil, err
	}

	trigger := g.Trigger()

	cfg, adapter, err := m.adapterFor(trigger)
	if err != nil {
		return nil, err
	}

	if missing := missingCredentials(cfg, adapter, trigger.Config, credentials); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	logger := m.logger.With("workflow_id", wf.ID, "adapter", cfg.Adapter)

	previous, err := m.registry.Get(wf.ID)
	if err == nil && previous.Workflow.Status == models.WorkflowStatusActive {
		m.unsubscribe(ctx, previous)
	} else {
		previous = nil
	}

	sub := protocol.Subscription{
		WorkflowID:  wf.ID,
		NodeID:      trigger.ID,
		CallbackURL: m.WebhookURL(wf.ID),
		Config:      trigger.Config,
		Credentials: credentials,
	}

	if err := adapter.CreateSubscription(ctx, sub); err != nil {
		m.resubscribe(ctx, previous)

		return nil, fmt.Errorf("create %s subscription: %w", cfg.Adapter, err)
	}

	if _, err := m.registry.Register(wf, credentials); err != nil {
		if rmErr := adapter.RemoveSubscription(ctx, sub); rmErr != nil {
			logger.WarnContext(ctx, "Failed to roll back subscription", "error", rmErr)
		}

		m.resubscribe(ctx, previous)

		return nil, err
	}

	logger.InfoContext(ctx, "Workflow activated", "webhook_url", sub.CallbackURL)

	return &ActivationResult{WorkflowID: wf.ID, WebhookURL: sub.CallbackURL}, nil
}

// Deactivate marks workflowID inactive and removes its trigger subscription.
// It returns false and ErrNotFound for unknown ids.
func (m *Manager) Deactivate(ctx context.Context, workflowID string) (bool, error) {
	m.activation.Lock()
	defer m.activation.Unlock()

	reg, err := m.registry.Get(workflowID)
	if err != nil {
		return false, err
	}

	existed, err := m.registry.Deactivate(workflowID)
	if err != nil {
		return existed, err
	}

	if reg.Workflow.Status == models.WorkflowStatusActive {
		m.unsubscribe(ctx, reg)
	}

	m.logger.InfoContext(ctx, "Workflow deactivated", "workflow_id", workflowID)

	return existed, nil
}

// Status reports the registration and execution counters of workflowID.
func (m *Manager) Status(workflowID string) models.StatusReport {
	return m.registry.Status(workflowID)
}

// ExecutionData returns the latest run of workflowID, or its latest trigger payload
// when no run has completed yet.
func (m *Manager) ExecutionData(workflowID string) (any, error) {
	if _, err := m.registry.Get(workflowID); err != nil {
		return nil, err
	}

	if run, ok := m.ledger.Latest(workflowID); ok {
		return run, nil
	}

	if payload, ok := m.registry.LastTrigger(workflowID); ok {
		return payload, nil
	}

	return nil, fmt.Errorf("no execution data for %s: %w", workflowID, ErrNotFound)
}

// History returns up to limit recent runs of workflowID, newest first.
func (m *Manager) History(workflowID string, limit int) ([]*models.Run, error) {
	if _, err := m.registry.Get(workflowID); err != nil {
		return nil, err
	}

	return m.ledger.Recent(workflowID, limit), nil
}

// Trigger accepts an inbound event for an active workflow and starts a run in the
// background. It returns once the event is accepted, independently of the run outcome.
func (m *Manager) Trigger(ctx context.Context, workflowID string, raw any) (string, error) {
	reg, err := m.registry.Get(workflowID)
	if err != nil {
		return "", err
	}

	if reg.Workflow.Status != models.WorkflowStatusActive {
		return "", fmt.Errorf("trigger %s: %w", workflowID, ErrInactive)
	}

	payload, err := m.normalize(reg.Graph, workflowID, raw, reg.Credentials)
	if err != nil {
		return "", err
	}

	m.activation.Lock()
	if m.stopped {
		m.activation.Unlock()

		return "", fmt.Errorf("trigger %s: %w", workflowID, ErrStopped)
	}

	m.wg.Add(1)
	m.activation.Unlock()

	m.registry.RecordTrigger(workflowID, payload)

	req := RunRequest{
		RunID:       uuid.NewString(),
		WorkflowID:  workflowID,
		Graph:       reg.Graph,
		Payload:     payload,
		Mode:        models.RunModeTrigger,
		Credentials: reg.Credentials,
	}

	runCtx := trace.ContextWithSpanContext(m.ctx, trace.SpanContextFromContext(ctx))

	go func() {
		defer m.wg.Done()

		m.execute(runCtx, req)
	}()

	return req.RunID, nil
}

// ExecuteManual runs workflowID synchronously, whether or not it is active.
func (m *Manager) ExecuteManual(ctx context.Context, workflowID string, raw any) (*models.Run, error) {
	reg, err := m.registry.Get(workflowID)
	if err != nil {
		return nil, err
	}

	payload, err := m.normalize(reg.Graph, workflowID, raw, reg.Credentials)
	if err != nil {
		return nil, err
	}

	m.registry.RecordTrigger(workflowID, payload)

	return m.execute(ctx, RunRequest{
		WorkflowID:  workflowID,
		Graph:       reg.Graph,
		Payload:     payload,
		Mode:        models.RunModeManual,
		Credentials: reg.Credentials,
	}), nil
}

// RunOnce validates and runs wf without registering it.
func (m *Manager) RunOnce(ctx context.Context, wf *models.Workflow, raw any) (*models.Run, error) {
	g, err := m.registry.Validate(wf)
	if err != nil {
		return nil, err
	}

	payload, err := m.normalize(g, wf.ID, raw, wf.Credentials)
	if err != nil {
		return nil, err
	}

	return m.executor.Run(ctx, RunRequest{
		WorkflowID:  wf.ID,
		Graph:       g,
		Payload:     payload,
		Mode:        models.RunModeManual,
		Credentials: wf.Credentials,
	}), nil
}

// Start starts the adapters that emit events on their own.
func (m *Manager) Start(ctx context.Context) error {
	for _, adapter := range m.adapters.Triggers() {
		runner, ok := adapter.(protocol.TriggerRunner)
		if !ok {
			continue
		}

		if err := runner.Start(ctx, m.dispatch); err != nil {
			return fmt.Errorf("start %s trigger: %w", adapter.ID(), err)
		}

		m.logger.InfoContext(ctx, "Trigger adapter started", "adapter", adapter.ID())
	}

	return nil
}

// Stop cancels in-flight runs, waits for them and stops the running adapters.
// Events triggered after Stop begins are rejected with ErrStopped.
func (m *Manager) Stop(ctx context.Context) error {
	m.activation.Lock()
	m.stopped = true
	m.activation.Unlock()

	m.cancel()

	for _, adapter := range m.adapters.Triggers() {
		if runner, ok := adapter.(protocol.TriggerRunner); ok {
			if err := runner.Stop(ctx); err != nil {
				m.logger.WarnContext(ctx, "Failed to stop trigger adapter", "adapter", adapter.ID(), "error", err)
			}
		}
	}

	done := make(chan struct{})

	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight runs: %w", ctx.Err())
	}
}

// Wait blocks until every background run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) dispatch(ctx context.Context, workflowID string, payload any) error {
	_, err := m.Trigger(ctx, workflowID, payload)

	return err
}

func (m *Manager) execute(ctx context.Context, req RunRequest) *models.Run {
	run := m.executor.Run(ctx, req)

	m.ledger.Append(req.WorkflowID, run)
	m.registry.RecordRun(run)

	return run
}

func (m *Manager) normalize(g *graph.Graph, workflowID string, raw any, credentials map[string]string) (map[string]any, error) {
	cfg, adapter, err := m.adapterFor(g.Trigger())
	if err != nil {
		return nil, err
	}

	if v, ok := adapter.(protocol.PayloadValidator); ok {
		if err := v.ValidatePayload(workflowID, raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	attached := make(map[string]string, len(cfg.AttachCredentials))

	for _, name := range cfg.AttachCredentials {
		if value, ok := credentials[name]; ok {
			attached[name] = value
		}
	}

	return adapter.Normalize(raw, attached), nil
}

func (m *Manager) adapterFor(trigger *models.WorkflowNode) (triggernode.Config, protocol.TriggerAdapter, error) {
	cfg, err := triggernode.ParseConfig(trigger.Config)
	if err != nil {
		return cfg, nil, &graph.Error{NodeID: trigger.ID, Reason: err.Error()}
	}

	adapter, ok := m.adapters.TriggerAdapter(cfg.Adapter)
	if !ok {
		return cfg, nil, &graph.Error{NodeID: trigger.ID, Reason: "unknown trigger adapter '" + cfg.Adapter + "'"}
	}

	return cfg, adapter, nil
}

func (m *Manager) unsubscribe(ctx context.Context, reg *Registered) {
	adapter, sub, err := m.subscriptionOf(reg)
	if err != nil {
		m.logger.WarnContext(ctx, "Cannot resolve trigger adapter", "workflow_id", reg.Workflow.ID, "error", err)

		return
	}

	if err := adapter.RemoveSubscription(ctx, sub); err != nil {
		m.logger.WarnContext(ctx, "Failed to remove subscription", "workflow_id", reg.Workflow.ID, "error", err)
	}
}

// resubscribe restores the subscription of a registration that is still active.
func (m *Manager) resubscribe(ctx context.Context, reg *Registered) {
	if reg == nil {
		return
	}

	adapter, sub, err := m.subscriptionOf(reg)
	if err != nil {
		return
	}

	if err := adapter.CreateSubscription(ctx, sub); err != nil {
		m.logger.ErrorContext(ctx, "Failed to restore subscription", "workflow_id", reg.Workflow.ID, "error", err)
	}
}

func (m *Manager) subscriptionOf(reg *Registered) (protocol.TriggerAdapter, protocol.Subscription, error) {
	trigger := reg.Graph.Trigger()

	_, adapter, err := m.adapterFor(trigger)
	if err != nil {
		return nil, protocol.Subscription{}, err
	}

	return adapter, protocol.Subscription{
		WorkflowID:  reg.Workflow.ID,
		NodeID:      trigger.ID,
		CallbackURL: m.WebhookURL(reg.Workflow.ID),
		Config:      trigger.Config,
		Credentials: reg.Credentials,
	}, nil
}

func missingCredentials(
	cfg triggernode.Config,
	adapter protocol.TriggerAdapter,
	config map[string]any,
	credentials map[string]string,
) []string {
	required := slices.Clone(cfg.RequiredCredentials)
	if requirer, ok := adapter.(protocol.CredentialRequirer); ok {
		required = append(required, requirer.RequiredCredentials(config)...)
	}

	missing := make([]string, 0)

	for _, name := range required {
		if credentials[name] == "" && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}

	return missing
}
