package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowline/pkg/ledger"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/dukex/flowline/pkg/triggers"
	"github.com/dukex/flowline/pkg/triggers/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAdapter struct {
	mu        sync.Mutex
	created   []protocol.Subscription
	removed   []protocol.Subscription
	createErr error
}

func (a *recordingAdapter) ID() string { return "recording" }

func (a *recordingAdapter) Normalize(raw any, credentials map[string]string) map[string]any {
	return triggers.Normalize(raw, credentials)
}

func (a *recordingAdapter) CreateSubscription(_ context.Context, sub protocol.Subscription) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.createErr != nil {
		return a.createErr
	}

	a.created = append(a.created, sub)

	return nil
}

func (a *recordingAdapter) RemoveSubscription(_ context.Context, sub protocol.Subscription) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.removed = append(a.removed, sub)

	return nil
}

func (a *recordingAdapter) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.created), len(a.removed)
}

func newTestManager(t *testing.T, adapters ...protocol.TriggerAdapter) *Manager {
	t.Helper()

	adapters = append(adapters, webhook.NewAdapter(discardLogger()))
	catalog, set := newCatalog(t, adapters...)

	manager := NewManager(
		NewRegistry(NewValidator(set)),
		NewExecutor(set, nil, nil, discardLogger()),
		ledger.New(ledger.DefaultCapacity),
		catalog,
		"http://localhost:9091/",
		discardLogger(),
	)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = manager.Stop(ctx)
	})

	return manager
}

func echoWorkflow(id string, triggerConfig map[string]any) *models.Workflow {
	return &models.Workflow{
		ID:    id,
		Nodes: []*models.WorkflowNode{testutil.Trigger(triggerConfig), testutil.Action("a", "echo")},
		Edges: []*models.Edge{testutil.Edge("trigger", "", "a")},
	}
}

func TestManager_Activate(t *testing.T) {
	manager := newTestManager(t)

	result, err := manager.Activate(context.Background(), echoWorkflow("wf-1", nil), nil)
	require.NoError(t, err)

	assert.Equal(t, "wf-1", result.WorkflowID)
	assert.Equal(t, "http://localhost:9091/webhook/wf-1", result.WebhookURL)

	status := manager.Status("wf-1")
	assert.True(t, status.IsRegistered)
	assert.True(t, status.IsActive)
	assert.NotNil(t, status.RegisteredAt)
	assert.Zero(t, status.TotalExecutions)
}

func TestManager_ActivateInvalidGraphKeepsPreviousRegistration(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", nil), nil)
	require.NoError(t, err)

	broken := &models.Workflow{
		ID:    "wf-1",
		Nodes: []*models.WorkflowNode{testutil.Action("a", "echo"), testutil.Action("b", "echo")},
		Edges: []*models.Edge{testutil.Edge("a", "", "b")},
	}

	_, err = manager.Activate(context.Background(), broken, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidGraph(err))

	reg, err := manager.Registry().Get("wf-1")
	require.NoError(t, err)
	assert.Len(t, reg.Workflow.Nodes, 2)
	assert.Equal(t, "trigger", reg.Graph.Trigger().ID)
	assert.True(t, manager.Status("wf-1").IsActive)
}

func TestManager_ActivateUnknownAdapter(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", map[string]any{"adapter": "telegram"}), nil)
	require.Error(t, err)
	assert.True(t, IsInvalidGraph(err))
	assert.False(t, manager.Status("wf-1").IsRegistered)
}

func TestManager_MissingCredentialsBeforeSubscription(t *testing.T) {
	adapter := &recordingAdapter{}
	manager := newTestManager(t, adapter)

	wf := echoWorkflow("wf-1", map[string]any{
		"adapter":             "recording",
		"requiredCredentials": []any{"botToken"},
	})

	_, err := manager.Activate(context.Background(), wf, map[string]string{"other": "x"})
	require.Error(t, err)
	assert.True(t, IsMissingCredentials(err))
	assert.Contains(t, err.Error(), "botToken")

	created, _ := adapter.counts()
	assert.Zero(t, created)
	assert.False(t, manager.Status("wf-1").IsRegistered)

	_, err = manager.Activate(context.Background(), wf, map[string]string{"botToken": "secret"})
	require.NoError(t, err)

	created, removed := adapter.counts()
	assert.Equal(t, 1, created)
	assert.Zero(t, removed)
	assert.Equal(t, "secret", adapter.created[0].Credentials["botToken"])
	assert.Equal(t, "http://localhost:9091/webhook/wf-1", adapter.created[0].CallbackURL)
}

func TestManager_SubscriptionFailureLeavesWorkflowUnregistered(t *testing.T) {
	adapter := &recordingAdapter{createErr: errors.New("upstream down")}
	manager := newTestManager(t, adapter)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", map[string]any{"adapter": "recording"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
	assert.False(t, manager.Status("wf-1").IsRegistered)
}

func TestManager_ReactivateReplacesSubscription(t *testing.T) {
	adapter := &recordingAdapter{}
	manager := newTestManager(t, adapter)

	wf := echoWorkflow("wf-1", map[string]any{"adapter": "recording"})

	_, err := manager.Activate(context.Background(), wf, nil)
	require.NoError(t, err)
	_, err = manager.Activate(context.Background(), wf, nil)
	require.NoError(t, err)

	created, removed := adapter.counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, removed)
}

func TestManager_Deactivate(t *testing.T) {
	adapter := &recordingAdapter{}
	manager := newTestManager(t, adapter)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", map[string]any{"adapter": "recording"}), nil)
	require.NoError(t, err)

	existed, err := manager.Deactivate(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.True(t, existed)

	_, removed := adapter.counts()
	assert.Equal(t, 1, removed)

	status := manager.Status("wf-1")
	assert.True(t, status.IsRegistered)
	assert.False(t, status.IsActive)

	existed, err = manager.Deactivate(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.True(t, existed)

	_, removed = adapter.counts()
	assert.Equal(t, 1, removed)
}

func TestManager_UnknownWorkflow(t *testing.T) {
	manager := newTestManager(t)

	existed, err := manager.Deactivate(context.Background(), "missing")
	assert.False(t, existed)
	assert.True(t, IsNotFound(err))

	assert.False(t, manager.Status("missing").IsRegistered)

	_, err = manager.Trigger(context.Background(), "missing", map[string]any{})
	assert.True(t, IsNotFound(err))

	_, err = manager.ExecutionData("missing")
	assert.True(t, IsNotFound(err))

	_, err = manager.History("missing", 5)
	assert.True(t, IsNotFound(err))
}

func TestManager_TriggerInactiveWorkflow(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", nil), nil)
	require.NoError(t, err)

	_, err = manager.Deactivate(context.Background(), "wf-1")
	require.NoError(t, err)

	_, err = manager.Trigger(context.Background(), "wf-1", map[string]any{"text": "hi"})
	assert.ErrorIs(t, err, ErrInactive)

	run, err := manager.ExecuteManual(context.Background(), "wf-1", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.RunModeManual, run.Mode)
	assert.False(t, run.Failed())
}

func TestManager_TriggerRecordsRun(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", nil), nil)
	require.NoError(t, err)

	runID, err := manager.Trigger(context.Background(), "wf-1", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	manager.Wait()

	history, err := manager.History("wf-1", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runID, history[0].ID)
	assert.Equal(t, map[string]any{"json": map[string]any{"text": "hi"}}, history[0].FinalOutput)

	status := manager.Status("wf-1")
	assert.EqualValues(t, 1, status.TotalExecutions)
	assert.NotNil(t, status.LastExecutionAt)
	assert.Empty(t, status.LastError)

	data, err := manager.ExecutionData("wf-1")
	require.NoError(t, err)
	assert.Equal(t, runID, data.(*models.Run).ID)
}

func TestManager_TriggerAfterStopIsRejected(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", nil), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, manager.Stop(ctx))

	_, err = manager.Trigger(context.Background(), "wf-1", map[string]any{"text": "hi"})
	assert.ErrorIs(t, err, ErrStopped)

	history, err := manager.History("wf-1", 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestManager_ExecutionDataFallsBackToTriggerPayload(t *testing.T) {
	manager := newTestManager(t)

	wf := &models.Workflow{
		ID: "wf-1",
		Nodes: []*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("pause", models.NodeKindWait, map[string]any{"duration": "1h"}),
		},
		Edges: []*models.Edge{testutil.Edge("trigger", "", "pause")},
	}

	_, err := manager.Activate(context.Background(), wf, nil)
	require.NoError(t, err)

	_, err = manager.ExecutionData("wf-1")
	assert.True(t, IsNotFound(err))

	_, err = manager.Trigger(context.Background(), "wf-1", map[string]any{"text": "hi"})
	require.NoError(t, err)

	data, err := manager.ExecutionData("wf-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"json": map[string]any{"text": "hi"}}, data)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, manager.Stop(ctx))

	history, err := manager.History("wf-1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Failed())
	assert.Equal(t, history[0].Error, manager.Status("wf-1").LastError)
}

func TestManager_AttachesSelectedCredentials(t *testing.T) {
	manager := newTestManager(t)

	wf := echoWorkflow("wf-1", map[string]any{
		"requiredCredentials": []any{"botToken", "secret"},
		"attachCredentials":   []any{"botToken"},
	})

	_, err := manager.Activate(context.Background(), wf, map[string]string{"botToken": "bt", "secret": "s"})
	require.NoError(t, err)

	run, err := manager.ExecuteManual(context.Background(), "wf-1", map[string]any{"text": "hi"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"json":        map[string]any{"text": "hi"},
		"credentials": map[string]any{"botToken": "bt"},
	}, run.FinalOutput)
}

func TestManager_CredentialsAreScopedPerWorkflow(t *testing.T) {
	manager := newTestManager(t)

	cfg := map[string]any{"attachCredentials": []any{"botToken"}}

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", cfg), map[string]string{"botToken": "one"})
	require.NoError(t, err)
	_, err = manager.Activate(context.Background(), echoWorkflow("wf-2", cfg), map[string]string{"botToken": "two"})
	require.NoError(t, err)

	run, err := manager.ExecuteManual(context.Background(), "wf-1", "ping")
	require.NoError(t, err)

	output := run.FinalOutput.(map[string]any)
	assert.Equal(t, map[string]any{"botToken": "one"}, output["credentials"])
}

func TestManager_TriggerRejectsInvalidPayload(t *testing.T) {
	manager := newTestManager(t)

	wf := echoWorkflow("wf-1", map[string]any{
		"schema": map[string]any{
			"type":     "object",
			"required": []any{"text"},
		},
	})

	_, err := manager.Activate(context.Background(), wf, nil)
	require.NoError(t, err)

	_, err = manager.Trigger(context.Background(), "wf-1", map[string]any{"other": 1})
	require.Error(t, err)
	assert.True(t, IsInvalidPayload(err))

	_, err = manager.ExecutionData("wf-1")
	assert.True(t, IsNotFound(err))
}

func TestManager_RunOnce(t *testing.T) {
	manager := newTestManager(t)

	run, err := manager.RunOnce(context.Background(), echoWorkflow("wf-1", nil), "ping")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"json": "ping"}, run.FinalOutput)
	assert.False(t, manager.Status("wf-1").IsRegistered)

	_, err = manager.RunOnce(context.Background(), &models.Workflow{ID: "wf-2"}, "ping")
	assert.True(t, IsInvalidGraph(err))
}

func TestManager_ConcurrentTriggers(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Activate(context.Background(), echoWorkflow("wf-1", nil), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := range 30 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := manager.Trigger(context.Background(), "wf-1", map[string]any{"n": i})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	manager.Wait()

	assert.EqualValues(t, 30, manager.Status("wf-1").TotalExecutions)

	history, err := manager.History("wf-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 30)
}
