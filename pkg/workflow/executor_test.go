package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowline/pkg/channels/gochannel"
	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/graph"
	"github.com/dukex/flowline/pkg/mocks"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/nodes"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type echoAction struct{}

func (echoAction) Execute(_ context.Context, input any, _ *slog.Logger) (any, error) {
	return input, nil
}

type echoFactory struct{}

func (echoFactory) ID() string                                      { return "echo" }
func (echoFactory) Name() string                                    { return "Echo" }
func (echoFactory) Description() string                             { return "Returns its input" }
func (echoFactory) Schema() map[string]any                          { return map[string]any{"type": "object"} }
func (echoFactory) Create(map[string]any) (protocol.Action, error) { return echoAction{}, nil }

type failAction struct{}

func (failAction) Execute(context.Context, any, *slog.Logger) (any, error) {
	return nil, errors.New("kaput")
}

type failFactory struct{}

func (failFactory) ID() string                                      { return "fail" }
func (failFactory) Name() string                                    { return "Fail" }
func (failFactory) Description() string                             { return "Always fails" }
func (failFactory) Schema() map[string]any                          { return map[string]any{"type": "object"} }
func (failFactory) Create(map[string]any) (protocol.Action, error) { return failAction{}, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCatalog(t *testing.T, adapters ...protocol.TriggerAdapter) (*registry.Registry, *nodes.Set) {
	t.Helper()

	catalog := registry.NewRegistry(discardLogger())
	catalog.RegisterAction(echoFactory{})
	catalog.RegisterAction(failFactory{})

	for _, adapter := range adapters {
		catalog.RegisterTrigger(adapter)
	}

	set, err := nodes.NewSet(catalog, discardLogger())
	require.NoError(t, err)

	return catalog, set
}

func runGraph(t *testing.T, executor *Executor, ns []*models.WorkflowNode, es []*models.Edge, payload any) *models.Run {
	t.Helper()

	g, err := graph.New(ns, es)
	require.NoError(t, err)

	return executor.Run(context.Background(), RunRequest{WorkflowID: "wf-1", Graph: g, Payload: payload})
}

func stepIDs(run *models.Run) []string {
	ids := make([]string, 0, len(run.Steps))
	for _, step := range run.Steps {
		ids = append(ids, step.NodeID)
	}

	return ids
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()

	_, set := newCatalog(t)

	return NewExecutor(set, nil, nil, discardLogger())
}

func TestExecutor_LinearRun(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{testutil.Trigger(nil), testutil.Action("a", "echo"), testutil.Action("b", "echo")},
		[]*models.Edge{testutil.Edge("trigger", "", "a"), testutil.Edge("a", "", "b")},
		map[string]any{"json": map[string]any{"text": "hi"}},
	)

	require.False(t, run.Failed(), run.Error)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunModeTrigger, run.Mode)
	assert.Equal(t, []string{"trigger", "a", "b"}, stepIDs(run))
	assert.Equal(t, map[string]any{"json": map[string]any{"text": "hi"}}, run.FinalOutput)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestExecutor_LoopRunsEveryBatchBeforeDone(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("loop", models.NodeKindLoop, map[string]any{"batchSize": 2}),
			testutil.Action("body", "echo"),
			testutil.Action("after", "echo"),
		},
		[]*models.Edge{
			testutil.Edge("trigger", "", "loop"),
			testutil.Edge("loop", "Done", "after"),
			testutil.Edge("loop", "Loop", "body"),
		},
		[]any{1, 2, 3, 4, 5},
	)

	require.False(t, run.Failed(), run.Error)
	assert.Equal(t, []string{"trigger", "loop", "body", "body", "body", "after"}, stepIDs(run))
	assert.Equal(t, []any{1, 2}, run.Steps[2].Input)
	assert.Equal(t, []any{3, 4}, run.Steps[3].Input)
	assert.Equal(t, []any{5}, run.Steps[4].Input)
	assert.Equal(t, []any{[]any{1, 2}, []any{3, 4}, []any{5}}, run.Steps[5].Input)
}

func TestExecutor_NestedLoopBodyStaysInsideIteration(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("loop", models.NodeKindLoop, nil),
			testutil.Action("first", "echo"),
			testutil.Action("second", "echo"),
		},
		[]*models.Edge{
			testutil.Edge("trigger", "", "loop"),
			testutil.Edge("loop", "Loop", "first"),
			testutil.Edge("first", "", "second"),
		},
		[]any{"x", "y"},
	)

	require.False(t, run.Failed(), run.Error)
	assert.Equal(t, []string{"trigger", "loop", "first", "second", "first", "second"}, stepIDs(run))
	assert.Equal(t, []any{"y"}, run.FinalOutput)
}

func TestExecutor_LoopWithBackEdgeAndFanIn(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []*models.WorkflowNode
		edges   []*models.Edge
		payload any
		steps   []string
		inputs  map[int]any
	}{
		{
			name: "back edge into the loop ends each iteration",
			nodes: []*models.WorkflowNode{
				testutil.Trigger(nil),
				testutil.Node("loop", models.NodeKindLoop, nil),
				testutil.Action("body", "echo"),
				testutil.Action("after", "echo"),
			},
			edges: []*models.Edge{
				testutil.Edge("trigger", "", "loop"),
				testutil.Edge("loop", "Loop", "body"),
				testutil.Edge("body", "", "loop"),
				testutil.Edge("loop", "Done", "after"),
			},
			payload: []any{"a", "b"},
			steps:   []string{"trigger", "loop", "body", "body", "after"},
			inputs: map[int]any{
				2: []any{"a"},
				3: []any{"b"},
				4: []any{[]any{"a"}, []any{"b"}},
			},
		},
		{
			name: "merge in the body combines each batch with the outside delivery",
			nodes: []*models.WorkflowNode{
				testutil.Trigger(nil),
				testutil.Action("pre", "echo"),
				testutil.Node("loop", models.NodeKindLoop, nil),
				testutil.Node("merge", models.NodeKindMerge, nil),
			},
			edges: []*models.Edge{
				testutil.Edge("trigger", "", "pre"),
				testutil.Edge("pre", "", "loop"),
				testutil.Edge("loop", "Loop", "merge"),
				testutil.Edge("trigger", "", "merge"),
			},
			payload: []any{1, 2},
			steps:   []string{"trigger", "pre", "loop", "merge", "merge"},
			inputs: map[int]any{
				3: []any{[]any{1}, []any{1, 2}},
				4: []any{[]any{2}, []any{1, 2}},
			},
		},
		{
			name: "loop waits for the outside branch feeding its body",
			nodes: []*models.WorkflowNode{
				testutil.Trigger(nil),
				testutil.Node("loop", models.NodeKindLoop, nil),
				testutil.Action("side", "echo"),
				testutil.Node("merge", models.NodeKindMerge, nil),
			},
			edges: []*models.Edge{
				testutil.Edge("trigger", "", "loop"),
				testutil.Edge("trigger", "", "side"),
				testutil.Edge("side", "", "merge"),
				testutil.Edge("loop", "Loop", "merge"),
			},
			payload: []any{"x"},
			steps:   []string{"trigger", "side", "loop", "merge"},
			inputs: map[int]any{
				3: []any{[]any{"x"}, []any{"x"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runGraph(t, newExecutor(t), tt.nodes, tt.edges, tt.payload)

			require.False(t, run.Failed(), run.Error)
			assert.Equal(t, tt.steps, stepIDs(run))

			for i, input := range tt.inputs {
				assert.Equal(t, input, run.Steps[i].Input, "step %d", i)
			}
		})
	}
}

func TestExecutor_MergeWaitsOnlyForFiredEdges(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("check", models.NodeKindIf, map[string]any{"condition": "{{ .input.flag }}"}),
			testutil.Action("yes", "echo"),
			testutil.Action("no", "echo"),
			testutil.Node("merge", models.NodeKindMerge, nil),
		},
		[]*models.Edge{
			testutil.Edge("trigger", "", "check"),
			testutil.Edge("check", "true", "yes"),
			testutil.Edge("check", "false", "no"),
			testutil.Edge("yes", "", "merge"),
			testutil.Edge("no", "", "merge"),
			testutil.Edge("trigger", "", "merge"),
		},
		map[string]any{"flag": true},
	)

	require.False(t, run.Failed(), run.Error)
	assert.Equal(t, []string{"trigger", "check", "yes", "merge"}, stepIDs(run))

	step, ok := run.StepByNode("merge")
	require.True(t, ok)
	assert.Len(t, step.Input, 2)
	assert.Equal(t, []any{map[string]any{"flag": true}, map[string]any{"flag": true}}, run.FinalOutput)
}

func TestExecutor_SwitchRunsOnlyMatchingBranch(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("route", models.NodeKindSwitch, map[string]any{"value": "{{ .input.type }}", "cases": []any{"a"}}),
			testutil.Action("x", "echo"),
			testutil.Action("y", "echo"),
		},
		[]*models.Edge{
			testutil.Edge("trigger", "", "route"),
			testutil.Edge("route", "a", "x"),
			testutil.Edge("route", "default", "y"),
		},
		map[string]any{"type": "a"},
	)

	require.False(t, run.Failed(), run.Error)

	_, ranX := run.StepByNode("x")
	_, ranY := run.StepByNode("y")

	assert.True(t, ranX)
	assert.False(t, ranY)
}

func TestExecutor_StopAndErrorHaltsRun(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("stop", models.NodeKindStopAndError, map[string]any{"message": "boom"}),
			testutil.Action("after", "echo"),
		},
		[]*models.Edge{testutil.Edge("trigger", "", "stop"), testutil.Edge("stop", "", "after")},
		map[string]any{},
	)

	require.True(t, run.Failed())
	assert.Equal(t, "boom", run.Error)
	assert.Equal(t, []string{"trigger", "stop"}, stepIDs(run))
	assert.Equal(t, "boom", run.Steps[1].Error)
}

func TestExecutor_NodeErrorHaltsQueuedSiblings(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("broken", models.NodeKindAction, map[string]any{"operation": "fail"}),
			testutil.Action("sibling", "echo"),
		},
		[]*models.Edge{testutil.Edge("trigger", "", "broken"), testutil.Edge("trigger", "", "sibling")},
		map[string]any{},
	)

	require.True(t, run.Failed())
	assert.Equal(t, "node broken (action): kaput", run.Error)
	assert.Equal(t, []string{"trigger", "broken"}, stepIDs(run))
	assert.Equal(t, "kaput", run.Steps[1].Error)
}

func TestExecutor_NodeRunsOncePerDelivery(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{testutil.Trigger(nil), testutil.Action("a", "echo"), testutil.Action("b", "echo"), testutil.Action("join", "echo")},
		[]*models.Edge{
			testutil.Edge("trigger", "", "a"),
			testutil.Edge("trigger", "", "b"),
			testutil.Edge("a", "", "join"),
			testutil.Edge("b", "", "join"),
		},
		"payload",
	)

	require.False(t, run.Failed(), run.Error)
	assert.Equal(t, []string{"trigger", "a", "b", "join", "join"}, stepIDs(run))
}

func TestExecutor_UnreachableNodesNeverRun(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{testutil.Trigger(nil), testutil.Action("a", "echo"), testutil.Action("orphan", "echo")},
		[]*models.Edge{testutil.Edge("trigger", "", "a")},
		"payload",
	)

	require.False(t, run.Failed(), run.Error)
	assert.Equal(t, []string{"trigger", "a"}, stepIDs(run))
}

func TestExecutor_CancelledContext(t *testing.T) {
	executor := newExecutor(t)

	g, err := graph.New([]*models.WorkflowNode{testutil.Trigger(nil), testutil.Action("a", "echo")}, []*models.Edge{testutil.Edge("trigger", "", "a")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := executor.Run(ctx, RunRequest{WorkflowID: "wf-1", Graph: g, Payload: "payload"})

	require.True(t, run.Failed())
	assert.Contains(t, run.Error, ErrRunCancelled.Error())
	assert.Empty(t, run.Steps)
}

func TestExecutor_ExecutionContextReachesNodes(t *testing.T) {
	executor := newExecutor(t)

	run := runGraph(t, executor,
		[]*models.WorkflowNode{
			testutil.Trigger(nil),
			testutil.Node("check", models.NodeKindIf, map[string]any{"condition": `{{ eq .execution.node_id "check" }}`}),
			testutil.Action("yes", "echo"),
		},
		[]*models.Edge{testutil.Edge("trigger", "", "check"), testutil.Edge("check", "true", "yes")},
		"payload",
	)

	require.False(t, run.Failed(), run.Error)
	assert.Equal(t, []string{"trigger", "check", "yes"}, stepIDs(run))
}

func TestExecutor_ConcurrentRunsAreIndependent(t *testing.T) {
	executor := newExecutor(t)

	g, err := graph.New(
		[]*models.WorkflowNode{testutil.Trigger(nil), testutil.Node("pause", models.NodeKindWait, map[string]any{"duration": "10ms"}), testutil.Action("a", "echo")},
		[]*models.Edge{testutil.Edge("trigger", "", "pause"), testutil.Edge("pause", "", "a")},
	)
	require.NoError(t, err)

	const runs = 20

	results := make([]*models.Run, runs)

	var wg sync.WaitGroup

	for i := range runs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = executor.Run(context.Background(), RunRequest{WorkflowID: "wf-1", Graph: g, Payload: i})
		}()
	}

	wg.Wait()

	for i, run := range results {
		require.False(t, run.Failed(), run.Error)
		assert.Equal(t, i, run.FinalOutput)
		assert.Len(t, run.Steps, 3)
	}
}

func TestExecutor_PublishesRunEvents(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(discardLogger()))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	completed := make(chan *events.RunCompleted, 1)
	failed := make(chan *events.RunFailed, 1)

	require.NoError(t, bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		completed <- event.(*events.RunCompleted)

		return nil
	}))
	require.NoError(t, bus.Handle(events.RunFailedEvent, func(_ context.Context, event any) error {
		failed <- event.(*events.RunFailed)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	_, set := newCatalog(t)
	executor := NewExecutor(set, bus, nil, discardLogger())

	ok := runGraph(t, executor, []*models.WorkflowNode{testutil.Trigger(nil), testutil.Action("a", "echo")}, []*models.Edge{testutil.Edge("trigger", "", "a")}, "hello")
	bad := runGraph(t, executor,
		[]*models.WorkflowNode{testutil.Trigger(nil), testutil.Node("stop", models.NodeKindStopAndError, map[string]any{"message": "boom"})},
		[]*models.Edge{testutil.Edge("trigger", "", "stop")},
		"hello",
	)

	select {
	case event := <-completed:
		assert.Equal(t, ok.ID, event.RunID)
		assert.Equal(t, 2, event.Steps)
	case <-time.After(2 * time.Second):
		t.Fatal("run.completed not delivered")
	}

	select {
	case event := <-failed:
		assert.Equal(t, bad.ID, event.RunID)
		assert.Equal(t, "stop", event.NodeID)
		assert.Equal(t, "boom", event.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("run.failed not delivered")
	}
}

func TestExecutor_PublishFailureDoesNotFailRun(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1")
	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(e eventbus.Event) bool {
		return e.GetType() == events.RunStartedEvent
	})).Return(errors.New("broker unavailable")).Once()
	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(e eventbus.Event) bool {
		return e.GetType() == events.RunCompletedEvent
	})).Return(nil).Once()

	_, set := newCatalog(t)
	executor := NewExecutor(set, bus, nil, discardLogger())

	run := runGraph(t, executor,
		[]*models.WorkflowNode{testutil.Trigger(nil), testutil.Action("a", "echo")},
		[]*models.Edge{testutil.Edge("trigger", "", "a")},
		"hello",
	)

	require.False(t, run.Failed(), run.Error)
	bus.AssertExpectations(t)
}

func TestRunError(t *testing.T) {
	stop := &NodeExecutionError{NodeID: "s", Kind: models.NodeKindStopAndError, Err: &protocol.StopError{Message: "boom"}}
	assert.Equal(t, "boom", runError(stop))
	assert.True(t, IsStop(stop))

	plain := &NodeExecutionError{NodeID: "a", Kind: models.NodeKindAction, Err: errors.New("kaput")}
	assert.Equal(t, "node a (action): kaput", runError(plain))
	assert.False(t, IsStop(plain))
	assert.Equal(t, "wrapped: boom", runError(fmt.Errorf("wrapped: %w", errors.New("boom"))))
}
