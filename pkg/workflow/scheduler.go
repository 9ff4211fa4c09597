package workflow

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/dukex/flowline/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// runState is the mutable bookkeeping of one run. It is owned by a single goroutine.
type runState struct {
	executor    *Executor
	req         RunRequest
	run         *models.Run
	logger      *slog.Logger
	finalOutput any
}

type delivery struct {
	edge    int
	payload any
}

// scope is a topological ready queue over a set of nodes. A node becomes ready once
// every predecessor inside the scope has been processed, so a node whose upstream
// branches did not fire is still reached, finds no deliveries and is skipped.
// gates maps a node to the loops that must wait for it because it feeds a fan-in
// node inside their body.
type scope struct {
	members map[string]bool
	pending map[string]int
	inbox   map[string][]delivery
	ready   []string
	gates   map[string][]string
}

func (s *runState) newScope(members map[string]bool) *scope {
	g := s.req.Graph
	sc := &scope{
		members: members,
		pending: make(map[string]int, len(members)),
		inbox:   make(map[string][]delivery),
		gates:   make(map[string][]string),
	}

	for id := range members {
		for _, pred := range g.Predecessors(id) {
			if members[pred] {
				sc.pending[id]++
			}
		}
	}

	for _, node := range g.Nodes() {
		if !members[node.ID] {
			continue
		}

		for _, feeder := range s.bodyFeeders(members, node.ID) {
			sc.gates[feeder] = append(sc.gates[feeder], node.ID)
			sc.pending[node.ID]++
		}
	}

	for _, node := range g.Nodes() {
		if members[node.ID] && sc.pending[node.ID] == 0 {
			sc.ready = append(sc.ready, node.ID)
		}
	}

	return sc
}

// rootScope covers the trigger and everything reachable from it.
func (s *runState) rootScope() *scope {
	trigger := s.req.Graph.Trigger()

	members := s.req.Graph.ReachableFromNode(trigger.ID)
	members[trigger.ID] = true

	sc := s.newScope(members)
	sc.inbox[trigger.ID] = []delivery{{payload: s.req.Payload}}

	return sc
}

// iterationScope covers the nodes reachable from one iteration port emission.
// Fan-in nodes of the body start with the deliveries carried in from the parent.
// Other edges entering the body from outside deliver nothing during the iteration.
func (s *runState) iterationScope(parent *scope, nodeID string, emission models.Emission, carried map[string][]delivery) *scope {
	sc := s.newScope(s.body(parent.members, nodeID, emission.Port))

	for id, deliveries := range carried {
		for _, d := range deliveries {
			sc.inbox[id] = append(sc.inbox[id], delivery{edge: d.edge, payload: models.CopyValue(d.payload)})
		}
	}

	s.deliver(sc, nodeID, emission)

	return sc
}

// body returns the members reachable from nodeID's port.
func (s *runState) body(members map[string]bool, nodeID, port string) map[string]bool {
	body := s.req.Graph.ReachableFromPort(nodeID, port)
	for id := range body {
		if !members[id] {
			delete(body, id)
		}
	}

	return body
}

// bodyFeeders returns the members outside loopID's body that deliver to a fan-in
// node inside it and are not downstream of the loop.
func (s *runState) bodyFeeders(members map[string]bool, loopID string) []string {
	g := s.req.Graph

	port := s.description(loopID).IterationPort
	if port == "" {
		return nil
	}

	body := s.body(members, loopID, port)
	downstream := g.ReachableFromNode(loopID)
	seen := make(map[string]bool)

	var feeders []string

	for _, node := range g.Nodes() {
		if !body[node.ID] || !s.description(node.ID).FanIn {
			continue
		}

		for _, pred := range g.Predecessors(node.ID) {
			if !members[pred] || pred == loopID || downstream[pred] || seen[pred] {
				continue
			}

			seen[pred] = true
			feeders = append(feeders, pred)
		}
	}

	return feeders
}

// takeCarried moves the pending deliveries of the fan-in nodes in nodeID's body
// out of sc so every iteration can start from them.
func (s *runState) takeCarried(sc *scope, nodeID, port string) map[string][]delivery {
	carried := make(map[string][]delivery)

	for id := range s.body(sc.members, nodeID, port) {
		if deliveries := sc.inbox[id]; len(deliveries) > 0 && s.description(id).FanIn {
			carried[id] = deliveries
			delete(sc.inbox, id)
		}
	}

	return carried
}

func (s *runState) description(id string) models.NodeDescription {
	node, ok := s.req.Graph.Node(id)
	if !ok {
		return models.NodeDescription{}
	}

	impl, ok := s.executor.nodes.Get(node.Kind)
	if !ok {
		return models.NodeDescription{}
	}

	return impl.Describe()
}

func (s *runState) drain(ctx context.Context, sc *scope) error {
	g := s.req.Graph

	for len(sc.ready) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrRunCancelled, err)
		}

		id := sc.ready[0]
		sc.ready = sc.ready[1:]

		if err := s.process(ctx, sc, id); err != nil {
			return err
		}

		for _, succ := range g.Successors(id) {
			if !sc.members[succ] {
				continue
			}

			sc.pending[succ]--
			if sc.pending[succ] == 0 {
				sc.ready = append(sc.ready, succ)
			}
		}

		for _, gated := range sc.gates[id] {
			sc.pending[gated]--
			if sc.pending[gated] == 0 {
				sc.ready = append(sc.ready, gated)
			}
		}
	}

	return nil
}

func (s *runState) process(ctx context.Context, sc *scope, id string) error {
	deliveries := sc.inbox[id]
	delete(sc.inbox, id)

	if len(deliveries) == 0 {
		s.logger.DebugContext(ctx, "Skipping node on a path that did not fire", "node_id", id)

		return nil
	}

	node, _ := s.req.Graph.Node(id)

	impl, ok := s.executor.nodes.Get(node.Kind)
	if !ok {
		return &NodeExecutionError{NodeID: id, Kind: node.Kind, Err: fmt.Errorf("unknown node kind '%s'", node.Kind)}
	}

	desc := impl.Describe()

	if desc.FanIn {
		slices.SortStableFunc(deliveries, func(a, b delivery) int {
			return cmp.Compare(a.edge, b.edge)
		})

		payloads := make([]any, len(deliveries))
		for i, d := range deliveries {
			payloads[i] = d.payload
		}

		return s.executeAndRoute(ctx, sc, node, impl, desc, payloads)
	}

	for _, d := range deliveries {
		if err := s.executeAndRoute(ctx, sc, node, impl, desc, d.payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *runState) executeAndRoute(
	ctx context.Context,
	sc *scope,
	node *models.WorkflowNode,
	impl protocol.Node,
	desc models.NodeDescription,
	input any,
) error {
	result, err := s.execute(ctx, node, impl, input)
	if err != nil {
		return err
	}

	var carried map[string][]delivery

	for _, emission := range result {
		if desc.IterationPort != "" && emission.Port == desc.IterationPort {
			if carried == nil {
				carried = s.takeCarried(sc, node.ID, emission.Port)
			}

			if err := s.drain(ctx, s.iterationScope(sc, node.ID, emission, carried)); err != nil {
				return err
			}

			continue
		}

		s.deliver(sc, node.ID, emission)
	}

	return nil
}

func (s *runState) deliver(sc *scope, nodeID string, emission models.Emission) {
	g := s.req.Graph

	for _, edge := range g.OutgoingEdges(nodeID, emission.Port) {
		if g.IsLoopBack(edge) || !sc.members[edge.TargetNodeID] {
			continue
		}

		sc.inbox[edge.TargetNodeID] = append(sc.inbox[edge.TargetNodeID], delivery{
			edge:    slices.Index(g.IncomingEdges(edge.TargetNodeID), edge),
			payload: models.CopyValue(emission.Payload),
		})
	}
}

func (s *runState) execute(ctx context.Context, node *models.WorkflowNode, impl protocol.Node, input any) (models.NodeResult, error) {
	e := s.executor

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.WorkflowIDKey, s.req.WorkflowID),
		attribute.String(otelhelper.RunIDKey, s.req.RunID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, string(node.Kind)),
	)
	defer span.End()

	step := models.StepResult{
		NodeID:    node.ID,
		Kind:      node.Kind,
		Input:     input,
		StartedAt: e.now(),
	}

	ctx = protocol.WithExecution(ctx, models.ExecutionContext{
		RunID:       s.req.RunID,
		WorkflowID:  s.req.WorkflowID,
		NodeID:      node.ID,
		TriggerData: s.req.Payload,
		Credentials: s.req.Credentials,
	})

	s.logger.DebugContext(ctx, "Executing node", "node_id", node.ID, "node_kind", node.Kind)

	result, err := impl.Execute(ctx, node.Config, input)

	step.FinishedAt = e.now()

	if err != nil {
		step.Error = runError(err)
		s.run.Steps = append(s.run.Steps, step)
		otelhelper.SetError(span, err)

		return nil, &NodeExecutionError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	step.Output = result
	s.run.Steps = append(s.run.Steps, step)
	s.finalOutput = result.Last()

	return result, nil
}
