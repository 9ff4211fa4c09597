// Package graph provides the in-memory graph model of a workflow: structural validation
// and the traversal primitives used by the executor.
package graph

import (
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
)

// ErrInvalidGraph is the sentinel wrapped by every structural validation failure.
var ErrInvalidGraph = errors.New("invalid graph")

// Error describes why a graph was rejected.
type Error struct {
	NodeID string
	Reason string
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid graph: node %s: %s", e.NodeID, e.Reason)
	}

	return "invalid graph: " + e.Reason
}

func (e *Error) Unwrap() error {
	return ErrInvalidGraph
}

func invalid(nodeID, format string, args ...any) error {
	return &Error{NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidGraph reports whether err is a structural validation failure.
func IsInvalidGraph(err error) bool {
	return errors.Is(err, ErrInvalidGraph)
}

// Graph is an immutable, validated view over a workflow's nodes and edges.
type Graph struct {
	nodes    map[string]*models.WorkflowNode
	order    []string
	index    map[string]int
	edges    []*models.Edge
	outgoing map[string][]*models.Edge
	incoming map[string][]*models.Edge
	back     map[*models.Edge]bool
	trigger  string
}

// New validates the structural invariants and builds the adjacency indexes:
// unique non-empty node ids, exactly one trigger, no dangling edge endpoints,
// no edges into the trigger and no cycles reachable from the trigger. Edges that
// return into a loop node from its own Loop body close an iteration and are not cycles.
func New(nodes []*models.WorkflowNode, edges []*models.Edge) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*models.WorkflowNode, len(nodes)),
		order:    make([]string, 0, len(nodes)),
		index:    make(map[string]int, len(nodes)),
		edges:    make([]*models.Edge, 0, len(edges)),
		outgoing: make(map[string][]*models.Edge),
		incoming: make(map[string][]*models.Edge),
	}

	triggers := make([]string, 0, 1)

	for i, node := range nodes {
		if node == nil {
			return nil, invalid("", "node at position %d is nil", i)
		}

		if node.ID == "" {
			return nil, invalid("", "node at position %d has an empty id", i)
		}

		if node.Kind == "" {
			return nil, invalid(node.ID, "kind is required")
		}

		if _, exists := g.nodes[node.ID]; exists {
			return nil, invalid(node.ID, "duplicate node id")
		}

		g.nodes[node.ID] = node
		g.index[node.ID] = len(g.order)
		g.order = append(g.order, node.ID)

		if node.IsTrigger() {
			triggers = append(triggers, node.ID)
		}
	}

	switch len(triggers) {
	case 0:
		return nil, invalid("", "workflow has no trigger node")
	case 1:
		g.trigger = triggers[0]
	default:
		return nil, invalid("", "workflow has %d trigger nodes, exactly one is required", len(triggers))
	}

	for i, edge := range edges {
		if edge == nil {
			return nil, invalid("", "edge at position %d is nil", i)
		}

		if _, ok := g.nodes[edge.SourceNodeID]; !ok {
			return nil, invalid("", "edge %d references unknown source node %q", i, edge.SourceNodeID)
		}

		if _, ok := g.nodes[edge.TargetNodeID]; !ok {
			return nil, invalid("", "edge %d references unknown target node %q", i, edge.TargetNodeID)
		}

		if edge.TargetNodeID == g.trigger {
			return nil, invalid(g.trigger, "trigger node cannot have incoming edges")
		}

		g.edges = append(g.edges, edge)
		g.outgoing[edge.SourceNodeID] = append(g.outgoing[edge.SourceNodeID], edge)
		g.incoming[edge.TargetNodeID] = append(g.incoming[edge.TargetNodeID], edge)
	}

	g.back = g.loopBackEdges()

	if cyclic := g.findCycle(); cyclic != "" {
		return nil, invalid(cyclic, "cycle detected reachable from the trigger")
	}

	return g, nil
}

// loopBackEdges finds the edges entering a loop node from a node reachable through
// that loop's Loop port without passing through the loop itself.
func (g *Graph) loopBackEdges() map[*models.Edge]bool {
	back := make(map[*models.Edge]bool)

	for _, id := range g.order {
		if g.nodes[id].Kind != models.NodeKindLoop {
			continue
		}

		body := g.walk(g.OutgoingEdges(id, models.PortLoop), id)

		for _, edge := range g.incoming[id] {
			if body[edge.SourceNodeID] || (edge.SourceNodeID == id && edge.Port() == models.PortLoop) {
				back[edge] = true
			}
		}
	}

	return back
}

// walk follows every edge from start without entering stop.
func (g *Graph) walk(start []*models.Edge, stop string) map[string]bool {
	seen := make(map[string]bool)
	stack := make([]string, 0, len(start))

	for _, edge := range start {
		stack = append(stack, edge.TargetNodeID)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == stop || seen[id] {
			continue
		}

		seen[id] = true

		for _, edge := range g.outgoing[id] {
			stack = append(stack, edge.TargetNodeID)
		}
	}

	return seen
}

// IsLoopBack reports whether edge returns into a loop node from its Loop body.
func (g *Graph) IsLoopBack(edge *models.Edge) bool {
	return g.back[edge]
}

// findCycle runs Kahn's algorithm over the nodes reachable from the trigger and
// returns a node left unprocessed, which can only happen on a cycle.
func (g *Graph) findCycle() string {
	reachable := g.ReachableFromNode(g.trigger)
	reachable[g.trigger] = true

	indeg := make(map[string]int, len(reachable))
	for id := range reachable {
		indeg[id] = 0
	}

	for id := range reachable {
		for _, succ := range g.Successors(id) {
			indeg[succ]++
		}
	}

	queue := []string{g.trigger}
	processed := 0

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		processed++

		for _, succ := range g.Successors(v) {
			indeg[succ]--
			if indeg[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if processed == len(reachable) {
		return ""
	}

	for _, id := range g.order {
		if reachable[id] && indeg[id] > 0 {
			return id
		}
	}

	return ""
}

// Trigger returns the single trigger node.
func (g *Graph) Trigger() *models.WorkflowNode {
	return g.nodes[g.trigger]
}

// Node looks a node up by id.
func (g *Graph) Node(id string) (*models.WorkflowNode, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []*models.WorkflowNode {
	nodes := make([]*models.WorkflowNode, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}

	return nodes
}

// Edges returns every edge in declaration order.
func (g *Graph) Edges() []*models.Edge {
	return g.edges
}

// Position returns the declaration index of a node, or -1.
func (g *Graph) Position(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}

	return -1
}

// OutgoingEdges returns the edges leaving nodeID on port, in declaration order.
func (g *Graph) OutgoingEdges(nodeID, port string) []*models.Edge {
	edges := make([]*models.Edge, 0)

	for _, edge := range g.outgoing[nodeID] {
		if edge.Port() == port {
			edges = append(edges, edge)
		}
	}

	return edges
}

// AllOutgoingEdges returns every edge leaving nodeID, in declaration order.
func (g *Graph) AllOutgoingEdges(nodeID string) []*models.Edge {
	return g.outgoing[nodeID]
}

// IncomingEdges returns the edges entering nodeID, in declaration order.
func (g *Graph) IncomingEdges(nodeID string) []*models.Edge {
	return g.incoming[nodeID]
}

// Successors returns the distinct targets of nodeID's outgoing edges, in edge order.
// Loop back edges are left out.
func (g *Graph) Successors(nodeID string) []string {
	seen := make(map[string]bool)
	succ := make([]string, 0, len(g.outgoing[nodeID]))

	for _, edge := range g.outgoing[nodeID] {
		if g.back[edge] || seen[edge.TargetNodeID] {
			continue
		}

		seen[edge.TargetNodeID] = true
		succ = append(succ, edge.TargetNodeID)
	}

	return succ
}

// Predecessors returns the distinct sources of nodeID's incoming edges, in edge order.
// Loop back edges are left out.
func (g *Graph) Predecessors(nodeID string) []string {
	seen := make(map[string]bool)
	pred := make([]string, 0, len(g.incoming[nodeID]))

	for _, edge := range g.incoming[nodeID] {
		if g.back[edge] || seen[edge.SourceNodeID] {
			continue
		}

		seen[edge.SourceNodeID] = true
		pred = append(pred, edge.SourceNodeID)
	}

	return pred
}

// ReachableFromNode returns the nodes reachable through any outgoing edge of nodeID.
// nodeID itself is only included when it lies on a cycle.
func (g *Graph) ReachableFromNode(nodeID string) map[string]bool {
	return g.reachable(g.outgoing[nodeID])
}

// ReachableFromPort returns the nodes reachable through the edges leaving nodeID on port.
// Loop back edges are not followed, so a loop's Loop port never reaches the loop itself.
func (g *Graph) ReachableFromPort(nodeID, port string) map[string]bool {
	return g.reachable(g.OutgoingEdges(nodeID, port))
}

func (g *Graph) reachable(start []*models.Edge) map[string]bool {
	seen := make(map[string]bool)
	stack := make([]string, 0, len(start))

	for _, edge := range start {
		if !g.back[edge] {
			stack = append(stack, edge.TargetNodeID)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[id] {
			continue
		}

		seen[id] = true

		for _, succ := range g.Successors(id) {
			if !seen[succ] {
				stack = append(stack, succ)
			}
		}
	}

	return seen
}
