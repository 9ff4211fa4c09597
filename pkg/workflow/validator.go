package workflow

import (
	"slices"

	"github.com/dukex/flowline/pkg/graph"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/nodes"
	"github.com/dukex/flowline/pkg/registry"
)

// Validator checks a workflow beyond its structure: node kinds, configuration and ports.
type Validator struct {
	nodes *nodes.Set
}

// NewValidator creates a validator over the given node implementations.
func NewValidator(set *nodes.Set) *Validator {
	return &Validator{nodes: set}
}

// Validate builds the graph of wf and checks every node. All failures are InvalidGraph errors.
func (v *Validator) Validate(wf *models.Workflow) (*graph.Graph, error) {
	if wf == nil {
		return nil, &graph.Error{Reason: "workflow is nil"}
	}

	if wf.ID == "" {
		return nil, &graph.Error{Reason: "workflow id is required"}
	}

	g, err := graph.New(wf.Nodes, wf.Edges)
	if err != nil {
		return nil, err
	}

	for _, node := range g.Nodes() {
		impl, ok := v.nodes.Get(node.Kind)
		if !ok {
			return nil, &graph.Error{NodeID: node.ID, Reason: "unknown node kind '" + string(node.Kind) + "'"}
		}

		config := node.Config
		if config == nil {
			config = map[string]any{}
		}

		if schema := impl.Describe().Schema; schema != nil {
			if err := registry.ValidateSchema(schema, config); err != nil {
				return nil, &graph.Error{NodeID: node.ID, Reason: err.Error()}
			}
		}

		if err := v.nodes.Validate(node); err != nil {
			return nil, &graph.Error{NodeID: node.ID, Reason: err.Error()}
		}

		ports, err := v.nodes.OutputPorts(node)
		if err != nil {
			return nil, &graph.Error{NodeID: node.ID, Reason: err.Error()}
		}

		for _, edge := range g.AllOutgoingEdges(node.ID) {
			if !slices.Contains(ports, edge.Port()) {
				return nil, &graph.Error{
					NodeID: node.ID,
					Reason: "output port '" + edge.Port() + "' is not offered by kind '" + string(node.Kind) + "'",
				}
			}
		}
	}

	return g, nil
}
