// Package testutil provides workflow builders for tests.
package testutil

import (
	"github.com/dukex/flowline/pkg/models"
)

// TriggerID is the id of the trigger node built by Trigger.
const TriggerID = "trigger"

// Node creates a WorkflowNode. Overrides run in order after the defaults are set.
func Node(id string, kind models.NodeKind, config map[string]any, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:     id,
		Kind:   kind,
		Config: config,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// Trigger creates the trigger node of a workflow.
func Trigger(config map[string]any, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	return Node(TriggerID, models.NodeKindTrigger, config, overrides...)
}

// Action creates an action node running operation. Extra config keys are merged in.
func Action(id, operation string, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	return Node(id, models.NodeKindAction, map[string]any{"operation": operation}, overrides...)
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		if n.Config == nil {
			n.Config = make(map[string]any, len(config))
		}

		for k, v := range config {
			n.Config[k] = v
		}
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// Edge connects source's port to target. An empty port means main.
func Edge(source, port, target string) *models.Edge {
	return &models.Edge{SourceNodeID: source, SourcePort: port, TargetNodeID: target}
}

// Workflow assembles a workflow definition.
func Workflow(id string, nodes []*models.WorkflowNode, edges []*models.Edge) *models.Workflow {
	return &models.Workflow{
		ID:    id,
		Name:  id,
		Nodes: nodes,
		Edges: edges,
	}
}
