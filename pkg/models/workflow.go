// Package models defines the core domain models for node-graph workflow automation.
package models

import "time"

// WorkflowStatus represents the registration lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusUnregistered WorkflowStatus = "unregistered"
	WorkflowStatusInactive     WorkflowStatus = "registered-inactive"
	WorkflowStatusActive       WorkflowStatus = "registered-active"
)

// Workflow is a directed graph of nodes with exactly one trigger.
type Workflow struct {
	ID           string            `json:"id"                      validate:"required"`
	Name         string            `json:"name,omitempty"`
	Nodes        []*WorkflowNode   `json:"nodes"                   validate:"required,min=1,dive"`
	Edges        []*Edge           `json:"edges"                   validate:"dive"`
	Status       WorkflowStatus    `json:"status"`
	Credentials  map[string]string `json:"-"`
	RegisteredAt time.Time         `json:"registered_at,omitzero"`
}

// Clone returns a deep copy of the workflow so that a run can never observe later mutations.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := &Workflow{
		ID:           w.ID,
		Name:         w.Name,
		Status:       w.Status,
		RegisteredAt: w.RegisteredAt,
		Nodes:        make([]*WorkflowNode, 0, len(w.Nodes)),
		Edges:        make([]*Edge, 0, len(w.Edges)),
	}

	for _, node := range w.Nodes {
		clone.Nodes = append(clone.Nodes, node.Clone())
	}

	for _, edge := range w.Edges {
		if edge == nil {
			clone.Edges = append(clone.Edges, nil)

			continue
		}

		e := *edge
		clone.Edges = append(clone.Edges, &e)
	}

	if w.Credentials != nil {
		clone.Credentials = make(map[string]string, len(w.Credentials))
		for k, v := range w.Credentials {
			clone.Credentials[k] = v
		}
	}

	return clone
}

// Edge carries payloads from one node's output port to another node's input port.
type Edge struct {
	SourceNodeID string `json:"source"                validate:"required"`
	SourcePort   string `json:"source_port,omitempty"`
	TargetNodeID string `json:"target"                validate:"required"`
	TargetPort   string `json:"target_port,omitempty"`
}

// Port returns the source port, defaulting to main.
func (e *Edge) Port() string {
	if e.SourcePort == "" {
		return PortMain
	}

	return e.SourcePort
}
