// Package action provides the action node, which runs a registered action operation.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
)

var errMissingOperation = errors.New("missing required field 'operation'")

// Creator builds configured actions by operation id.
type Creator interface {
	CreateAction(operation string, config map[string]any) (protocol.Action, error)
	HasAction(operation string) bool
}

// Node delegates to the action registered under config["operation"].
type Node struct {
	actions Creator
	logger  *slog.Logger
}

// New creates the action node.
func New(actions Creator, logger *slog.Logger) *Node {
	return &Node{
		actions: actions,
		logger:  logger.With("module", "action_node"),
	}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:        models.NodeKindAction,
		DisplayName: "Action",
		OutputPorts: []string{models.PortMain},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"description": "Registered action id, such as log, transform or httpRequest.",
					"minLength":   1,
				},
			},
			"required": []string{"operation"},
		},
	}
}

// Validate checks that the operation exists and accepts the configuration.
func (n *Node) Validate(config map[string]any) error {
	op, err := Operation(config)
	if err != nil {
		return err
	}

	if !n.actions.HasAction(op) {
		return fmt.Errorf("action operation '%s' not registered", op)
	}

	if _, err := n.actions.CreateAction(op, config); err != nil {
		return fmt.Errorf("invalid configuration for operation '%s': %w", op, err)
	}

	return nil
}

// Execute creates the action and runs it against input.
func (n *Node) Execute(ctx context.Context, config map[string]any, input any) (models.NodeResult, error) {
	op, err := Operation(config)
	if err != nil {
		return nil, err
	}

	act, err := n.actions.CreateAction(op, config)
	if err != nil {
		return nil, err
	}

	exec := protocol.ExecutionFrom(ctx)
	logger := n.logger.With(
		"operation", op,
		"workflow_id", exec.WorkflowID,
		"run_id", exec.RunID,
		"node_id", exec.NodeID,
	)

	output, err := act.Execute(ctx, input, logger)
	if err != nil {
		return nil, err
	}

	return models.Main(output), nil
}

// Operation returns the configured operation id.
func Operation(config map[string]any) (string, error) {
	op, ok := config["operation"].(string)
	if !ok || op == "" {
		return "", errMissingOperation
	}

	return op, nil
}
