// Package stoperror provides the stopAndError node, which aborts the run with a message.
package stoperror

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

var errMissingMessage = errors.New("missing required field 'message'")

// Node never emits. It always returns a *protocol.StopError.
type Node struct{}

// New creates the stopAndError node.
func New() *Node {
	return &Node{}
}

// Describe returns the node metadata. The main port never fires.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:        models.NodeKindStopAndError,
		DisplayName: "Stop and Error",
		OutputPorts: []string{models.PortMain},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Error message recorded on the run. Rendered as a template.",
					"minLength":   1,
				},
			},
			"required": []string{"message"},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if msg, ok := config["message"].(string); !ok || msg == "" {
		return errMissingMessage
	}

	return nil
}

// Execute stops the run.
func (n *Node) Execute(ctx context.Context, config map[string]any, input any) (models.NodeResult, error) {
	raw, ok := config["message"].(string)
	if !ok || raw == "" {
		return nil, errMissingMessage
	}

	rendered, err := template.RenderWithContext(raw, protocol.ExecutionFrom(ctx), input)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	return nil, &protocol.StopError{Message: fmt.Sprint(rendered)}
}
