// Package conditional provides the if node: boolean branching onto a true or false port.
package conditional

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
)

var errMissingCondition = errors.New("missing required field 'condition'")

// Node evaluates a condition against its input and passes the input through on
// exactly one of the true or false ports.
type Node struct{}

// New creates the if node.
func New() *Node {
	return &Node{}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:        models.NodeKindIf,
		DisplayName: "If",
		OutputPorts: []string{OutputPortTrue, OutputPortFalse},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"condition": map[string]any{
					"type":        []string{"string", "boolean"},
					"description": "Condition to evaluate. Strings are rendered as templates against the input.",
					"examples": []string{
						`{{ eq .input.json.status "active" }}`,
						`{{ gt .input.json.count 10.0 }}`,
						"true",
					},
				},
			},
			"required": []string{"condition"},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if _, ok := config["condition"]; !ok {
		return errMissingCondition
	}

	return nil
}

// Execute evaluates the condition and routes the input to the true or false port.
func (n *Node) Execute(ctx context.Context, config map[string]any, input any) (models.NodeResult, error) {
	condition, ok := config["condition"]
	if !ok {
		return nil, errMissingCondition
	}

	value := condition

	if expr, isString := condition.(string); isString {
		rendered, err := template.RenderWithContext(expr, protocol.ExecutionFrom(ctx), input)
		if err != nil {
			return nil, fmt.Errorf("condition evaluation failed: %w", err)
		}

		value = rendered
	}

	if IsTruthy(value) {
		return models.On(OutputPortTrue, input), nil
	}

	return models.On(OutputPortFalse, input), nil
}

// IsTruthy converts various types to boolean.
func IsTruthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case int32:
		return v != 0
	case float64:
		return v != 0.0
	case float32:
		return v != 0.0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}
