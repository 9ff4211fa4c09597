// Package switchnode provides the switch node: multi-way branching on an ordered case list.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

const OutputPortDefault = "default"

var errMissingValue = errors.New("missing required field 'value'")

// Case maps a discriminant value to an output port.
type Case struct {
	Value  string `json:"value"`
	Output string `json:"output"`
}

// Node routes its input to the port of the first case matching the discriminant,
// or to the default port.
type Node struct{}

// New creates the switch node.
func New() *Node {
	return &Node{}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:         models.NodeKindSwitch,
		DisplayName:  "Switch",
		OutputPorts:  []string{OutputPortDefault},
		DynamicPorts: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{
					"description": "Discriminant. Strings are rendered as templates against the input.",
					"examples":    []string{"{{ .input.json.type }}"},
				},
				"cases": map[string]any{
					"type":        "array",
					"description": "Ordered cases. Either plain values (port named after the value) or {value, output} objects.",
					"items": map[string]any{
						"oneOf": []any{
							map[string]any{"type": []string{"string", "number", "boolean"}},
							map[string]any{
								"type": "object",
								"properties": map[string]any{
									"value":  map[string]any{"type": []string{"string", "number", "boolean"}},
									"output": map[string]any{"type": "string", "minLength": 1},
								},
								"required": []string{"value"},
							},
						},
					},
				},
			},
			"required": []string{"value"},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if _, ok := config["value"]; !ok {
		return errMissingValue
	}

	_, err := ParseCases(config)

	return err
}

// OutputPorts returns the case ports followed by the default port.
func (n *Node) OutputPorts(config map[string]any) ([]string, error) {
	cases, err := ParseCases(config)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{OutputPortDefault: true}
	ports := make([]string, 0, len(cases)+1)

	for _, c := range cases {
		if seen[c.Output] {
			continue
		}

		seen[c.Output] = true
		ports = append(ports, c.Output)
	}

	return append(ports, OutputPortDefault), nil
}

// Execute evaluates the discriminant and emits the input on the matching port.
func (n *Node) Execute(ctx context.Context, config map[string]any, input any) (models.NodeResult, error) {
	raw, ok := config["value"]
	if !ok {
		return nil, errMissingValue
	}

	cases, err := ParseCases(config)
	if err != nil {
		return nil, err
	}

	value := raw

	if expr, isString := raw.(string); isString {
		value, err = template.RenderWithContext(expr, protocol.ExecutionFrom(ctx), input)
		if err != nil {
			return nil, fmt.Errorf("value evaluation failed: %w", err)
		}
	}

	discriminant := fmt.Sprintf("%v", value)

	for _, c := range cases {
		if c.Value == discriminant {
			return models.On(c.Output, input), nil
		}
	}

	return models.On(OutputPortDefault, input), nil
}

// ParseCases reads the ordered case list from config.
func ParseCases(config map[string]any) ([]Case, error) {
	raw, exists := config["cases"]
	if !exists || raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New("'cases' must be an array")
	}

	cases := make([]Case, 0, len(list))

	for i, item := range list {
		switch v := item.(type) {
		case map[string]any:
			value, ok := v["value"]
			if !ok {
				return nil, fmt.Errorf("case %d missing 'value'", i)
			}

			c := Case{Value: fmt.Sprintf("%v", value)}
			c.Output, _ = v["output"].(string)

			if c.Output == "" {
				c.Output = c.Value
			}

			cases = append(cases, c)
		case string, float64, int, bool:
			s := fmt.Sprintf("%v", v)
			cases = append(cases, Case{Value: s, Output: s})
		default:
			return nil, fmt.Errorf("case %d must be a value or an object", i)
		}
	}

	return cases, nil
}
