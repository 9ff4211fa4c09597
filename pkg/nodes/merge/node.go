// Package merge provides the merge node for joining multiple execution paths.
package merge

import (
	"context"
	"fmt"

	"dario.cat/mergo"
	"github.com/dukex/flowline/pkg/models"
)

const (
	ModeAppend = "append"
	ModeObject = "object"
)

// Node combines every payload delivered to it during a run into a single payload.
// The executor hands it the deliveries in edge-declaration order.
type Node struct{}

// New creates the merge node.
func New() *Node {
	return &Node{}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:        models.NodeKindMerge,
		DisplayName: "Merge",
		OutputPorts: []string{models.PortMain},
		FanIn:       true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mode": map[string]any{
					"type":        "string",
					"description": "append concatenates arrays in edge order; object deep-merges object payloads.",
					"default":     ModeAppend,
					"enum":        []string{ModeAppend, ModeObject},
				},
			},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := mode(config)

	return err
}

// Execute combines the deliveries. input is the ordered list of delivered payloads.
func (n *Node) Execute(_ context.Context, config map[string]any, input any) (models.NodeResult, error) {
	m, err := mode(config)
	if err != nil {
		return nil, err
	}

	deliveries, ok := input.([]any)
	if !ok {
		deliveries = []any{input}
	}

	switch m {
	case ModeObject:
		merged, err := mergeObjects(deliveries)
		if err != nil {
			return nil, err
		}

		return models.Main(merged), nil
	default:
		return models.Main(Concat(deliveries)), nil
	}
}

// Concat flattens array payloads and appends scalar or object payloads as single elements.
func Concat(deliveries []any) []any {
	combined := make([]any, 0, len(deliveries))

	for _, d := range deliveries {
		if items, ok := models.AsSlice(d); ok {
			combined = append(combined, items...)

			continue
		}

		combined = append(combined, d)
	}

	return combined
}

func mergeObjects(deliveries []any) (map[string]any, error) {
	merged := make(map[string]any)

	for i, d := range deliveries {
		obj, ok := d.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("object merge: delivery %d is %T, not an object", i, d)
		}

		if err := mergo.Merge(&merged, models.CopyValue(obj).(map[string]any),
			mergo.WithOverride,
			mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("object merge: %w", err)
		}
	}

	return merged, nil
}

func mode(config map[string]any) (string, error) {
	raw, ok := config["mode"]
	if !ok || raw == nil {
		return ModeAppend, nil
	}

	m, _ := raw.(string)

	switch m {
	case ModeAppend, ModeObject:
		return m, nil
	default:
		return "", fmt.Errorf("invalid merge mode: %v (must be '%s' or '%s')", raw, ModeAppend, ModeObject)
	}
}
