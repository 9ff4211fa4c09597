// Package loop provides the loop node, which splits its input into batches.
package loop

import (
	"context"
	"fmt"
	"math"

	"github.com/dukex/flowline/pkg/models"
)

const (
	OutputPortLoop = models.PortLoop
	OutputPortDone = models.PortDone

	DefaultBatchSize = 1
)

// Node emits one Loop payload per batch followed by a single Done payload
// carrying every batch.
type Node struct{}

// New creates the loop node.
func New() *Node {
	return &Node{}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:          models.NodeKindLoop,
		DisplayName:   "Loop Over Items",
		OutputPorts:   []string{OutputPortLoop, OutputPortDone},
		IterationPort: OutputPortLoop,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"batchSize": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"default": DefaultBatchSize,
				},
			},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := BatchSize(config)

	return err
}

// Execute splits input into batches.
func (n *Node) Execute(_ context.Context, config map[string]any, input any) (models.NodeResult, error) {
	size, err := BatchSize(config)
	if err != nil {
		return nil, err
	}

	items, ok := models.AsSlice(input)
	if !ok {
		items = []any{input}
	}

	batches := Split(items, size)

	result := make(models.NodeResult, 0, len(batches)+1)
	for _, batch := range batches {
		result = append(result, models.Emission{Port: OutputPortLoop, Payload: batch})
	}

	done := make([]any, len(batches))
	for i, batch := range batches {
		done[i] = batch
	}

	return append(result, models.Emission{Port: OutputPortDone, Payload: done}), nil
}

// Split cuts items into consecutive batches of size elements. The last batch may be shorter.
func Split(items []any, size int) [][]any {
	if size < 1 {
		size = DefaultBatchSize
	}

	batches := make([][]any, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := make([]any, end-start)
		copy(batch, items[start:end])
		batches = append(batches, batch)
	}

	return batches
}

// BatchSize reads batchSize from config. Missing values default to 1.
func BatchSize(config map[string]any) (int, error) {
	raw, ok := config["batchSize"]
	if !ok || raw == nil {
		return DefaultBatchSize, nil
	}

	var size int

	switch v := raw.(type) {
	case int:
		size = v
	case int64:
		size = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("batchSize must be an integer, got %v", v)
		}

		size = int(v)
	default:
		return 0, fmt.Errorf("batchSize must be a number, got %T", raw)
	}

	if size < 1 {
		return 0, fmt.Errorf("batchSize must be at least 1, got %d", size)
	}

	return size, nil
}
