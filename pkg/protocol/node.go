// Package protocol defines the interfaces and contracts for pluggable nodes, actions and trigger adapters.
package protocol

import (
	"context"

	"github.com/dukex/flowline/pkg/models"
)

// Node is the uniform contract every node kind implements.
type Node interface {
	// Describe returns the kind metadata, including its output ports and config schema.
	Describe() models.NodeDescription

	// Execute runs the node against one input. Failures are returned as errors and are never retried.
	Execute(ctx context.Context, config map[string]any, input any) (models.NodeResult, error)
}

// PortResolver is implemented by nodes whose output ports depend on their configuration.
type PortResolver interface {
	OutputPorts(config map[string]any) ([]string, error)
}

// ConfigValidator is implemented by nodes that check configuration beyond the JSON schema.
type ConfigValidator interface {
	Validate(config map[string]any) error
}

// StopError is returned by a node to terminate the run with a user-supplied message.
type StopError struct {
	Message string
}

func (e *StopError) Error() string {
	return e.Message
}

type executionKey struct{}

// WithExecution attaches execution metadata to ctx.
func WithExecution(ctx context.Context, exec models.ExecutionContext) context.Context {
	return context.WithValue(ctx, executionKey{}, exec)
}

// ExecutionFrom returns the execution metadata attached to ctx, if any.
func ExecutionFrom(ctx context.Context) models.ExecutionContext {
	exec, _ := ctx.Value(executionKey{}).(models.ExecutionContext)

	return exec
}
