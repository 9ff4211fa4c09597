// Package transform provides the transform action, which reshapes its input with a Go template.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

var errMissingExpression = errors.New("missing required field 'expression'")

// Action renders Expression against the (optionally narrowed) input.
type Action struct {
	Input      string
	Expression string
}

// NewAction creates a transform action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	input, _ := config["input"].(string)

	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, errMissingExpression
	}

	if _, err := template.Parse(expression); err != nil {
		return nil, fmt.Errorf("invalid expression template: %w", err)
	}

	return &Action{
		Input:      input,
		Expression: expression,
	}, nil
}

// Execute applies the expression.
func (a *Action) Execute(ctx context.Context, input any, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "transform")
	logger.DebugContext(ctx, "Executing transform action")

	exec := protocol.ExecutionFrom(ctx)

	data, err := a.extract(exec, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get input data: %w", err)
	}

	result, err := template.RenderWithContext(a.Expression, exec, data)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return result, nil
}

func (a *Action) extract(exec models.ExecutionContext, input any) (any, error) {
	if a.Input == "" {
		return input, nil
	}

	return template.RenderWithContext(a.Input, exec, input)
}
