// Package wait provides the wait node, which delays a run for a duration,
// until a point in time or until a condition holds.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/nodes/conditional"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

const (
	DefaultPollInterval = time.Second
	DefaultTimeout      = 5 * time.Minute
)

var (
	ErrNoWaitMode = errors.New("wait requires one of 'duration', 'until' or 'condition'")
	ErrTimeout    = errors.New("wait condition timed out")
)

// Node pauses the calling run only. Other runs keep executing on their own goroutines.
type Node struct {
	now func() time.Time
}

// New creates the wait node.
func New() *Node {
	return &Node{now: time.Now}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:        models.NodeKindWait,
		DisplayName: "Wait",
		OutputPorts: []string{models.PortMain},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration": map[string]any{
					"type":        []string{"string", "number"},
					"description": "Go duration string (\"1m30s\") or number of seconds.",
				},
				"until": map[string]any{
					"type":        "string",
					"description": "RFC3339 timestamp to resume at. Rendered as a template.",
				},
				"condition": map[string]any{
					"type":        "string",
					"description": "Template evaluated every pollInterval until truthy.",
				},
				"pollInterval": map[string]any{"type": []string{"string", "number"}},
				"timeout":      map[string]any{"type": []string{"string", "number"}},
			},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	switch {
	case config["duration"] != nil:
		_, err := parseDuration(config["duration"])

		return err
	case config["until"] != nil:
		if _, ok := config["until"].(string); !ok {
			return fmt.Errorf("until must be a string, got %T", config["until"])
		}

		return nil
	case config["condition"] != nil:
		if _, err := optionalDuration(config, "pollInterval", DefaultPollInterval); err != nil {
			return err
		}

		_, err := optionalDuration(config, "timeout", DefaultTimeout)

		return err
	default:
		return ErrNoWaitMode
	}
}

// Execute blocks until the configured moment and then passes the input through on main.
func (n *Node) Execute(ctx context.Context, config map[string]any, input any) (models.NodeResult, error) {
	exec := protocol.ExecutionFrom(ctx)

	switch {
	case config["duration"] != nil:
		d, err := parseDuration(config["duration"])
		if err != nil {
			return nil, err
		}

		if err := sleep(ctx, d); err != nil {
			return nil, err
		}
	case config["until"] != nil:
		raw, _ := config["until"].(string)

		rendered, err := template.RenderWithContext(raw, exec, input)
		if err != nil {
			return nil, fmt.Errorf("failed to render until: %w", err)
		}

		at, err := time.Parse(time.RFC3339, fmt.Sprint(rendered))
		if err != nil {
			return nil, fmt.Errorf("until must be an RFC3339 timestamp: %w", err)
		}

		if err := sleep(ctx, at.Sub(n.now())); err != nil {
			return nil, err
		}
	case config["condition"] != nil:
		if err := n.poll(ctx, config, exec, input); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoWaitMode
	}

	return models.Main(input), nil
}

func (n *Node) poll(ctx context.Context, config map[string]any, exec models.ExecutionContext, input any) error {
	interval, err := optionalDuration(config, "pollInterval", DefaultPollInterval)
	if err != nil {
		return err
	}

	timeout, err := optionalDuration(config, "timeout", DefaultTimeout)
	if err != nil {
		return err
	}

	expr := fmt.Sprint(config["condition"])
	deadline := n.now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		value, err := template.RenderWithContext(expr, exec, input)
		if err != nil {
			return fmt.Errorf("condition evaluation failed: %w", err)
		}

		if conditional.IsTruthy(value) {
			return nil
		}

		if !n.now().Before(deadline) {
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func optionalDuration(config map[string]any, key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return fallback, nil
	}

	d, err := parseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}

	return d, nil
}

func parseDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", v, err)
		}

		return d, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("duration must be a string or number of seconds, got %T", raw)
	}
}
