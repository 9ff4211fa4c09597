// Package trigger provides the trigger node, the single entry point of every workflow.
package trigger

import (
	"context"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
)

const DefaultAdapter = "webhook"

// Config is the typed view of a trigger node configuration.
type Config struct {
	Adapter             string
	RequiredCredentials []string
	AttachCredentials   []string
	Schedule            string
	Schema              map[string]any
}

// Node emits the normalised trigger event unchanged on main.
type Node struct{}

// New creates the trigger node.
func New() *Node {
	return &Node{}
}

// Describe returns the node metadata.
func (n *Node) Describe() models.NodeDescription {
	return models.NodeDescription{
		Kind:        models.NodeKindTrigger,
		DisplayName: "Trigger",
		OutputPorts: []string{models.PortMain},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"adapter": map[string]any{
					"type":        "string",
					"description": "Trigger adapter that feeds events into the workflow.",
					"default":     DefaultAdapter,
				},
				"requiredCredentials": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Credential names that must be present to activate the workflow.",
				},
				"attachCredentials": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Credential names attached to every normalised event.",
				},
				"schedule": map[string]any{
					"type":        "string",
					"description": "Cron expression, used by the schedule adapter.",
					"examples":    []string{"*/5 * * * *", "@every 1m"},
				},
				"schema": map[string]any{
					"type":        "object",
					"description": "Optional JSON schema the inbound payload must satisfy.",
				},
			},
		},
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := ParseConfig(config)

	return err
}

// Execute passes the trigger event to the rest of the graph.
func (n *Node) Execute(_ context.Context, _ map[string]any, input any) (models.NodeResult, error) {
	return models.Main(input), nil
}

// ParseConfig reads a trigger node configuration.
func ParseConfig(config map[string]any) (Config, error) {
	cfg := Config{Adapter: DefaultAdapter}

	if raw, ok := config["adapter"]; ok && raw != nil {
		adapter, isString := raw.(string)
		if !isString || adapter == "" {
			return cfg, fmt.Errorf("adapter must be a non-empty string, got %v", raw)
		}

		cfg.Adapter = adapter
	}

	var err error

	if cfg.RequiredCredentials, err = stringList(config, "requiredCredentials"); err != nil {
		return cfg, err
	}

	if cfg.AttachCredentials, err = stringList(config, "attachCredentials"); err != nil {
		return cfg, err
	}

	if raw, ok := config["schedule"]; ok && raw != nil {
		if cfg.Schedule, ok = raw.(string); !ok {
			return cfg, fmt.Errorf("schedule must be a string, got %T", raw)
		}
	}

	if raw, ok := config["schema"]; ok && raw != nil {
		if cfg.Schema, ok = raw.(map[string]any); !ok {
			return cfg, fmt.Errorf("schema must be an object, got %T", raw)
		}
	}

	return cfg, nil
}

func stringList(config map[string]any, key string) ([]string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, fmt.Errorf("%s must contain only strings, got %T", key, item)
			}

			out = append(out, s)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings, got %T", key, raw)
	}
}
