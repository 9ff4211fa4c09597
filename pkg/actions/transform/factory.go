package transform

import "github.com/dukex/flowline/pkg/protocol"

// ActionFactory is the factory for creating transform actions.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory for the transform action.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new transform action based on the provided configuration.
func (h *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the unique identifier for the action factory.
func (h *ActionFactory) ID() string {
	return "transform"
}

// Name returns the name of the action factory.
func (h *ActionFactory) Name() string {
	return "Transform"
}

// Description returns a brief description of the transform action.
func (h *ActionFactory) Description() string {
	return "Transforms data using a specified expression."
}

// Schema returns the JSON schema for the transform action configuration.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "Optional template selecting the data to transform. Defaults to the node input.",
				"examples":    []string{"{{ toJSON .input.json.users }}"},
			},
			"expression": map[string]any{
				"type":        "string",
				"format":      "template",
				"description": "Go template expression to transform the data. Use Go template syntax with {{}} delimiters.",
				"examples": []string{
					"{{ .input.name }}",
					"{\"fullName\": \"{{ .input.firstName }} {{ .input.lastName }}\", \"isActive\": {{ eq .input.status \"active\" }}}",
					"{{ len .input.items }}",
				},
			},
		},
		"required": []string{"expression"},
	}
}
