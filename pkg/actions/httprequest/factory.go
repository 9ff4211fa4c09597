package httprequest

import "github.com/dukex/flowline/pkg/protocol"

// ActionFactory creates HTTP request actions.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action from the given configuration.
func (h *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the unique identifier for the action.
func (h *ActionFactory) ID() string {
	return "httpRequest"
}

// Name returns the name of the action.
func (h *ActionFactory) Name() string {
	return "HTTP Request"
}

// Description returns a brief description of the action.
func (h *ActionFactory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

// Schema returns the JSON schema for configuring this action.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{"type": "string"},
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{ .input.json.user_id }}",
				},
			},
			"protocol": map[string]any{"type": "string", "enum": []string{"http", "https"}},
			"host":     map[string]any{"type": "string"},
			"path":     map[string]any{"type": "string"},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use (GET, POST, PUT, DELETE, etc.)",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
				"examples": []map[string]string{
					{
						"Content-Type":  "application/json",
						"Authorization": "Bearer {{ .credentials.apiToken }}",
					},
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating for dynamic JSON or text content.",
				"examples": []string{
					`{"name": "John Doe", "email": "john@example.com"}`,
					`{"message": "Hello {{ .input.json.name }}", "timestamp": "{{ now }}"}`,
				},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
			},
			"retry": map[string]any{
				"type":        "object",
				"description": "Retry configuration for failed requests",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":    "integer",
						"default": 1,
						"minimum": 1,
						"maximum": 5, //nolint:mnd // example value
					},
					"delay": map[string]any{
						"type":        "integer",
						"description": "Delay between retry attempts in milliseconds",
						"default":     1000,  //nolint:mnd // example value
						"maximum":     30000, //nolint:mnd // example value
					},
				},
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"url"}},
			{"required": []string{"host"}},
		},
	}
}
