package transform

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAction(t *testing.T) {
	action, err := NewAction(map[string]any{"expression": "{{ .input.name }}"})
	require.NoError(t, err)
	assert.Equal(t, "{{ .input.name }}", action.Expression)

	_, err = NewAction(map[string]any{})
	assert.ErrorIs(t, err, errMissingExpression)

	_, err = NewAction(map[string]any{"expression": "{{ .input.name"})
	assert.Error(t, err)
}

func TestAction_Execute(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]any
		input    any
		expected any
	}{
		{
			name:     "simple field",
			config:   map[string]any{"expression": "{{ .input.name }}"},
			input:    map[string]any{"name": "Ada"},
			expected: "Ada",
		},
		{
			name: "object construction",
			config: map[string]any{
				"expression": `{"fullName": "{{ .input.first }} {{ .input.last }}", "active": {{ eq .input.status "active" }}}`,
			},
			input:    map[string]any{"first": "Ada", "last": "Lovelace", "status": "active"},
			expected: map[string]any{"fullName": "Ada Lovelace", "active": true},
		},
		{
			name:     "count",
			config:   map[string]any{"expression": "{{ len .input.items }}"},
			input:    map[string]any{"items": []any{1, 2, 3}},
			expected: 3.0,
		},
		{
			name: "narrowed input",
			config: map[string]any{
				"input":      "{{ toJSON .input.user }}",
				"expression": "{{ .input.email }}",
			},
			input:    map[string]any{"user": map[string]any{"email": "ada@example.com"}},
			expected: "ada@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := NewActionFactory().Create(tt.config)
			require.NoError(t, err)

			result, err := action.Execute(context.Background(), tt.input, slog.Default())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAction_Execute_MissingKey(t *testing.T) {
	action, err := NewAction(map[string]any{"expression": "{{ .input.user.email }}"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), "not an object", slog.Default())
	assert.Error(t, err)
}
