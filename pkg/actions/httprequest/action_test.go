package httprequest_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/flowline/pkg/actions/httprequest"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   map[string]any
		expected *httprequest.Action
	}{
		{
			name: "basic GET request",
			config: map[string]any{
				"method":   "GET",
				"host":     "api.example.com",
				"path":     "/data",
				"protocol": "https",
			},
			expected: &httprequest.Action{
				Method:   "GET",
				Host:     "api.example.com",
				Path:     "/data",
				Protocol: "https",
				Headers:  map[string]string{},
				Timeout:  30 * time.Second,
				Retry:    httprequest.RetryConfig{Attempts: 1},
			},
		},
		{
			name: "POST request with url, headers, body and retry",
			config: map[string]any{
				"method":  "post",
				"url":     "https://api.example.com/create",
				"body":    `{"key": "value"}`,
				"timeout": 5.0,
				"headers": map[string]any{
					"Content-Type": "application/json",
				},
				"retry": map[string]any{
					"attempts": 3.0,
					"delay":    500.0,
				},
			},
			expected: &httprequest.Action{
				Method:   "POST",
				URL:      "https://api.example.com/create",
				Path:     "/",
				Protocol: "http",
				Body:     `{"key": "value"}`,
				Headers:  map[string]string{"Content-Type": "application/json"},
				Timeout:  5 * time.Second,
				Retry:    httprequest.RetryConfig{Attempts: 3, Delay: 500 * time.Millisecond},
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			action, err := httprequest.NewAction(testCase.config)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, action)
		})
	}
}

func TestAction_Execute_TemplatedRequest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/users/user123", request.URL.Path)
		assert.Equal(t, "Bearer secret", request.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(request.Body).Decode(&body))
		assert.Equal(t, "Ada", body["name"])

		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{"created": true, "id": 123})
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{
		"method": "POST",
		"url":    server.URL + "/users/{{ .input.id }}",
		"body":   `{"name": "{{ .input.name }}"}`,
		"headers": map[string]any{
			"Authorization": "Bearer {{ .credentials.token }}",
		},
	})
	require.NoError(t, err)

	ctx := protocol.WithExecution(context.Background(), models.ExecutionContext{
		WorkflowID:  "wf-1",
		Credentials: map[string]string{"token": "secret"},
	})

	result, err := action.Execute(ctx, map[string]any{"id": "user123", "name": "Ada"}, slog.Default())
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 200, resultMap["status_code"])

	body, ok := resultMap["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, body["created"])
	assert.InEpsilon(t, 123, body["id"], 0.01)
}

func TestAction_Execute_WithRetry(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			writer.WriteHeader(http.StatusInternalServerError)

			return
		}

		_ = json.NewEncoder(writer).Encode(map[string]string{"status": "success"})
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": 3.0},
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), nil, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 200, result.(map[string]any)["status_code"])
}

func TestAction_Execute_ServerErrorOnLastAttempt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, result.(map[string]any)["status_code"])
}

func TestAction_Execute_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL, "timeout": 0.05})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), nil, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http request failed")
}

func TestAction_Execute_NonJSONResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "text/plain")
		_, _ = writer.Write([]byte("plain text response"))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "plain text response", result.(map[string]any)["body"])
}
