// Package httprequest provides the HTTP request action.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrHTTPMethodInvalid is returned when the HTTP method is invalid.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
	// ErrHTTPRequestHostInvalid is returned when neither url nor host is configured.
	ErrHTTPRequestHostInvalid = errors.New("invalid HTTP request host")
	// ErrHTTPServerError is returned when the server returns an error status code.
	ErrHTTPServerError = errors.New("server error during HTTP request")
)

// Action performs an HTTP request with optional headers, body and retry logic.
// URL, Path, Headers and Body are templates rendered against the node input.
type Action struct {
	Method   string
	URL      string
	Protocol string
	Host     string
	Path     string
	Headers  map[string]string
	Body     string
	Timeout  time.Duration
	Retry    RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// NewAction creates a new Action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	rawURL, _ := config["url"].(string)
	host, _ := config["host"].(string)

	if rawURL == "" && host == "" {
		return nil, fmt.Errorf("missing or invalid 'url' or 'host' in configuration: %w", ErrHTTPRequestHostInvalid)
	}

	path, _ := config["path"].(string)
	if path == "" {
		path = "/"
	}

	protocol, _ := config["protocol"].(string)
	if protocol == "" {
		protocol = "http"
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	action := &Action{
		Method:   strings.ToUpper(method),
		URL:      rawURL,
		Protocol: protocol,
		Host:     host,
		Path:     path,
		Headers:  headers,
		Body:     body,
		Timeout:  timeout,
		Retry:    parseRetryConfig(config["retry"]),
	}

	if err := action.Validate(); err != nil {
		return nil, err
	}

	return action, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok && delay > 0 {
		retry.Delay = time.Duration(delay) * time.Millisecond
	}

	return retry
}

// Validate checks that the method is set and every template parses.
func (a *Action) Validate() error {
	if a.Method == "" {
		return ErrHTTPMethodInvalid
	}

	if a.URL == "" && a.Host == "" {
		return ErrHTTPRequestHostInvalid
	}

	for name, tmpl := range map[string]string{"url": a.URL, "path": a.Path, "body": a.Body} {
		if _, err := template.Parse(tmpl); err != nil {
			return fmt.Errorf("invalid %s template: %w", name, err)
		}
	}

	for key, value := range a.Headers {
		if _, err := template.Parse(value); err != nil {
			return fmt.Errorf("invalid header '%s' template: %w", key, err)
		}
	}

	return nil
}

// Execute performs the HTTP request with retry logic and returns the response.
func (a *Action) Execute(ctx context.Context, input any, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "http_request")
	logger.DebugContext(ctx, "Executing HTTP request action")

	exec := protocol.ExecutionFrom(ctx)
	client := &http.Client{Timeout: a.Timeout}

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "max_attempts", a.Retry.Attempts)

			if err := sleep(ctx, a.Retry.Delay); err != nil {
				return nil, err
			}
		}

		req, err := a.buildRequest(ctx, exec, input)
		if err != nil {
			return nil, err
		}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			resp = nil

			continue
		}

		if resp.StatusCode >= 500 && attempt < a.Retry.Attempts {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error (status %d): %w", resp.StatusCode, ErrHTTPServerError)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return a.processResponse(ctx, resp, logger)
}

func (a *Action) buildRequest(ctx context.Context, exec models.ExecutionContext, input any) (*http.Request, error) {
	url, err := a.buildURL(exec, input)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody

	if a.Body != "" {
		rendered, err := template.RenderWithContext(a.Body, exec, input)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		if str, ok := rendered.(string); ok {
			body = strings.NewReader(str)
		} else {
			bodyBytes, err := json.Marshal(rendered)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal body: %w", err)
			}

			body = strings.NewReader(string(bodyBytes))
		}
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderWithContext(value, exec, input)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, fmt.Sprint(rendered))
	}

	return req, nil
}

func (a *Action) buildURL(exec models.ExecutionContext, input any) (string, error) {
	if a.URL != "" {
		rendered, err := template.RenderWithContext(a.URL, exec, input)
		if err != nil {
			return "", fmt.Errorf("failed to render url template: %w", err)
		}

		return fmt.Sprint(rendered), nil
	}

	path, err := template.RenderWithContext(a.Path, exec, input)
	if err != nil {
		return "", fmt.Errorf("failed to render path template: %w", err)
	}

	return fmt.Sprintf("%s://%s%v", a.Protocol, a.Host, path), nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}, nil
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
