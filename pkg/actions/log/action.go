// Package log provides the log action, which writes a rendered message to the run logger.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/template"
)

// Action logs a message at a specified level.
type Action struct {
	Message string
	Level   string
}

// NewAction creates a log action from configuration.
func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Action{
		Message: message,
		Level:   strings.ToLower(level),
	}
}

// Execute renders the message against input and logs it.
func (a *Action) Execute(ctx context.Context, input any, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "log")

	rendered, err := template.RenderWithContext(a.Message, protocol.ExecutionFrom(ctx), input)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	message := fmt.Sprint(rendered)

	logger.Log(ctx, a.slogLevel(), message)

	return map[string]any{
		"message": message,
		"level":   a.Level,
	}, nil
}

func (a *Action) slogLevel() slog.Level {
	switch a.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
