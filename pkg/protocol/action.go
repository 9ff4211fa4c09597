package protocol

import (
	"context"
	"log/slog"
)

// Action is a unit of side-effecting work invoked by the action node kind.
type Action interface {
	Execute(ctx context.Context, input any, logger *slog.Logger) (any, error)
}

// ActionFactory creates configured actions and describes the operation they implement.
type ActionFactory interface {
	Create(config map[string]any) (Action, error)
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
}
