// Package webhook provides the webhook trigger adapter. Inbound requests arrive through
// the HTTP API and are validated against the optional payload schema of the trigger node.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/flowline/pkg/protocol"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/triggers"
	"github.com/xeipuuv/gojsonschema"
)

// ID is the adapter id used in trigger node configuration.
const ID = "webhook"

// Adapter tracks the webhook subscriptions of active workflows.
type Adapter struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string]protocol.Subscription
}

// NewAdapter creates the webhook adapter.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{
		logger: logger.With("module", "webhook_trigger"),
		subs:   make(map[string]protocol.Subscription),
	}
}

// ID returns the adapter id.
func (a *Adapter) ID() string {
	return ID
}

// Normalize wraps the request body as {json: body}.
func (a *Adapter) Normalize(raw any, credentials map[string]string) map[string]any {
	return triggers.Normalize(raw, credentials)
}

// CreateSubscription registers the callback URL of a workflow.
func (a *Adapter) CreateSubscription(_ context.Context, sub protocol.Subscription) error {
	if schema, ok := sub.Config["schema"].(map[string]any); ok {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
			return fmt.Errorf("invalid payload schema: %w", err)
		}
	}

	a.mu.Lock()
	a.subs[sub.WorkflowID] = sub
	a.mu.Unlock()

	a.logger.Info("Registered webhook", "workflow_id", sub.WorkflowID, "url", sub.CallbackURL)

	return nil
}

// RemoveSubscription forgets the webhook of a workflow.
func (a *Adapter) RemoveSubscription(_ context.Context, sub protocol.Subscription) error {
	a.mu.Lock()
	delete(a.subs, sub.WorkflowID)
	a.mu.Unlock()

	a.logger.Info("Unregistered webhook", "workflow_id", sub.WorkflowID)

	return nil
}

// Subscribed reports whether workflowID currently has a webhook.
func (a *Adapter) Subscribed(workflowID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.subs[workflowID]

	return ok
}

// ValidatePayload checks raw against the payload schema configured on the trigger node.
func (a *Adapter) ValidatePayload(workflowID string, raw any) error {
	a.mu.RLock()
	sub, ok := a.subs[workflowID]
	a.mu.RUnlock()

	if !ok {
		return nil
	}

	schema, ok := sub.Config["schema"].(map[string]any)
	if !ok {
		return nil
	}

	return registry.ValidateSchema(schema, raw)
}
