package protocol

import "context"

// TriggerCallback delivers a raw inbound event for a workflow to the dispatcher.
type TriggerCallback func(ctx context.Context, workflowID string, payload any) error

// Subscription is what a trigger adapter needs to wire or unwire an external event source.
type Subscription struct {
	WorkflowID  string
	NodeID      string
	CallbackURL string
	Config      map[string]any
	Credentials map[string]string
}

// TriggerAdapter normalises inbound events and manages the external subscription
// that produces them. Subscriptions are created on activation and removed on deactivation.
type TriggerAdapter interface {
	ID() string
	Normalize(raw any, credentials map[string]string) map[string]any
	CreateSubscription(ctx context.Context, sub Subscription) error
	RemoveSubscription(ctx context.Context, sub Subscription) error
}

// CredentialRequirer is implemented by adapters that need credentials before subscribing.
type CredentialRequirer interface {
	RequiredCredentials(config map[string]any) []string
}

// TriggerRunner is implemented by adapters that emit events on their own, such as schedules.
type TriggerRunner interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
}

// PayloadValidator is implemented by adapters that check inbound payloads before a run starts.
type PayloadValidator interface {
	ValidatePayload(workflowID string, raw any) error
}
