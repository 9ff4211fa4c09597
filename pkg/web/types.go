// Package web provides the HTTP surface of the workflow runtime: activation,
// status and history endpoints plus the inbound webhook boundary.
package web

import "github.com/dukex/flowline/pkg/models"

// ActivateRequest is the body of an activation call.
type ActivateRequest struct {
	Workflow    *models.Workflow  `json:"workflow"              validate:"required"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// DeactivateResponse reports whether a registration existed.
type DeactivateResponse struct {
	WorkflowID  string `json:"workflowId"`
	Deactivated bool   `json:"deactivated"`
}

// ExecutionsResponse lists recent runs, newest first.
type ExecutionsResponse struct {
	WorkflowID string        `json:"workflowId"`
	Limit      int           `json:"limit"`
	Runs       []*models.Run `json:"runs"`
}

// AcceptedResponse acknowledges an inbound event. The run outcome is not part of it.
type AcceptedResponse struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
	Status     string `json:"status"`
}

// ActionResponse describes a registered action operation.
type ActionResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// ExecutionsQuery holds the query parameters of the executions endpoint.
type ExecutionsQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=1000"`
}
