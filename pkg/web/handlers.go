package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/flowline/pkg/nodes"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultExecutionsLimit = 10

type APIHandlers struct {
	manager   *workflow.Manager
	catalog   *registry.Registry
	nodes     *nodes.Set
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	manager *workflow.Manager,
	catalog *registry.Registry,
	set *nodes.Set,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		catalog:   catalog,
		nodes:     set,
		validator: validator,
		logger:    logger.With("module", "web"),
	}
}

// RegisterRoutes mounts every endpoint on router.
func RegisterRoutes(router fiber.Router, h *APIHandlers) {
	router.Get("/health", h.HealthCheck)
	router.Get("/nodes", h.ListNodeKinds)
	router.Get("/actions", h.ListActions)
	router.Get("/triggers", h.ListTriggers)

	w := router.Group("/workflows")
	w.Get("/", h.ListWorkflows)
	w.Post("/activate", h.Activate)
	w.Post("/:id/deactivate", h.Deactivate)
	w.Get("/:id/status", h.Status)
	w.Get("/:id/executions", h.Executions)
	w.Get("/:id/execution-data", h.ExecutionData)
	w.Post("/:id/execute", h.Execute)

	router.Post("/webhook/:workflowId", h.Webhook)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.catalog.HealthCheck()

	status := "unhealthy"
	message := "Flowline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk {
		status = "healthy"
		message = "Flowline API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":  registryCheck,
			"workflows": len(h.manager.Registry().List()),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListNodeKinds(c fiber.Ctx) error {
	return c.JSON(h.nodes.Describe())
}

func (h *APIHandlers) ListActions(c fiber.Ctx) error {
	factories := h.catalog.Actions()
	actions := make([]ActionResponse, 0, len(factories))

	for _, f := range factories {
		actions = append(actions, ActionResponse{
			ID:          f.ID(),
			Name:        f.Name(),
			Description: f.Description(),
			Schema:      f.Schema(),
		})
	}

	return c.JSON(actions)
}

func (h *APIHandlers) ListTriggers(c fiber.Ctx) error {
	adapters := h.catalog.Triggers()
	ids := make([]string, 0, len(adapters))

	for _, adapter := range adapters {
		ids = append(ids, adapter.ID())
	}

	return c.JSON(fiber.Map{"triggers": ids})
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"workflows": h.manager.Registry().List()})
}

func (h *APIHandlers) Activate(c fiber.Ctx) error {
	var req ActivateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.manager.Activate(c.Context(), req.Workflow, req.Credentials)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) Deactivate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	existed, err := h.manager.Deactivate(c.Context(), id)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(DeactivateResponse{WorkflowID: id, Deactivated: existed})
}

func (h *APIHandlers) Status(c fiber.Ctx) error {
	return c.JSON(h.manager.Status(c.Params("id")))
}

func (h *APIHandlers) Executions(c fiber.Ctx) error {
	id := c.Params("id")

	query := ExecutionsQuery{Limit: defaultExecutionsLimit}
	if err := c.Bind().Query(&query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	runs, err := h.manager.History(id, query.Limit)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(ExecutionsResponse{WorkflowID: id, Limit: query.Limit, Runs: runs})
}

func (h *APIHandlers) ExecutionData(c fiber.Ctx) error {
	data, err := h.manager.ExecutionData(c.Params("id"))
	if err != nil {
		if workflow.IsNotFound(err) {
			return notFound(c, err.Error())
		}

		return internalError(c, err)
	}

	return c.JSON(data)
}

func (h *APIHandlers) Execute(c fiber.Ctx) error {
	payload, err := decodePayload(c.Body())
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	run, err := h.manager.ExecuteManual(c.Context(), c.Params("id"), payload)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(run)
}

// Webhook accepts an inbound event and acknowledges it before the run finishes.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	id := c.Params("workflowId")

	payload, err := decodePayload(c.Body())
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	runID, err := h.manager.Trigger(c.Context(), id, payload)
	if err != nil {
		h.logger.Warn("Rejected webhook event", "workflow_id", id, "error", err)

		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
		WorkflowID: id,
		RunID:      runID,
		Status:     "accepted",
	})
}

func decodePayload(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	return payload, nil
}
