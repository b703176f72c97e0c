// Package web provides HTTP handlers and REST API endpoints for the agent workspace.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/models"
	"github.com/dukex/agentbundle/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workspace *workspace.Workspace
	validator *validator.Validate
}

func NewAPIHandlers(ws *workspace.Workspace, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		workspace: ws,
		validator: validator,
	}
}

// Register mounts the workspace routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Post("/agents", h.UploadAgent)

	n := router.Group("/nodes")
	n.Post("/input", h.CreateInputNode)
	n.Post("/output", h.CreateOutputNode)
	n.Get("/:id", h.GetNode)
	n.Delete("/:id", h.DeleteNode)
	n.Put("/:id/variables", h.SetVariables)
	n.Put("/:id/agent", h.UpdateAgentConfig)
	n.Get("/:id/export", h.ExportAgent)

	router.Post("/edges", h.Connect)
	router.Get("/graph", h.GetGraph)

	b := router.Group("/bundles")
	b.Get("/", h.GetBundles)
	b.Post("/", h.CreateBundle)
	b.Patch("/:id", h.UpdateBundle)
	b.Delete("/:id", h.DeleteBundle)
	b.Post("/:id/run", h.RunBundle)
	b.Get("/:id/run", h.GetLastRun)

	router.Post("/run", h.RunAllBundles)
	router.Post("/history/undo", h.Undo)
	router.Post("/history/redo", h.Redo)
	router.Get("/logs", h.GetLogs)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status, httpStatus := "healthy", http.StatusOK

	if err := h.workspace.CheckConsistency(); err != nil {
		status, httpStatus = "unhealthy", http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   "Agent workspace is " + status,
		"timestamp": time.Now().UTC(),
	})
}

// UploadAgent takes the raw YAML definition as the request body.
func (h *APIHandlers) UploadAgent(c fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "Agent definition is required")
	}

	result, err := h.workspace.UploadAgent(c.Context(), string(body))
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) CreateInputNode(c fiber.Ctx) error {
	var req CreateInputNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.workspace.AddInputNode(c.Context(), req.Prompt, req.Model)
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) CreateOutputNode(c fiber.Ctx) error {
	var req CreateOutputNodeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	node, err := h.workspace.AddOutputNode(c.Context(), req.Label)
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	node, err := h.workspace.Node(c.Params("id"))
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	if err := h.workspace.RemoveNode(c.Context(), c.Params("id")); err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetVariables(c fiber.Ctx) error {
	var req SetVariablesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.workspace.SetVariables(c.Context(), c.Params("id"), req.Variables)
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.JSON(node)
}

// UpdateAgentConfig replaces the definition with the raw YAML request body.
func (h *APIHandlers) UpdateAgentConfig(c fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "Agent definition is required")
	}

	node, warnings, err := h.workspace.UpdateAgentConfig(c.Context(), c.Params("id"), string(body))
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.JSON(fiber.Map{
		"node":     node,
		"warnings": warnings,
	})
}

func (h *APIHandlers) ExportAgent(c fiber.Ctx) error {
	text, err := h.workspace.ExportAgent(c.Params("id"))
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/yaml")

	return c.SendString(text)
}

func (h *APIHandlers) Connect(c fiber.Ctx) error {
	var req ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	edge, err := h.workspace.Connect(c.Context(), req.Source, req.Target)
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	return c.JSON(h.workspace.Snapshot())
}

func (h *APIHandlers) GetBundles(c fiber.Ctx) error {
	bundles := h.workspace.Bundles()
	response := make([]BundleResponse, 0, len(bundles))

	for _, b := range bundles {
		runnable, err := h.workspace.IsRunnable(b.ID)
		if err != nil {
			return handleWorkspaceError(c, err)
		}

		response = append(response, BundleResponse{Bundle: b, Runnable: runnable})
	}

	return c.JSON(fiber.Map{
		"bundles":     response,
		"total_count": len(response),
	})
}

func (h *APIHandlers) CreateBundle(c fiber.Ctx) error {
	var req CreateBundleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workspace.CreateBundle(c.Context(), req.NodeIDs, bundle.CreateOptions{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateBundle(c fiber.Ctx) error {
	id, err := bundleID(c)
	if err != nil {
		return badRequest(c, "Invalid bundle ID")
	}

	var req UpdateBundleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workspace.Bundle(id)
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	if req.Name != nil {
		if updated, err = h.workspace.RenameBundle(c.Context(), id, *req.Name); err != nil {
			return handleWorkspaceError(c, err)
		}
	}

	if req.Color != nil {
		if updated, err = h.workspace.RecolorBundle(c.Context(), id, *req.Color); err != nil {
			return handleWorkspaceError(c, err)
		}
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteBundle(c fiber.Ctx) error {
	id, err := bundleID(c)
	if err != nil {
		return badRequest(c, "Invalid bundle ID")
	}

	if err := h.workspace.DeleteBundle(c.Context(), id); err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunBundle runs the bundle and answers once every unit finished. Unit
// failures are part of the returned run.
func (h *APIHandlers) RunBundle(c fiber.Ctx) error {
	id, err := bundleID(c)
	if err != nil {
		return badRequest(c, "Invalid bundle ID")
	}

	run, err := h.workspace.RunBundle(c.Context(), id)
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetLastRun(c fiber.Ctx) error {
	id, err := bundleID(c)
	if err != nil {
		return badRequest(c, "Invalid bundle ID")
	}

	run, ok := h.workspace.LastRun(id)
	if !ok {
		return problem(c, fiber.StatusNotFound, "run_not_found", "bundle has not run yet")
	}

	return c.JSON(run)
}

func (h *APIHandlers) RunAllBundles(c fiber.Ctx) error {
	runs, err := h.workspace.RunAllBundles(c.Context())

	response := RunAllResponse{Runs: runs}
	if response.Runs == nil {
		response.Runs = []*models.BundleRun{}
	}

	if err != nil {
		response.Errors = splitJoined(err)
	}

	return c.JSON(response)
}

func (h *APIHandlers) Undo(c fiber.Ctx) error {
	name, err := h.workspace.Undo(c.Context())
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.JSON(h.historyResponse(name))
}

func (h *APIHandlers) Redo(c fiber.Ctx) error {
	name, err := h.workspace.Redo(c.Context())
	if err != nil {
		return handleWorkspaceError(c, err)
	}

	return c.JSON(h.historyResponse(name))
}

func (h *APIHandlers) historyResponse(name string) HistoryResponse {
	return HistoryResponse{
		Name:    name,
		CanUndo: h.workspace.CanUndo(),
		CanRedo: h.workspace.CanRedo(),
	}
}

func (h *APIHandlers) GetLogs(c fiber.Ctx) error {
	logs := h.workspace.Logs()
	if logs == nil {
		logs = []string{}
	}

	return c.JSON(LogsResponse{Logs: logs})
}

func bundleID(c fiber.Ctx) (models.BundleID, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, strconv.ErrSyntax
	}

	return models.BundleID(id), nil
}

// splitJoined flattens an errors.Join result into its messages.
func splitJoined(err error) []string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}

	var messages []string
	for _, e := range joined.Unwrap() {
		messages = append(messages, e.Error())
	}

	return messages
}
