package web

import (
	"errors"

	"github.com/dukex/agentbundle/pkg/agentconfig"
	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/engine"
	"github.com/dukex/agentbundle/pkg/graph"
	"github.com/dukex/agentbundle/pkg/history"
	"github.com/dukex/agentbundle/pkg/workspace"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// handleWorkspaceError maps workspace errors to problem responses.
func handleWorkspaceError(c fiber.Ctx, err error) error {
	if result, ok := workspace.IsConfigError(err); ok {
		p := problems.NewStatusProblem(fiber.StatusUnprocessableEntity).
			WithInstance(c.Path()).
			WithType("invalid_agent_config").
			WithDetail("agent definition has validation errors")

		return c.Status(fiber.StatusUnprocessableEntity).JSON(ConfigProblem{
			Problem:  p,
			Errors:         result.Errors,
			Warnings:       result.Warnings,
		})
	}

	switch {
	case agentconfig.IsParseError(err):
		return problem(c, fiber.StatusBadRequest, "parse_error", err.Error())

	case graph.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "node_not_found", "node not found")

	case bundle.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "bundle_not_found", "bundle not found")

	case bundle.IsValidationError(err),
		errors.Is(err, graph.ErrSelfLoop),
		errors.Is(err, workspace.ErrRoleMismatch),
		errors.Is(err, workspace.ErrNotAgentDefinition):
		return problem(c, fiber.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, graph.ErrDuplicateNode):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, engine.ErrMissingAgent), errors.Is(err, engine.ErrMissingOutput):
		return problem(c, fiber.StatusUnprocessableEntity, "bundle_not_runnable", err.Error())

	case errors.Is(err, history.ErrNothingToUndo), errors.Is(err, history.ErrNothingToRedo):
		return problem(c, fiber.StatusConflict, "history_empty", err.Error())

	default:
		p := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
