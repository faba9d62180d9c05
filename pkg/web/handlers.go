package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/ruleflow/pkg/automation"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/workflow"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	workflows *workflow.Service
	engine    *automation.Engine
	store     record.Store
	validator *validator.Validate
	checks    map[string]HealthChecker
	now       func() time.Time
}

func NewAPIHandlers(
	workflows *workflow.Service,
	engine *automation.Engine,
	store record.Store,
	validator *validator.Validate,
	checks map[string]HealthChecker,
) *APIHandlers {
	return &APIHandlers{
		workflows: workflows,
		engine:    engine,
		store:     store,
		validator: validator,
		checks:    checks,
		now:       time.Now,
	}
}

// HealthCheck runs every registered check and answers 503 with a problem
// document naming the failing ones.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	results := make(fiber.Map, len(h.checks))
	failed := 0

	for name, check := range h.checks {
		if err := check.HealthCheck(c.Context()); err != nil {
			results[name] = err.Error()
			failed++

			continue
		}

		results[name] = "ok"
	}

	if failed > 0 {
		problem := problems.NewStatusProblem(http.StatusServiceUnavailable).
			WithInstance(c.Path()).
			WithType("unhealthy").
			WithDetail(strconv.Itoa(failed) + " health check(s) failed")

		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"problem":  problem,
			"checkers": results,
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"checkers":  results,
		"timestamp": h.now().UTC(),
	})
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	activeOnly := false

	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "Invalid active parameter: "+err.Error())
		}

		activeOnly = parsed
	}

	list, err := h.workflows.ListWorkflows(c.Context(), c.Query("model_name"), activeOnly)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": list})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.workflows.GetWorkflow(c.Context(), c.Params("code"))
	if err != nil {
		return handleServiceError(c, err)
	}

	transitions, err := h.workflows.ListTransitions(c.Context(), wf.ID, "", false)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflow": wf, "transitions": transitions})
}

// GetGraph returns the workflow graph as JSON, or as a Mermaid document
// when format=mermaid.
func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	graph, err := h.workflows.Visualize(c.Context(), c.Params("code"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if c.Query("format") == "mermaid" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

		return c.SendString(graph.Mermaid())
	}

	return c.JSON(graph)
}

func (h *APIHandlers) GetState(c fiber.Ctx) error {
	state, err := h.workflows.GetState(c.Context(), c.Params("model"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	history, err := h.workflows.GetHistory(c.Context(), c.Params("model"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"history": history})
}

func (h *APIHandlers) GetAvailableTransitions(c fiber.Ctx) error {
	available, err := h.workflows.GetAvailableTransitions(c.Context(), c.Params("model"), c.Params("id"), actorFrom(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"transitions": available})
}

// ExecuteTransition answers 200 whenever the state moved, including when
// the transition's effect or its activity row failed; the failures are then
// in action_error and activity_error.
func (h *APIHandlers) ExecuteTransition(c fiber.Ctx) error {
	var req ExecuteTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.workflows.ExecuteTransition(c.Context(), workflow.TransitionRequest{
		TransitionID: req.TransitionID,
		Model:        c.Params("model"),
		RecordID:     c.Params("id"),
		Actor:        actorFrom(c),
		Note:         req.Note,
		Vars:         req.Vars,
	})
	if err != nil && result == nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ListActivities(c fiber.Ctx) error {
	filter := persistence.ActivityFilter{
		WorkflowID: c.Query("workflow_id"),
		ModelName:  c.Query("model"),
		RecordID:   c.Query("record_id"),
		ActorID:    c.Query("actor_id"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid limit parameter")
		}

		filter.Limit = limit
	}

	activities, err := h.workflows.ListActivities(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"activities": activities})
}

// RunRule executes a manual rule on the listed records.
func (h *APIHandlers) RunRule(c fiber.Ctx) error {
	var req RunRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	records := make([]record.Record, 0, len(req.RecordIDs))

	for _, id := range req.RecordIDs {
		rec, err := h.store.Load(c.Context(), req.Model, id)
		if err != nil {
			if errors.Is(err, record.ErrRecordNotFound) {
				return handleServiceError(c, models.NewNotFoundError("RunRule", "record %s:%s does not exist", req.Model, id))
			}

			return internalError(c, err)
		}

		records = append(records, rec)
	}

	report, err := h.engine.RunManual(c.Context(), c.Params("code"), records, actorFrom(c), req.Vars)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

// RunTimeBased runs every time based rule once, as the scheduler does.
func (h *APIHandlers) RunTimeBased(c fiber.Ctx) error {
	results, err := h.engine.RunTimeBased(c.Context(), h.now())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"results": results})
}
