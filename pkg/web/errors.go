package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/ruleflow/pkg/models"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// kindStatus maps error kinds to HTTP statuses.
var kindStatus = map[models.ErrorKind]int{
	models.KindConfiguration: fiber.StatusBadRequest,
	models.KindCycleDetected: fiber.StatusBadRequest,
	models.KindNotFound:      fiber.StatusNotFound,
	models.KindInvalidState:  fiber.StatusConflict,
	models.KindNotActive:     fiber.StatusConflict,
	models.KindGuardFailed:   fiber.StatusForbidden,
	models.KindActionFailed:  fiber.StatusBadGateway,
}

// handleServiceError renders a typed engine error as a problem document
// whose type is the error kind.
func handleServiceError(c fiber.Ctx, err error) error {
	kind := models.KindOf(err)

	status, ok := kindStatus[kind]
	if !ok {
		return internalError(c, err)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(string(kind)).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
