// Package web exposes the workflow service and the automation engine over
// HTTP, together with health and metrics endpoints.
package web

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/dukex/ruleflow/pkg/models"
)

const (
	actorIDHeader     = "X-Actor-Id"
	actorNameHeader   = "X-Actor-Name"
	actorGroupsHeader = "X-Actor-Groups"
)

// ExecuteTransitionRequest is the body of POST /records/:model/:id/transitions.
type ExecuteTransitionRequest struct {
	TransitionID string         `json:"transition_id" validate:"required"`
	Note         string         `json:"note"`
	Vars         map[string]any `json:"vars"`
}

// RunRuleRequest is the body of POST /rules/:code/run.
type RunRuleRequest struct {
	Model     string         `json:"model"      validate:"required"`
	RecordIDs []string       `json:"record_ids" validate:"required,min=1,dive,required"`
	Vars      map[string]any `json:"vars"`
}

// actorFrom reads the acting user from request headers. Authentication is
// the fronting proxy's job.
func actorFrom(c fiber.Ctx) models.Actor {
	actor := models.Actor{
		ID:   c.Get(actorIDHeader),
		Name: c.Get(actorNameHeader),
	}

	for _, group := range strings.Split(c.Get(actorGroupsHeader), ",") {
		if group = strings.TrimSpace(group); group != "" {
			actor.Groups = append(actor.Groups, group)
		}
	}

	return actor
}
