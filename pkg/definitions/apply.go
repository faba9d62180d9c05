package definitions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/automation"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/workflow"
)

// Counts tallies the entities of one kind touched by Apply.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Summary reports what Apply wrote.
type Summary struct {
	Actions     Counts `json:"actions"`
	Workflows   Counts `json:"workflows"`
	Transitions Counts `json:"transitions"`
	Rules       Counts `json:"rules"`
}

// Applier writes bundles through the workflow service and the automation
// engine so every definition passes the same checks as an API call.
type Applier struct {
	workflows *workflow.Service
	engine    *automation.Engine
	logger    *slog.Logger
}

func NewApplier(workflows *workflow.Service, engine *automation.Engine, logger *slog.Logger) *Applier {
	return &Applier{
		workflows: workflows,
		engine:    engine,
		logger:    logger.With("module", "definitions"),
	}
}

// Apply upserts the bundle by code: actions first (chains last), then
// workflows with their transitions, then rules. It stops at the first
// invalid definition; what was written before stays written.
func (a *Applier) Apply(ctx context.Context, bundle *Bundle) (*Summary, error) {
	summary := &Summary{}

	if err := a.applyActions(ctx, bundle.Actions, &summary.Actions); err != nil {
		return summary, err
	}

	for _, wf := range bundle.Workflows {
		if err := a.applyWorkflow(ctx, wf, summary); err != nil {
			return summary, err
		}
	}

	for _, rule := range bundle.Rules {
		if err := a.applyRule(ctx, rule, &summary.Rules); err != nil {
			return summary, err
		}
	}

	a.logger.InfoContext(ctx, "bundle applied",
		"actions", summary.Actions.Created+summary.Actions.Updated,
		"workflows", summary.Workflows.Created+summary.Workflows.Updated,
		"transitions", summary.Transitions.Created+summary.Transitions.Updated,
		"rules", summary.Rules.Created+summary.Rules.Updated,
	)

	return summary, nil
}

func (a *Applier) applyActions(ctx context.Context, list []*models.ServerAction, counts *Counts) error {
	ordered := make([]*models.ServerAction, 0, len(list))
	for _, action := range list {
		if action.Kind() != models.ActionChainActions {
			ordered = append(ordered, action)
		}
	}

	for _, action := range list {
		if action.Kind() == models.ActionChainActions {
			ordered = append(ordered, action)
		}
	}

	for _, action := range ordered {
		if chain, ok := action.Spec.(models.ChainActions); ok {
			children, err := a.childIDs(ctx, chain.ChildIDs)
			if err != nil {
				return err
			}

			action.Spec = models.ChainActions{ChildIDs: children}
		}

		existing, err := a.lookupAction(ctx, action.Code)
		if err != nil {
			return err
		}

		if existing != nil {
			action.ID = existing.ID
			action.CreatedAt = existing.CreatedAt
		} else {
			action.ID = ""
		}

		if err := a.engine.SaveAction(ctx, action); err != nil {
			return fmt.Errorf("action %q: %w", action.Code, err)
		}

		if existing != nil {
			counts.Updated++
		} else {
			counts.Created++
		}
	}

	return nil
}

// childIDs maps chain references given as codes to action ids. Unknown
// references are kept so validation reports them.
func (a *Applier) childIDs(ctx context.Context, refs []string) ([]string, error) {
	ids := make([]string, len(refs))

	for i, ref := range refs {
		ids[i] = ref

		child, err := a.lookupAction(ctx, ref)
		if err != nil {
			return nil, err
		}

		if child != nil {
			ids[i] = child.ID
		}
	}

	return ids, nil
}

func (a *Applier) lookupAction(ctx context.Context, ref string) (*models.ServerAction, error) {
	action, err := a.engine.GetAction(ctx, ref)
	if models.IsNotFound(err) {
		return nil, nil
	}

	return action, err
}

func (a *Applier) applyWorkflow(ctx context.Context, doc *Workflow, summary *Summary) error {
	def := doc.WorkflowDefinition

	existing, err := a.workflows.GetWorkflow(ctx, def.Code)
	if err != nil && !models.IsNotFound(err) {
		return err
	}

	var wf *models.WorkflowDefinition

	if existing == nil {
		wf, err = a.workflows.CreateWorkflow(ctx, &def)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", def.Code, err)
		}

		summary.Workflows.Created++
	} else {
		wf, err = a.workflows.UpdateWorkflow(ctx, existing.ID, workflow.WorkflowUpdate{
			Name:         &def.Name,
			Description:  &def.Description,
			States:       def.States,
			DefaultState: &def.DefaultState,
			Active:       &def.Active,
		})
		if err != nil {
			return fmt.Errorf("workflow %q: %w", def.Code, err)
		}

		summary.Workflows.Updated++
	}

	current, err := a.workflows.ListTransitions(ctx, wf.ID, "", false)
	if err != nil {
		return err
	}

	byCode := make(map[string]*models.Transition, len(current))
	for _, t := range current {
		byCode[t.Code] = t
	}

	for _, t := range doc.Transitions {
		t.WorkflowID = wf.ID

		if prior, ok := byCode[t.Code]; ok {
			t.ID = prior.ID

			if _, err := a.workflows.UpdateTransition(ctx, t); err != nil {
				return fmt.Errorf("workflow %q transition %q: %w", wf.Code, t.Code, err)
			}

			summary.Transitions.Updated++

			continue
		}

		t.ID = ""

		if _, err := a.workflows.CreateTransition(ctx, t); err != nil {
			return fmt.Errorf("workflow %q transition %q: %w", wf.Code, t.Code, err)
		}

		summary.Transitions.Created++
	}

	return nil
}

func (a *Applier) applyRule(ctx context.Context, rule *models.AutomationRule, counts *Counts) error {
	existing, err := a.engine.GetRule(ctx, rule.Code)
	if err != nil && !models.IsNotFound(err) {
		return err
	}

	if existing != nil {
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
		rule.LastRun = existing.LastRun
	} else {
		rule.ID = ""
		rule.LastRun = nil
	}

	if err := a.engine.SaveRule(ctx, rule); err != nil {
		return fmt.Errorf("rule %q: %w", rule.Code, err)
	}

	if existing != nil {
		counts.Updated++
	} else {
		counts.Created++
	}

	return nil
}
