package file

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

type transitionDoc = models.Transition

// TransitionRepository handles transition file operations.
type TransitionRepository struct {
	mu   *sync.Mutex
	docs collection[transitionDoc]
}

// Save stores transition. Codes are unique within a workflow.
func (tr *TransitionRepository) Save(_ context.Context, transition *models.Transition) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	all, err := tr.docs.all()
	if err != nil {
		return err
	}

	for _, other := range all {
		if other.WorkflowID == transition.WorkflowID && other.Code == transition.Code && other.ID != transition.ID {
			return persistence.NewEntityError("Save", "transition", transition.Code, persistence.ErrAlreadyExists)
		}
	}

	if transition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		transition.ID = id.String()
	}

	now := time.Now().UTC()
	if transition.CreatedAt.IsZero() {
		transition.CreatedAt = now
	}

	transition.UpdatedAt = now

	return tr.docs.put(transition.ID, transition)
}

func (tr *TransitionRepository) GetByID(_ context.Context, id string) (*models.Transition, error) {
	return tr.docs.get(id)
}

func (tr *TransitionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Transition, error) {
	all, err := tr.docs.all()
	if err != nil {
		return nil, err
	}

	transitions := make([]*models.Transition, 0)

	for _, transition := range all {
		if transition.WorkflowID == workflowID {
			transitions = append(transitions, transition)
		}
	}

	models.SortTransitions(transitions)

	return transitions, nil
}

func (tr *TransitionRepository) Delete(_ context.Context, id string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.docs.remove(id)
}

func (tr *TransitionRepository) DeleteByWorkflow(_ context.Context, workflowID string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	all, err := tr.docs.all()
	if err != nil {
		return err
	}

	for _, transition := range all {
		if transition.WorkflowID != workflowID {
			continue
		}

		if err := tr.docs.remove(transition.ID); err != nil {
			return err
		}
	}

	return nil
}
