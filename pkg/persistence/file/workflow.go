package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

type workflowDoc = models.WorkflowDefinition

// WorkflowRepository handles workflow definition file operations.
type WorkflowRepository struct {
	mu   *sync.Mutex
	docs collection[workflowDoc]
}

// Save stores workflow, assigning an id on first save. Codes are unique.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	existing, err := wr.docs.all()
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.Code == workflow.Code && other.ID != workflow.ID {
			return persistence.NewEntityError("Save", "workflow", workflow.Code, persistence.ErrAlreadyExists)
		}
	}

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		workflow.ID = id.String()
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return wr.docs.put(workflow.ID, workflow)
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	return wr.docs.get(id)
}

func (wr *WorkflowRepository) GetByCode(_ context.Context, code string) (*models.WorkflowDefinition, error) {
	all, err := wr.docs.all()
	if err != nil {
		return nil, err
	}

	for _, workflow := range all {
		if workflow.Code == code {
			return workflow, nil
		}
	}

	return nil, nil
}

// List returns workflows sorted by code.
func (wr *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDefinition, error) {
	all, err := wr.docs.all()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowDefinition, 0, len(all))

	for _, workflow := range all {
		if opts.ModelName != "" && workflow.ModelName != opts.ModelName {
			continue
		}

		if opts.ActiveOnly && !workflow.Active {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Code < filtered[j].Code
	})

	return filtered, nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.docs.remove(id)
}
