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

type stateDoc = models.StateRecord

// StateRepository handles per-record workflow state files.
type StateRepository struct {
	mu   *sync.Mutex
	docs collection[stateDoc]
}

func (sr *StateRepository) find(match func(*models.StateRecord) bool) (*models.StateRecord, error) {
	all, err := sr.docs.all()
	if err != nil {
		return nil, err
	}

	for _, state := range all {
		if match(state) {
			return state, nil
		}
	}

	return nil, nil
}

func (sr *StateRepository) Get(_ context.Context, workflowID, modelName, recordID string) (*models.StateRecord, error) {
	return sr.find(func(s *models.StateRecord) bool {
		return s.WorkflowID == workflowID && s.ModelName == modelName && s.RecordID == recordID
	})
}

func (sr *StateRepository) FindByRecord(_ context.Context, modelName, recordID string) (*models.StateRecord, error) {
	return sr.find(func(s *models.StateRecord) bool {
		return s.ModelName == modelName && s.RecordID == recordID
	})
}

func (sr *StateRepository) Create(ctx context.Context, state *models.StateRecord) (*models.StateRecord, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	existing, err := sr.Get(ctx, state.WorkflowID, state.ModelName, state.RecordID)
	if err != nil || existing != nil {
		return existing, err
	}

	if state.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}

		state.ID = id.String()
	}

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}

	if state.History == nil {
		state.History = []models.HistoryEntry{}
	}

	state.Version = 1

	err = sr.docs.put(state.ID, state)
	if err != nil {
		return nil, err
	}

	return state.Clone(), nil
}

func (sr *StateRepository) Save(_ context.Context, state *models.StateRecord, expectedVersion int64) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stored, err := sr.docs.get(state.ID)
	if err != nil {
		return err
	}

	if stored == nil || stored.Version != expectedVersion {
		return persistence.NewEntityError("Save", "state", state.ID, persistence.ErrVersionConflict)
	}

	state.Version = expectedVersion + 1

	err = sr.docs.put(state.ID, state)
	if err != nil {
		state.Version = expectedVersion

		return err
	}

	return nil
}

// ListInState returns the records of workflowID currently in state, oldest first.
func (sr *StateRepository) ListInState(_ context.Context, workflowID, state string) ([]*models.StateRecord, error) {
	all, err := sr.docs.all()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.StateRecord, 0)

	for _, s := range all {
		if s.WorkflowID == workflowID && s.CurrentState == state {
			matched = append(matched, s)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (sr *StateRepository) DeleteByWorkflow(_ context.Context, workflowID string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	all, err := sr.docs.all()
	if err != nil {
		return err
	}

	for _, s := range all {
		if s.WorkflowID != workflowID {
			continue
		}

		if err := sr.docs.remove(s.ID); err != nil {
			return err
		}
	}

	return nil
}
