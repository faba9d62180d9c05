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

type activityDoc = models.ActivityLogEntry

// ActivityRepository stores one file per activity entry.
type ActivityRepository struct {
	mu   *sync.Mutex
	docs collection[activityDoc]
}

func (ar *ActivityRepository) Append(_ context.Context, entry *models.ActivityLogEntry) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return ar.docs.put(entry.ID, entry)
}

func (ar *ActivityRepository) List(_ context.Context, filter persistence.ActivityFilter) ([]*models.ActivityLogEntry, error) {
	all, err := ar.docs.all()
	if err != nil {
		return nil, err
	}

	entries := make([]*models.ActivityLogEntry, 0, len(all))

	for _, entry := range all {
		if filter.WorkflowID != "" && (entry.WorkflowID == nil || *entry.WorkflowID != filter.WorkflowID) {
			continue
		}

		if filter.ModelName != "" && entry.ModelName != filter.ModelName {
			continue
		}

		if filter.RecordID != "" && entry.RecordID != filter.RecordID {
			continue
		}

		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}

		entries = append(entries, entry)
	}

	// V7 ids are time ordered, which keeps entries written in the same instant stable.
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}

		return entries[i].ID > entries[j].ID
	})

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	return entries, nil
}

func (ar *ActivityRepository) DetachWorkflow(_ context.Context, workflowID string) error {
	return ar.detach(func(entry *models.ActivityLogEntry) bool {
		if entry.WorkflowID == nil || *entry.WorkflowID != workflowID {
			return false
		}

		entry.WorkflowID = nil

		return true
	})
}

func (ar *ActivityRepository) DetachTransition(_ context.Context, transitionID string) error {
	return ar.detach(func(entry *models.ActivityLogEntry) bool {
		if entry.TransitionID == nil || *entry.TransitionID != transitionID {
			return false
		}

		entry.TransitionID = nil

		return true
	})
}

func (ar *ActivityRepository) detach(update func(*models.ActivityLogEntry) bool) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	all, err := ar.docs.all()
	if err != nil {
		return err
	}

	for _, entry := range all {
		if !update(entry) {
			continue
		}

		if err := ar.docs.put(entry.ID, entry); err != nil {
			return err
		}
	}

	return nil
}
