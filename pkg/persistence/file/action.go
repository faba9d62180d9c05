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

type actionDoc = models.ServerAction

// ActionRepository handles server action files.
type ActionRepository struct {
	mu   *sync.Mutex
	docs collection[actionDoc]
}

func (ar *ActionRepository) Save(_ context.Context, action *models.ServerAction) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	all, err := ar.docs.all()
	if err != nil {
		return err
	}

	for _, other := range all {
		if other.Code == action.Code && other.ID != action.ID {
			return persistence.NewEntityError("Save", "action", action.Code, persistence.ErrAlreadyExists)
		}
	}

	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		action.ID = id.String()
	}

	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	return ar.docs.put(action.ID, action)
}

func (ar *ActionRepository) GetByID(_ context.Context, id string) (*models.ServerAction, error) {
	return ar.docs.get(id)
}

func (ar *ActionRepository) GetByCode(ctx context.Context, code string) (*models.ServerAction, error) {
	all, err := ar.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, action := range all {
		if action.Code == code {
			return action, nil
		}
	}

	return nil, nil
}

// List returns actions ordered by sequence, then code.
func (ar *ActionRepository) List(_ context.Context) ([]*models.ServerAction, error) {
	all, err := ar.docs.all()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Sequence != all[j].Sequence {
			return all[i].Sequence < all[j].Sequence
		}

		return all[i].Code < all[j].Code
	})

	return all, nil
}

func (ar *ActionRepository) Delete(_ context.Context, id string) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	return ar.docs.remove(id)
}
