package record

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dukex/ruleflow/pkg/filter"
)

// MemoryStore keeps records in process. Records handed out are live: Set on
// them is visible to later loads even before Save.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*Entity
	methods map[string]map[string]MethodFunc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]*Entity),
		methods: make(map[string]map[string]MethodFunc),
	}
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(model, id string, fields map[string]any) *Entity {
	e := NewEntity(model, id, fields)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[model] == nil {
		s.records[model] = make(map[string]*Entity)
	}

	s.records[model][id] = e

	return e
}

// RegisterMethod makes fn callable as method on records of model.
func (s *MemoryStore) RegisterMethod(model, method string, fn MethodFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.methods[model] == nil {
		s.methods[model] = make(map[string]MethodFunc)
	}

	s.methods[model][method] = fn
}

func (s *MemoryStore) Load(_ context.Context, model, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[model][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", model, id, ErrRecordNotFound)
	}

	return e, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[rec.Model()] == nil {
		s.records[rec.Model()] = make(map[string]*Entity)
	}

	if e, ok := rec.(*Entity); ok {
		s.records[rec.Model()][rec.ID()] = e

		return nil
	}

	s.records[rec.Model()][rec.ID()] = NewEntity(rec.Model(), rec.ID(), rec.Fields())

	return nil
}

func (s *MemoryStore) Create(ctx context.Context, model string, values map[string]any) (Record, error) {
	id, _ := values["id"].(string)
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}

		id = generated.String()
	}

	fields := maps.Clone(values)
	if fields == nil {
		fields = map[string]any{}
	}

	return s.Put(model, id, fields), nil
}

func (s *MemoryStore) Query(_ context.Context, model string, q Query) ([]Record, error) {
	s.mu.RLock()
	ids := slices.Sorted(maps.Keys(s.records[model]))

	candidates := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, s.records[model][id])
	}
	s.mu.RUnlock()

	matched := make([]Record, 0, len(candidates))
	for _, e := range candidates {
		if filter.Matches(q.Domain, e, nil) {
			matched = append(matched, e)
		}
	}

	if q.OrderBy != "" {
		SortBy(matched, q.OrderBy)
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return matched, nil
}

func (s *MemoryStore) Call(ctx context.Context, rec Record, method string, args []any) (any, error) {
	s.mu.RLock()
	fn, ok := s.methods[rec.Model()][method]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", rec.Model(), method, ErrMethodNotFound)
	}

	return fn(ctx, rec, args)
}

// SortBy orders records ascending by field. Records missing the field or
// holding incomparable values sort last, keeping their relative order.
func SortBy(records []Record, field string) {
	sort.SliceStable(records, func(i, j int) bool {
		a, okA := records[i].Get(field)
		b, okB := records[j].Get(field)

		if !okA || a == nil {
			return false
		}

		if !okB || b == nil {
			return true
		}

		c, ok := filter.Compare(a, b)

		return ok && c < 0
	})
}
