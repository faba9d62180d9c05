package record

import (
	"fmt"
	"maps"
	"sync"
)

// Entity is a map-backed Record used by the bundled stores and by tests.
type Entity struct {
	mu     sync.RWMutex
	model  string
	id     string
	fields map[string]any
}

func NewEntity(model, id string, fields map[string]any) *Entity {
	f := make(map[string]any, len(fields)+1)
	maps.Copy(f, fields)
	f["id"] = id

	return &Entity{model: model, id: id, fields: f}
}

func (e *Entity) Model() string { return e.model }
func (e *Entity) ID() string    { return e.id }

func (e *Entity) Get(field string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.fields[field]

	return v, ok
}

func (e *Entity) Set(field string, value any) error {
	if field == "id" {
		return fmt.Errorf("field %q is read-only", field)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.fields[field] = value

	return nil
}

func (e *Entity) Fields() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return maps.Clone(e.fields)
}

// Overlay is a read view of a record with some fields replaced, e.g. the
// pre-write values of a change set.
type Overlay struct {
	Record
	Values map[string]any
}

func (o Overlay) Get(field string) (any, bool) {
	if v, ok := o.Values[field]; ok {
		return v, true
	}

	return o.Record.Get(field)
}

func (o Overlay) Fields() map[string]any {
	f := o.Record.Fields()
	maps.Copy(f, o.Values)

	return f
}
