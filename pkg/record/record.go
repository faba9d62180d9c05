// Package record defines the contract between the rule engine and the host
// application's business records.
package record

import (
	"context"
	"errors"

	"github.com/dukex/ruleflow/pkg/models"
)

var (
	// ErrRecordNotFound is returned by Store.Load when no record matches.
	ErrRecordNotFound = errors.New("record not found")

	// ErrMethodNotFound is returned by Store.Call for an unknown method.
	ErrMethodNotFound = errors.New("method not found")
)

// Record is a single host business object.
type Record interface {
	Model() string
	ID() string
	Get(field string) (any, bool)
	Set(field string, value any) error
	// Fields returns a snapshot of all field values.
	Fields() map[string]any
}

// Query selects records of one model.
type Query struct {
	Domain models.Domain
	// OrderBy is a field name sorted ascending. Empty means store order.
	OrderBy string
	// Limit caps the number of records returned. Zero means no limit.
	Limit int
}

// MethodFunc implements a named business method callable by CallMethod actions.
type MethodFunc func(ctx context.Context, rec Record, args []any) (any, error)

// Store is the host persistence the engine reads and mutates records through.
type Store interface {
	Load(ctx context.Context, model, id string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Create(ctx context.Context, model string, values map[string]any) (Record, error)
	Query(ctx context.Context, model string, q Query) ([]Record, error)
	Call(ctx context.Context, rec Record, method string, args []any) (any, error)
}

// Ref identifies a record without carrying its fields.
type Ref struct {
	Model string `json:"model"`
	ID    string `json:"id"`
}

func RefOf(rec Record) Ref {
	return Ref{Model: rec.Model(), ID: rec.ID()}
}
