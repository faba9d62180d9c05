package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrVersionConflict indicates a state record changed since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists indicates a unique key (code, or workflow/model/record) is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrRuleNotFound indicates an automation rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("automation rule not found")
)

// EntityError wraps repository errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "Save", "UpdateLastRun")
	Entity string // Entity kind, e.g. "workflow", "state"
	ID     string // Entity identifier if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsVersionConflict checks if an error indicates a concurrent state update.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsAlreadyExists checks if an error indicates a unique key violation.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsRuleNotFound checks if an error indicates an automation rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}
