package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure surfaced by the filter, executor,
// automation and workflow packages.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration_error"
	KindInvalidState  ErrorKind = "invalid_state"
	KindGuardFailed   ErrorKind = "guard_failed"
	KindNotActive     ErrorKind = "not_active"
	KindActionFailed  ErrorKind = "action_failed"
	KindCycleDetected ErrorKind = "cycle_detected"
	KindNotFound      ErrorKind = "not_found"
)

// GuardClause names the guard part that rejected a transition.
type GuardClause string

const (
	ClausePermission GuardClause = "permission"
	ClauseCondition  GuardClause = "condition"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidState  = errors.New("invalid state")
	ErrGuardFailed   = errors.New("guard failed")
	ErrNotActive     = errors.New("not active")
	ErrActionFailed  = errors.New("action failed")
	ErrCycleDetected = errors.New("cycle detected")
	ErrNotFound      = errors.New("not found")
)

var sentinels = map[ErrorKind]error{
	KindConfiguration: ErrConfiguration,
	KindInvalidState:  ErrInvalidState,
	KindGuardFailed:   ErrGuardFailed,
	KindNotActive:     ErrNotActive,
	KindActionFailed:  ErrActionFailed,
	KindCycleDetected: ErrCycleDetected,
	KindNotFound:      ErrNotFound,
}

// Error is the typed failure returned across package boundaries.
type Error struct {
	Kind   ErrorKind
	Op     string      // Operation being performed (e.g. "ExecuteTransition")
	Detail string      // Human-readable detail
	Clause GuardClause // Only set for KindGuardFailed
	Err    error       // Underlying error, if any
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Clause != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Clause)
	}

	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind as well as anything the
// wrapped error matches.
func (e *Error) Is(target error) bool {
	if sentinel, ok := sentinels[e.Kind]; ok && target == sentinel {
		return true
	}

	return false
}

func newError(kind ErrorKind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func NewConfigurationError(op, format string, args ...any) *Error {
	return newError(KindConfiguration, op, nil, format, args...)
}

func NewInvalidStateError(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, nil, format, args...)
}

func NewGuardFailedError(op string, clause GuardClause, format string, args ...any) *Error {
	e := newError(KindGuardFailed, op, nil, format, args...)
	e.Clause = clause

	return e
}

func NewNotActiveError(op, format string, args ...any) *Error {
	return newError(KindNotActive, op, nil, format, args...)
}

func NewActionFailedError(op string, err error, format string, args ...any) *Error {
	return newError(KindActionFailed, op, err, format, args...)
}

func NewCycleDetectedError(op, format string, args ...any) *Error {
	return newError(KindCycleDetected, op, nil, format, args...)
}

func NewNotFoundError(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, nil, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}

// ClauseOf reports the failing guard clause, or "" when err is not a guard failure.
func ClauseOf(err error) GuardClause {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindGuardFailed {
		return e.Clause
	}

	return ""
}

func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsInvalidState(err error) bool       { return errors.Is(err, ErrInvalidState) }
func IsGuardFailed(err error) bool        { return errors.Is(err, ErrGuardFailed) }
func IsNotActive(err error) bool          { return errors.Is(err, ErrNotActive) }
func IsActionFailed(err error) bool       { return errors.Is(err, ErrActionFailed) }
func IsCycleDetected(err error) bool      { return errors.Is(err, ErrCycleDetected) }
func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
