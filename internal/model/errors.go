package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by the sequence allocator, the credential migrator and
// the stores behind them. Callers match them with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrValidation           = errors.New("validation failed")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrAuthenticationFailed = errors.New("invalid credentials")
)

// Error is an operation error with a stable Kind. Msg is human-readable
// context and must never contain secrets.
type Error struct {
	Op   string
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a persistence failure as ErrStoreUnavailable unless it
// already carries one of the known kinds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrValidation, ErrStoreUnavailable, ErrAuthenticationFailed} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &storeError{op: op, err: err}
}

// storeError keeps the underlying driver error reachable for errors.As while
// reporting ErrStoreUnavailable to errors.Is.
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, ErrStoreUnavailable, e.err)
}

func (e *storeError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *storeError) Unwrap() error { return e.err }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err represents ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err represents ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
