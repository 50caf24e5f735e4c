// Package errors provides custom error types for the vulngraph engine.
// Every failure crossing a package boundary is classified by Kind so callers
// can branch on the category without inspecting message text.
package errors

import (
	"errors"
	"fmt"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all vulngraph errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "graph.ResolveOrCreate")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota

	// KindInvalidReference marks a malformed package or CPE reference
	// string. Never retried, surfaced to the caller.
	KindInvalidReference

	// KindNotFound marks a queried entity that does not exist where the
	// caller explicitly requires existence. Plain read paths return nil
	// results instead of this kind.
	KindNotFound

	// KindConflict marks a lost race on identity creation. Resolved
	// internally by re-querying; callers should never observe it.
	KindConflict

	// KindStorage marks an opaque I/O failure from the durable store,
	// surfaced unchanged.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInvalidReference:
		return "invalid_reference"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op then Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with an operation, preserving its Kind when the
// underlying error already carries one.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Op: op, Err: err}
}

// Storage wraps an opaque store failure.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// InvalidReference reports an unparseable package/CPE reference.
func InvalidReference(op, ref string, err error) error {
	return &Error{
		Kind:    KindInvalidReference,
		Op:      op,
		Message: fmt.Sprintf("invalid reference %q", ref),
		Err:     err,
	}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsInvalidReference checks if the error is a malformed-reference error.
func IsInvalidReference(err error) bool {
	return GetKind(err) == KindInvalidReference
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return GetKind(err) == KindNotFound
}

// IsConflict checks if the error is an identity-creation race.
func IsConflict(err error) bool {
	return GetKind(err) == KindConflict
}

// IsStorage checks if the error is a storage-layer failure.
func IsStorage(err error) bool {
	return GetKind(err) == KindStorage
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrNotFound is returned where a caller explicitly requires an
	// entity to exist.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "entity not found"}

	// ErrConflict is returned internally when an identity insert loses a
	// uniqueness race. It is resolved by re-querying, never surfaced.
	ErrConflict = &Error{Kind: KindConflict, Message: "identity already created concurrently"}
)
