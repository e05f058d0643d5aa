// Package syncerr classifies engine failures into a small set of kinds so
// callers can branch on what went wrong instead of matching error strings.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an engine error.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors not produced by this package.
	KindUnknown Kind = iota
	// KindValidation covers malformed input detected before any I/O.
	KindValidation
	// KindState covers precondition failures: not empty, already initialized,
	// no project, project missing remotely.
	KindState
	// KindTransport covers blob store failures (auth, network, remote errors).
	KindTransport
	// KindIO covers local filesystem failures.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindState:
		return "state error"
	case KindTransport:
		return "transport error"
	case KindIO:
		return "io error"
	default:
		return "unknown error"
	}
}

// Error is an engine error with its kind and the operation that failed.
type Error struct {
	Kind Kind
	// Op is the engine operation, e.g. "push" or "clone".
	Op string
	// Path is the local path or remote key involved, if any.
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithPath attaches a path or key to the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation wraps err as a validation error.
func Validation(op string, err error) *Error { return newError(KindValidation, op, err) }

// State wraps err as a state error.
func State(op string, err error) *Error { return newError(KindState, op, err) }

// Transport wraps err as a transport error.
func Transport(op string, err error) *Error { return newError(KindTransport, op, err) }

// IO wraps err as a local filesystem error.
func IO(op string, err error) *Error { return newError(KindIO, op, err) }

// Validationf formats a new validation error.
func Validationf(op, format string, args ...any) *Error {
	return Validation(op, fmt.Errorf(format, args...))
}

// Statef formats a new state error.
func Statef(op, format string, args ...any) *Error {
	return State(op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsState(err error) bool      { return KindOf(err) == KindState }
func IsTransport(err error) bool  { return KindOf(err) == KindTransport }
func IsIO(err error) bool         { return KindOf(err) == KindIO }
