package dedup

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by Registry implementations. Callers wrap them
// freely; the workflow inspects chains with errors.Is.
var (
	ErrFatalSession   = errors.New("session is no longer valid")
	ErrNotFound       = errors.New("entity not found")
	ErrAlreadyClaimed = errors.New("entity already claimed by caller")
	ErrNetwork        = errors.New("network failure")
	ErrInvalid        = errors.New("registry rejected the draft")

	ErrNoDecision            = errors.New("no decision was made")
	ErrUnknownCandidate      = errors.New("intent references an unknown candidate")
	ErrDuplicateNotConfirmed = errors.New("create anyway requires explicit confirmation")
	ErrSuperseded            = errors.New("run superseded by a newer run")
	ErrCancelled             = errors.New("run cancelled")
)

// Kind classifies workflow failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindClaim
	KindCreate
	KindFatalSession
	KindNetwork
	KindCancelled
	KindPrecheck
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindClaim:
		return "claim"
	case KindCreate:
		return "create"
	case KindFatalSession:
		return "fatal_session"
	case KindNetwork:
		return "network"
	case KindCancelled:
		return "cancelled"
	case KindPrecheck:
		return "precheck"
	default:
		return "unknown"
	}
}

// Error is the only error type a workflow run returns.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindNetwork:
		// Transport details stay in the chain; the message is generic.
		return fmt.Sprintf("%s: could not reach the registry, try again", e.Op)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Field, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the same or an edited draft may be resubmitted.
func (e *Error) Recoverable() bool {
	return e.Kind != KindFatalSession && e.Kind != KindCancelled
}

// KindOf returns the Kind of err, or 0 when err is not a *Error.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return 0
}

// IsFatal reports whether err carries a fatal session failure anywhere in its chain.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalSession)
}

func validationError(field string, err error) *Error {
	return &Error{Kind: KindValidation, Op: "normalize", Field: field, Err: err}
}

// wrapErr wraps a collaborator failure. A fatal session error wins over
// everything else in the chain, then cancellation, then transport failures.
func wrapErr(op string, fallback Kind, err error) *Error {
	var werr *Error
	if errors.As(err, &werr) && !IsFatal(err) {
		return werr
	}
	switch {
	case IsFatal(err):
		return &Error{Kind: KindFatalSession, Op: op, Err: err}
	case errors.Is(err, ErrSuperseded), errors.Is(err, ErrCancelled):
		return &Error{Kind: KindCancelled, Op: op, Err: err}
	case errors.Is(err, ErrNetwork):
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	case errors.Is(err, ErrInvalid):
		return &Error{Kind: KindValidation, Op: op, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindCancelled, Op: op, Err: err}
	default:
		return &Error{Kind: fallback, Op: op, Err: err}
	}
}
