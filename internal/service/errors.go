package service

import (
	"errors"
	"fmt"
	"strings"

	"campusride/internal/repository"
)

var (
	// ErrValidation is returned when input is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a state machine forbids the requested move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInsufficientSeats is returned when a ride has fewer free seats than requested.
	ErrInsufficientSeats = errors.New("insufficient seats")

	// ErrGenderRestriction is returned when a non-female rider books a femaleOnly ride.
	ErrGenderRestriction = errors.New("ride is restricted to female riders")

	// ErrContention is returned when a guarded section stayed busy through every retry.
	// Callers may retry.
	ErrContention = errors.New("resource busy, retry later")

	// ErrInsufficientBalance is returned when a payer cannot cover an amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateRating is returned when the (from, to, ride) triple is already rated.
	ErrDuplicateRating = errors.New("rating already submitted")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrConsistency is returned when stored state breaks a bound it must keep.
	ErrConsistency = errors.New("consistency violation")

	// ErrForbidden is returned when the caller does not own the entity it acts on.
	ErrForbidden = errors.New("forbidden")
)

// kinds lists every sentinel Error.Kind may hold, in match priority.
var kinds = []error{
	ErrValidation,
	ErrInvalidTransition,
	ErrInsufficientSeats,
	ErrGenderRestriction,
	ErrContention,
	ErrInsufficientBalance,
	ErrDuplicateRating,
	ErrNotFound,
	ErrConsistency,
	ErrForbidden,
}

// Error describes a failed operation: which rule failed on which entity.
// errors.Is matches it against its Kind and against the wrapped cause.
type Error struct {
	Kind   error
	Op     string
	Entity string
	ID     string
	Rule   string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Entity != "" {
		fmt.Fprintf(&b, " (%s", e.Entity)
		if e.ID != "" {
			fmt.Fprintf(&b, " %s", e.ID)
		}
		b.WriteString(")")
	}
	if e.Rule != "" {
		b.WriteString(": ")
		b.WriteString(e.Rule)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, entity, id, rule string) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, ID: id, Rule: rule}
}

func validationError(op, entity, rule string) *Error {
	return newError(ErrValidation, op, entity, "", rule)
}

func notFound(op, entity, id string) *Error {
	return newError(ErrNotFound, op, entity, id, entity+" does not exist")
}

// wrapStore annotates an unexpected repository failure with the operation.
// Not-found results are translated to the domain kind.
func wrapStore(op, entity, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(op, entity, id)
	}
	return fmt.Errorf("%s: %s %s: %w", op, entity, id, err)
}

// KindOf returns the sentinel kind carried by err, or nil for errors the
// domain does not classify.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns the wire name of a kind, e.g. "InsufficientSeats".
func KindName(kind error) string {
	switch kind {
	case ErrValidation:
		return "ValidationError"
	case ErrInvalidTransition:
		return "InvalidTransition"
	case ErrInsufficientSeats:
		return "InsufficientSeats"
	case ErrGenderRestriction:
		return "GenderRestriction"
	case ErrContention:
		return "Contention"
	case ErrInsufficientBalance:
		return "InsufficientBalance"
	case ErrDuplicateRating:
		return "DuplicateRating"
	case ErrNotFound:
		return "NotFound"
	case ErrConsistency:
		return "ConsistencyError"
	case ErrForbidden:
		return "Forbidden"
	}
	return "Internal"
}
