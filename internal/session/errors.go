package session

import (
	"errors"
	"fmt"
)

// Usage errors. They are always wrapped in a *PreconditionError and never
// cost a network call.
var (
	ErrTooFewLines     = errors.New("select at least two lines")
	ErrTooManyLines    = errors.New("too many lines selected")
	ErrUnknownLine     = errors.New("unknown line")
	ErrInvalidWalkTime = errors.New("walk time out of range")
	ErrInvalidCategory = errors.New("invalid place category")
	ErrNoQueryRegion   = errors.New("no query region generated for the current selection")
)

var (
	// ErrUpstream means fewer than two regions survived and at least one was lost upstream.
	ErrUpstream = errors.New("isochrone service unavailable, try again")
	// ErrNoRegions means fewer than two selected lines produced a region for other reasons.
	ErrNoRegions = errors.New("not enough lines produced a reachable region")
	// ErrNoOverlap is an empty result, not a failure.
	ErrNoOverlap = errors.New("selected lines do not overlap")
	// ErrStaleSelection is returned when the selection changed while a generation was in flight.
	ErrStaleSelection = errors.New("selection changed during generation")
)

type PreconditionError struct {
	Err    error
	Detail string
}

func precondition(err error, format string, args ...any) *PreconditionError {
	return &PreconditionError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// IsPrecondition reports whether err is a caller usage error.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
