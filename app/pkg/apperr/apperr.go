// Package apperr carries the error taxonomy shared by the schedule engine
// and the HTTP layer. Every failure surfaced to a caller has a Kind the
// caller can branch on and a message a person can read.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindValidation covers caller mistakes: missing day, no tasks to
	// schedule, no schedule to settle.
	KindValidation Kind = "validation"
	// KindUpstreamFormat covers oracle responses that fail structural or
	// schema checks. Not retried automatically.
	KindUpstreamFormat Kind = "upstream_format"
	// KindUpstreamConflict covers oracle placements that overlap each other
	// or fixed blocks.
	KindUpstreamConflict Kind = "upstream_conflict"
	// KindStore covers persistence failures.
	KindStore Kind = "store"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind carried by err, or "" when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
