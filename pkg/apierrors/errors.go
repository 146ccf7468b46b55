// Package apierrors defines the typed error kinds shared by every
// component.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind is one of the recognized error kinds.
type Kind string

const (
	BrokerUnavailable Kind = "BrokerUnavailable"
	StoreFailure      Kind = "StoreFailure"
	UnknownWordlist   Kind = "UnknownWordlist"
	InvalidInput      Kind = "InvalidInput"
	NoActiveWorkers   Kind = "NoActiveWorkers"
	FuzzerTimeout     Kind = "FuzzerTimeout"
	FuzzerFailure     Kind = "FuzzerFailure"
	MalformedResult   Kind = "MalformedResult"
	DuplicateID       Kind = "DuplicateId"
	NotFound          Kind = "NotFound"
)

// Error wraps an underlying error with a Kind so callers can branch on the
// failure category without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to "" when err isn't an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
