// Package apperr carries a failure kind and its original cause up to the
// boundary that formats it for display.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for display and status mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindNetwork      Kind = "network"
	KindPersistence  Kind = "persistence"
	KindDatabase     Kind = "database"
	KindUnauthorized Kind = "unauthorized"
	KindUnknown      Kind = "unknown"
)

// Error is a tagged failure. Message is safe to show to a user; Err keeps the cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Display returns the user-facing message.
func (e *Error) Display() string {
	if e.Message == "" {
		return "Something went wrong"
	}
	return e.Message
}

// New returns an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error with cause err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the display message for err. Untagged errors get a generic message
// so internal detail never reaches the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Display()
	}
	return "Something went wrong"
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
