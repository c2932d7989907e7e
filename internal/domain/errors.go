// Package domain defines the error taxonomy shared by the registration core.
// Every failure a service returns is tagged with a Kind so the HTTP layer can
// map it to a status code and clients can branch on it.
package domain

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown covers unexpected infrastructure failures.
	KindUnknown Kind = iota
	// KindNotFound: the entity does not exist.
	KindNotFound
	// KindInvalidState: the entity exists but is in the wrong lifecycle
	// state for the operation (unpublished event, past event, already
	// cancelled registration, ...).
	KindInvalidState
	// KindConflict: the operation would violate a uniqueness or capacity
	// invariant (duplicate registration, full event, duplicate guest).
	KindConflict
	// KindForbidden: ownership or authorization failure.
	KindForbidden
	// KindValidation: malformed input shape (too many guests, bad email
	// domain, duplicate guest emails in one request).
	KindValidation
)

// HintJoinWaitlist is attached to the capacity Conflict raised when an event
// is exactly full, so clients can offer the waitlist instead.
const HintJoinWaitlist = "join-waitlist"

// Error is a tagged, human-readable domain failure.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// ConflictWithHint builds a Conflict carrying a machine-readable hint.
func ConflictWithHint(hint, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), Hint: hint}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not a domain
// error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// HintOf extracts the hint from err, if any.
func HintOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Hint
	}
	return ""
}
