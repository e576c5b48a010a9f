package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies dispatch failures. It is the only part of an error that
// callers are expected to branch on.
type Kind string

const (
	KindRegistrationConflict Kind = "registration_conflict"
	KindNotFound             Kind = "not_found"
	KindOrganizationAccess   Kind = "organization_access"
	KindInternal             Kind = "internal_execution_error"
)

// Reasons recorded on organization access errors. They are logged but never
// rendered to callers, so a missing org context and a missing membership look
// identical from outside.
const (
	ReasonContextRequired        = "organization_context_required"
	ReasonInsufficientAccess     = "insufficient_organization_access"
	ReasonAuthenticationRequired = "authentication_required"
)

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrRegistrationConflict = &Error{Kind: KindRegistrationConflict, Message: "procedure already registered"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "procedure not found"}
	ErrOrganizationAccess   = &Error{Kind: KindOrganizationAccess, Message: "resource not found"}
	ErrInternalExecution    = &Error{Kind: KindInternal, Message: "internal execution error"}
)

// Error is the normalized failure returned across the dispatch boundary.
type Error struct {
	Kind      Kind
	Procedure string
	Message   string

	// Reason carries the internal cause of an organization access failure.
	Reason string

	// Timeout is set when an internal error was caused by the execution deadline.
	Timeout bool

	Cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the dispatch kind of err, or "" when err is not a dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func conflictError(name, message string) *Error {
	return &Error{
		Kind:      KindRegistrationConflict,
		Procedure: name,
		Message:   message,
	}
}

func notFoundError(name string) *Error {
	return &Error{
		Kind:      KindNotFound,
		Procedure: name,
		Message:   fmt.Sprintf("procedure not found: %s", name),
	}
}

// NewInternalError wraps cause as an internal execution failure of procedure name.
// The message embeds both the procedure name and the original message.
func NewInternalError(name string, cause error) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:      KindInternal,
		Procedure: name,
		Message:   fmt.Sprintf("procedure %q failed: %s", name, msg),
		Cause:     cause,
	}
}

// NewOrganizationAccessError builds the caller-visible "not found" style error
// used for every org authorization failure.
func NewOrganizationAccessError(name, reason string) *Error {
	return &Error{
		Kind:      KindOrganizationAccess,
		Procedure: name,
		Message:   "resource not found",
		Reason:    reason,
	}
}
