package errors

import (
	"fmt"
	"time"
)

// Kind classifies an error by how the router reacts to it.
type Kind int

const (
	// KindValidation covers empty identities, bodies and recipients. The
	// offending event is dropped and processing continues.
	KindValidation Kind = iota
	// KindProtocol covers unparseable payloads and unknown event types.
	// Dropped and logged; the connection stays open.
	KindProtocol
	// KindPersistence covers history-store read/write failures. Logged; live
	// delivery still proceeds.
	KindPersistence
	// KindTransport covers send failures and abrupt disconnects. The
	// connection is force-closed and unbound, same as a clean leave.
	KindTransport
)

// Error is a classified error with a stable code for log correlation.
type Error struct {
	Kind      Kind      `json:"kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind and code so predeclared errors work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New creates a new classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap attaches classification to an underlying error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// WithDetails adds details to an error.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// Predeclared validation errors backing the router's drop decisions.
var (
	ErrEmptyIdentity  = New(KindValidation, "empty_identity", "identity is empty after trimming")
	ErrEmptyBody      = New(KindValidation, "empty_body", "message body is empty after trimming")
	ErrEmptyRecipient = New(KindValidation, "empty_recipient", "private message has no recipient")
	ErrSenderUnbound  = New(KindValidation, "sender_unbound", "connection has no bound identity")
)
