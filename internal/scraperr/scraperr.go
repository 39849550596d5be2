// Package scraperr defines the closed set of error kinds every fault raised
// while talking to the portal is tagged with.
package scraperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	// KindFatal is anything that does not fit any other kind, it is never retried.
	KindFatal Kind = iota
	// KindValidation is missing or malformed input, it fails before any session is touched.
	KindValidation
	// KindAuthentication is rejected credentials or a session that unexpectedly finds itself logged out.
	KindAuthentication
	// KindTransient is a network reset, timeout or navigation timeout.
	KindTransient
	// KindContentShape is a page that rendered neither a data container nor a "no data" indicator in time.
	KindContentShape
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindTransient:
		return "transient"
	case KindContentShape:
		return "content_shape"
	default:
		return "fatal"
	}
}

// ParseKind is the inverse of Kind.String, unknown names are KindFatal.
func ParseKind(name string) Kind {
	for _, k := range []Kind{KindValidation, KindAuthentication, KindTransient, KindContentShape} {
		if k.String() == name {
			return k
		}
	}
	return KindFatal
}

// Error is a fault tagged with its kind at the place it was raised.
type Error struct {
	Kind Kind
	// Op is the operation that failed, ex. `auth.login` or `engine.marks`.
	Op      string
	Message string
	Err     error
	// SessionFatal marks errors after which the browser context can no longer be used.
	SessionFatal bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap tags err with kind, it returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err, SessionFatal: matchesSessionFatal(err)}
}

// Wrapf is Wrap with an additional message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:         kind,
		Op:           op,
		Message:      fmt.Sprintf(format, args...),
		Err:          err,
		SessionFatal: matchesSessionFatal(err),
	}
}

// FromAutomation tags an error coming out of the browser automation layer,
// the kind is derived with Classify since the layer does not tag its errors.
func FromAutomation(op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{
		Kind:         Classify(err),
		Op:           op,
		Err:          err,
		SessionFatal: matchesSessionFatal(err),
	}
}

// Validation is a shorthand for New(KindValidation, op, message).
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// KindOf returns the kind err is tagged with, untagged errors are classified
// from their message.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return Classify(err)
}

// IsRetryable returns true for transient faults and content-ready wait
// timeouts, an element that did not render in time may render on the next try.
// An authentication error is retryable too if it also carries a transient
// signature, ex. a timed out wait for the login form.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient, KindContentShape:
		return true
	case KindAuthentication:
		return matchesRetryable(err)
	default:
		return false
	}
}

func IsAuth(err error) bool {
	return err != nil && KindOf(err) == KindAuthentication
}

func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsSessionFatal returns true if the browser context that produced err can
// no longer be trusted, ex. the target was closed or a navigation was aborted.
func IsSessionFatal(err error) bool {
	if err == nil {
		return false
	}
	var tagged *Error
	if errors.As(err, &tagged) && tagged.SessionFatal {
		return true
	}
	return matchesSessionFatal(err)
}

// Message returns the human readable part of err, without operation prefixes.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Message != "" {
		return tagged.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}
	return err.Error()
}
