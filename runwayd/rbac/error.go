package rbac

import (
	"errors"
)

const (
	// errUnauthorized is the error message that should be returned to
	// clients when an action is forbidden. It is intentionally vague to
	// prevent disclosing information that a client should not have access
	// to.
	errUnauthorized = "rbac: forbidden"
)

// UnauthorizedError is the error type for authorization errors.
type UnauthorizedError struct {
	// internal is the internal error that should never be shown to the
	// client. It is only for debugging purposes.
	internal error

	subject Subject
	action  Action
	object  Object
}

// IsUnauthorizedError is a convenience function to check if err is
// UnauthorizedError. It is equivalent to errors.As(err, &UnauthorizedError{}).
func IsUnauthorizedError(err error) bool {
	return errors.As(err, &UnauthorizedError{})
}

// ForbiddenWithInternal creates a new error that will return a simple
// "forbidden" to the client, logging internally the more detailed message
// provided.
func ForbiddenWithInternal(internal error, subject Subject, action Action, object Object) UnauthorizedError {
	return UnauthorizedError{
		internal: internal,
		subject:  subject,
		action:   action,
		object:   object,
	}
}

func (UnauthorizedError) Error() string {
	return errUnauthorized
}

// IsUnauthorized implements the httpapi.IsUnauthorizedError interface so
// forbidden resources render as 404s.
func (UnauthorizedError) IsUnauthorized() bool {
	return true
}

func (e UnauthorizedError) Internal() error {
	return e.internal
}

func (e UnauthorizedError) Unwrap() error {
	return e.internal
}
