// Package errs holds the error kinds that the rest of the codebase needs to
// tell apart: a timeout is retryable, an auth failure is shown with a fixed
// user-safe message, a partial failure must never be retried blindly.
package errs

type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "request timed out"
	}
	return e.Message
}

func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{Message: message}
}

// IsTimeout reports whether err is a timeout as opposed to a business
// rejection from the remote side.
func IsTimeout(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{Message: message}
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	if e.Message == "" {
		return "internal server error"
	}
	return e.Message
}

func NewInternalError(message string) *InternalError {
	return &InternalError{Message: message}
}

// PartialFailureError marks a composite operation where the money side
// succeeded but the record side did not. The charge is NOT rolled back;
// the mismatch is flagged for reconciliation.
type PartialFailureError struct {
	Message string
}

func (e *PartialFailureError) Error() string {
	return e.Message
}

func NewPartialFailureError(message string) *PartialFailureError {
	return &PartialFailureError{Message: message}
}

func IsPartialFailure(err error) bool {
	_, ok := err.(*PartialFailureError)
	return ok
}
