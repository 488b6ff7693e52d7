package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is the uniform error for any failure that leaves
	// the caller without a usable session. UI layers react to it by
	// starting the login flow.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRenewalFailed means the authorization server reported an error
	// during silent refresh.
	ErrRenewalFailed = errors.New("token renewal failed")

	// ErrRenewalTimeout means no renewal completed before the deadline.
	ErrRenewalTimeout = errors.New("token renewal timed out")

	// ErrTokenExpired is returned when storing a token set whose expiry is
	// not in the future.
	ErrTokenExpired = errors.New("token set already expired")

	// ErrRenewalAbandoned resolves a renewal that was outstanding when the
	// session was logged out.
	ErrRenewalAbandoned = errors.New("token renewal abandoned")
)

// AuthError reports that a request could not be authenticated.
// errors.Is(err, ErrNotAuthenticated) is true for every AuthError.
type AuthError struct {
	// Reason is one of ErrRenewalTimeout, ErrRenewalFailed or
	// ErrNotAuthenticated.
	Reason error

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication required: %v: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("authentication required: %v", e.Reason)
}

// Unwrap exposes both the reason and the cause to errors.Is and errors.As.
func (e *AuthError) Unwrap() []error {
	errs := []error{e.Reason}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Is makes every AuthError match ErrNotAuthenticated.
func (e *AuthError) Is(target error) bool {
	return target == ErrNotAuthenticated
}
