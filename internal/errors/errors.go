package errors

import (
	"errors"
	"fmt"
)

// Common error types for the meetings client
var (
	// Session errors
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrNoRefreshToken  = errors.New("no refresh token stored")
	ErrLoggedOut       = errors.New("logged out while refreshing")
	ErrSessionExpired  = errors.New("session expired")
	ErrMissingPassword = errors.New("email and password are required")

	// Credential storage errors
	ErrCorruptStore = errors.New("credential store is corrupt")
	ErrSealedStore  = errors.New("credential store is sealed")

	// Request errors
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidType   = errors.New("invalid notification type")
	ErrInvalidRange  = errors.New("end time must be after start time")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
