package errors

import (
	"errors"
	"fmt"
)

// Common error types for the tenant client
var (
	// Authentication errors
	ErrAuthenticationLost  = errors.New("authentication lost")
	ErrNoSession           = errors.New("no active session")
	ErrNoRefreshCredential = errors.New("no refresh credential")
	ErrInvalidCredentials  = errors.New("invalid credentials")

	// Write errors
	ErrWriteFailed   = errors.New("write failed")
	ErrRetryExceeded = errors.New("retry budget exceeded")

	// Storage errors
	ErrKeyNotFound  = errors.New("key not found")
	ErrStoreClosed  = errors.New("store closed")
	ErrCorruptValue = errors.New("corrupt stored value")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
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
