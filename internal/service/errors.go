package service

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering a username that is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidInput is returned when a request is missing required values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserNotFound is returned when a token's subject no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden is returned when the user lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable is returned when the identity store fails or times
	// out. It is the only error worth retrying.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidAmount is returned for transaction amounts that are not finite numbers.
	ErrInvalidAmount = errors.New("invalid amount")
)

func storeUnavailable(operation string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
