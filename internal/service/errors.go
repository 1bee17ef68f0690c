package service

import (
	"errors"
	"fmt"

	"bustrack/internal/repository"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrNotAssigned        = errors.New("no bus assigned")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr maps repository sentinels onto the service taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrBusNotFound):
		return fmt.Errorf("%w: bus not found", ErrNotFound)
	case errors.Is(err, repository.ErrRiderNotFound):
		return fmt.Errorf("%w: user not found", ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Code is the stable machine-readable name of an error, used on the
// websocket where there is no status line.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotAssigned):
		return "not_assigned"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "internal_error"
}
