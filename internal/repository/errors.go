package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrBusNotFound     = errors.New("bus not found")
	ErrRiderNotFound   = errors.New("rider not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrDuplicate       = errors.New("duplicate value")
)

const uniqueViolation = "23505"

// translate maps driver errors onto the package sentinels.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &DuplicateError{Constraint: pgErr.ConstraintName, err: err}
	}
	return err
}

// DuplicateError names the unique constraint that rejected a write.
type DuplicateError struct {
	Constraint string
	err        error
}

func (e *DuplicateError) Error() string {
	if e.Constraint == "" {
		return ErrDuplicate.Error()
	}
	return ErrDuplicate.Error() + ": " + e.Constraint
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

func (e *DuplicateError) Unwrap() error {
	return e.err
}
