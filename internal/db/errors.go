package db

import (
	"errors"
	"strings"

	"github.com/AlexZinkM/split-custody/internal/apperr"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when attempting to insert a record that already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStateConflict is returned when a row exists but is not in the state the transition requires.
	ErrStateConflict = errors.New("record is not in the expected state")
)

// MapDBError maps driver constraint violations to ErrDuplicate.
// MySQL 1062, Postgres 23505 and SQLite UNIQUE messages are matched by text
// so this file does not import driver packages.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	le := strings.ToLower(err.Error())
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return ErrDuplicate
	}
	return err
}

// AppError maps store sentinels to the shared error taxonomy. entity names the
// record in the caller-facing message.
func AppError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("%s not found", entity)
	case errors.Is(err, ErrDuplicate):
		return apperr.Conflict("%s already exists", entity)
	case errors.Is(err, ErrStateConflict):
		return apperr.Conflict("%s is not in a valid state for this operation", entity)
	default:
		return apperr.Internal("failed to access "+entity, err)
	}
}
