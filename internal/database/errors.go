package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when a write violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// mapError translates driver errors into the package's sentinels. An id
// that is not a valid UUID cannot match any row, so it reads as
// sql.ErrNoRows.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case uniqueViolation:
		return ErrDuplicate
	case invalidTextRepresentation:
		return sql.ErrNoRows
	default:
		return err
	}
}
