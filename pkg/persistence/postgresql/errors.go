package postgresql

import (
	"errors"

	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation       = "23505"
	pqInsufficientPrivilege = "42501"
)

// mapError translates PostgreSQL driver errors into the persistence
// sentinels callers match on.
func mapError(err error) error {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return persistence.ErrDuplicateName
		case pqInsufficientPrivilege:
			return persistence.ErrPermissionDenied
		}
	}

	return err
}
