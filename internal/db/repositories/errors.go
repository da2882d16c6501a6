// errors.go translates PostgreSQL constraint failures into repository sentinel errors so the
// service layer can classify them without importing the driver.
package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	// ErrUniqueViolation is returned when an insert or update collides with a unique constraint
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrForeignKeyViolation is returned when a referenced row is missing or a delete is restricted
	ErrForeignKeyViolation = errors.New("foreign key violation")
	// ErrCheckViolation covers CHECK, NOT NULL and value-too-long failures
	ErrCheckViolation = errors.New("check constraint violation")
	// ErrNotFound is returned by mutations whose target row no longer exists
	ErrNotFound = errors.New("row not found")
)

// mapPostgresError wraps a driver error with the matching sentinel. Errors that are not
// *pq.Error, or carry a code we do not classify, are returned unchanged.
func mapPostgresError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s: %w", ErrUniqueViolation, pqErr.Constraint, err)
	case pgerrcode.ForeignKeyViolation, pgerrcode.RestrictViolation:
		return fmt.Errorf("%w: %s: %w", ErrForeignKeyViolation, pqErr.Constraint, err)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.StringDataRightTruncationDataException:
		return fmt.Errorf("%w: %s: %w", ErrCheckViolation, pqErr.Constraint, err)
	default:
		return err
	}
}

// ConstraintName returns the name of the violated constraint, or "" when err does not
// originate from PostgreSQL.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
