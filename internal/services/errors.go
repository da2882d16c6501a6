// Package services implements the directory's business rules on top of the repositories.
// Each service call that writes runs in exactly one transaction opened through db.Store, checks
// the invariants that need a query (uniqueness, same-organization references, hierarchy
// cycles) and translates storage failures into the domain errors declared here.
package services

import (
	"errors"
	"fmt"

	"github.com/org-directory/org-directory/internal/db/repositories"
	"github.com/org-directory/org-directory/internal/telemetry"
	"github.com/org-directory/org-directory/internal/validation"
)

var (
	// ErrConflict is returned when a write would duplicate a unique name or email
	ErrConflict = errors.New("already exists")
	// ErrReferentialViolation is returned when a write references a missing row, or a delete
	// is blocked by rows that still depend on the target
	ErrReferentialViolation = errors.New("referential integrity violation")
	// ErrValidation matches every *ValidationError through errors.Is
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when the target of a mutation disappears mid-call.
	// Plain lookups report absence as a nil result instead.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a malformed field in a service input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// validateInput runs struct-tag validation and converts the first failure
func validateInput(v *validation.Validator, in interface{}) error {
	if err := v.Struct(in); err != nil {
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			return newValidationError(fe.Field, fe.Message)
		}
		return err
	}
	return nil
}

// constraintSubjects names the row a unique constraint protects, for conflict messages
var constraintSubjects = map[string]string{
	"organizations_name_key": "organization with this name",
	"users_email_key":        "user with this email",
	"roles_name_key":         "role with this name",
}

// translateStoreError maps repository sentinels onto domain errors. Errors it does not
// recognise are returned unchanged.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrUniqueViolation):
		subject, ok := constraintSubjects[repositories.ConstraintName(err)]
		if !ok {
			subject = "record"
		}
		return fmt.Errorf("%s %w", subject, ErrConflict)
	case errors.Is(err, repositories.ErrForeignKeyViolation):
		if c := repositories.ConstraintName(err); c != "" {
			return fmt.Errorf("%w: %s", ErrReferentialViolation, c)
		}
		return ErrReferentialViolation
	case errors.Is(err, repositories.ErrCheckViolation):
		return newValidationError("input", "violates constraint "+repositories.ConstraintName(err))
	case errors.Is(err, repositories.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// outcomeOf classifies an error for the mutation metric
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, ErrConflict):
		return telemetry.OutcomeConflict
	case errors.Is(err, ErrReferentialViolation):
		return telemetry.OutcomeReferential
	case errors.Is(err, ErrValidation):
		return telemetry.OutcomeValidation
	default:
		return telemetry.OutcomeError
	}
}

// recordMutation counts one service write in directory_mutations_total
func recordMutation(entity, operation string, err error) {
	telemetry.DirectoryMutationsTotal.WithLabelValues(entity, operation, outcomeOf(err)).Inc()
}
