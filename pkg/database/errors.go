package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/retailops/retailops-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "qty_nonnegative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "sent_within_requested"):
		return errors.Invariant("INVARIANT_OVERPACK", "sent quantity exceeds requested quantity")

	case strings.Contains(constraint, "received_within_sent"):
		return errors.Invariant("INVARIANT_OVER_RECEIPT", "received quantity exceeds sent quantity")

	case strings.Contains(constraint, "state_valid"):
		return errors.Validation(map[string]string{
			"state": "must be one of: open, packing, packaged, sent, receiving, partial, received",
		})

	case strings.Contains(constraint, "delivery_mode_valid"):
		return errors.Validation(map[string]string{
			"delivery_mode": "must be one of: courier, pickup, dropoff, internal",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "transfer_items_product"):
		return "this product already has a line on the transfer"
	case strings.Contains(constraint, "pack_locks"):
		return "the transfer is already locked"
	case strings.Contains(constraint, "idempotency"):
		return "a request with this key is already recorded"
	default:
		return "a record with these values already exists"
	}
}
