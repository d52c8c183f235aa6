package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiwari-pos/fulfillment/internal/dispatch"
	"github.com/kiwari-pos/fulfillment/internal/ledger"
	"github.com/kiwari-pos/fulfillment/internal/lifecycle"
)

// Error kinds. Every error returned by the Engine wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = ledger.ErrInsufficientStock
	ErrRiderUnavailable  = errors.New("rider unavailable")
	ErrConflict          = errors.New("conflict, please retry")
	ErrTimeout           = errors.New("timed out")
)

// Validation failures.
var (
	ErrEmptyItems          = fmt.Errorf("%w: items are required", ErrValidation)
	ErrInvalidOrderType    = fmt.Errorf("%w: invalid order_type", ErrValidation)
	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	ErrDiscountTooLarge    = fmt.Errorf("%w: discount exceeds subtotal", ErrValidation)
	ErrMenuItemNotFound    = fmt.Errorf("%w: menu item not found in branch", ErrValidation)
	ErrMenuItemUnavailable = fmt.Errorf("%w: menu item is not available", ErrValidation)
	ErrVariantNotFound     = fmt.Errorf("%w: variant not found", ErrValidation)
	ErrVariantMismatch     = fmt.Errorf("%w: variant does not belong to menu item", ErrValidation)
	ErrNotInRecipe         = fmt.Errorf("%w: ingredient is not part of the recipe", ErrValidation)
	ErrCustomerNotFound    = fmt.Errorf("%w: customer not found in branch", ErrValidation)
	ErrDeliveryDetails     = fmt.Errorf("%w: delivery orders need address and phone", ErrValidation)
	ErrUnknownStatus       = fmt.Errorf("%w: unknown status", ErrValidation)
	ErrReasonRequired      = fmt.Errorf("%w: reason is required", ErrValidation)
	ErrAssigneeRequired    = fmt.Errorf("%w: assigned_to is required", ErrValidation)
	ErrNothingToUpdate     = fmt.Errorf("%w: nothing to update", ErrValidation)
	ErrQuantityExceeded    = fmt.Errorf("%w: quantity_completed exceeds assigned quantity", ErrValidation)
	ErrRiderChoice         = fmt.Errorf("%w: give exactly one of rider_id or auto", ErrValidation)
	ErrRiderRequired       = fmt.Errorf("%w: assigning needs a rider, use the assign command", ErrValidation)
	ErrInvalidCoordinates  = fmt.Errorf("%w: latitude or longitude out of range", ErrValidation)
	ErrZeroDelta           = fmt.Errorf("%w: delta must be non-zero", ErrValidation)
	ErrQuantityPrecision   = fmt.Errorf("%w: quantities allow at most 3 decimal places", ErrValidation)
)

// Missing entities.
var (
	ErrOrderNotFound      = fmt.Errorf("order %w", ErrNotFound)
	ErrOrderItemNotFound  = fmt.Errorf("order item %w", ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("meal assignment %w", ErrNotFound)
	ErrMealNotFound       = fmt.Errorf("available meal %w", ErrNotFound)
	ErrDeliveryNotFound   = fmt.Errorf("delivery %w", ErrNotFound)
	ErrRiderNotFound      = fmt.Errorf("rider %w", ErrNotFound)
	ErrInventoryNotFound  = fmt.Errorf("inventory item %w", ErrNotFound)
	ErrCustomerMissing    = fmt.Errorf("customer %w", ErrNotFound)
)

// Kind names the error class of err for transport mapping. Unrecognised
// errors are "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, lifecycle.ErrUnknownState),
		errors.Is(err, ledger.ErrInsufficientPoints),
		errors.Is(err, ledger.ErrZeroChange),
		errors.Is(err, ledger.ErrReasonRequired):
		return "validation_error"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledger.ErrUnknownItem),
		errors.Is(err, ledger.ErrUnknownCustomer),
		errors.Is(err, ledger.ErrBranchMismatch):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrRiderUnavailable), errors.Is(err, dispatch.ErrNoRider):
		return "rider_unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
