package shared

import "errors"

var (
	// ErrNotFound indicates an order, item, lot or payment is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
	// ErrOrderLocked is returned for any mutation of a locked order except unlock.
	ErrOrderLocked = errors.New("order is locked")
	// ErrInsufficientInventory indicates a requested quantity exceeds computed availability.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrInvalidDeliveryRange indicates a delivered quantity outside [0, quantity].
	ErrInvalidDeliveryRange = errors.New("delivered quantity out of range")
	// ErrDeliveredItemImmutable is returned when editing an item that has deliveries.
	ErrDeliveredItemImmutable = errors.New("line item has deliveries and cannot be changed")
	// ErrQuantityBelowDelivered is returned when reducing quantity under the delivered amount.
	ErrQuantityBelowDelivered = errors.New("quantity below delivered amount")
	// ErrAlreadyOnHold indicates the order is already held.
	ErrAlreadyOnHold = errors.New("order already on hold")
	// ErrNotOnHold indicates the order is not held.
	ErrNotOnHold = errors.New("order not on hold")
	// ErrAlreadyLocked indicates the order is already locked.
	ErrAlreadyLocked = errors.New("order already locked")
	// ErrNotLocked indicates unlock was requested for an unlocked order.
	ErrNotLocked = errors.New("order not locked")
	// ErrUnlockWindowExpired indicates the unlock grace window has lapsed.
	ErrUnlockWindowExpired = errors.New("unlock window expired")
	// ErrInvalidManualTransition indicates a status that may only be derived.
	ErrInvalidManualTransition = errors.New("invalid manual status transition")
	// ErrOrderNotCompleted indicates lock was requested before completion.
	ErrOrderNotCompleted = errors.New("order not completed")
	// ErrConfirmationRequired indicates a destructive call without explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrDeletionInProgress indicates the order is partially deleted and awaiting reconciliation.
	ErrDeletionInProgress = errors.New("order deletion in progress")
	// ErrConflict indicates the row changed between read and write.
	ErrConflict = errors.New("concurrent modification")
)
