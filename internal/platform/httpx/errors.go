// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type errorMapping struct {
	target error
	status int
	title  string
}

var errorMappings = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrOrderLocked, http.StatusConflict, "Order Locked"},
	{shared.ErrInsufficientInventory, http.StatusUnprocessableEntity, "Insufficient Inventory"},
	{shared.ErrInvalidDeliveryRange, http.StatusUnprocessableEntity, "Invalid Delivery Range"},
	{shared.ErrDeliveredItemImmutable, http.StatusConflict, "Delivered Item Immutable"},
	{shared.ErrQuantityBelowDelivered, http.StatusUnprocessableEntity, "Quantity Below Delivered"},
	{shared.ErrAlreadyOnHold, http.StatusConflict, "Already On Hold"},
	{shared.ErrNotOnHold, http.StatusConflict, "Not On Hold"},
	{shared.ErrAlreadyLocked, http.StatusConflict, "Already Locked"},
	{shared.ErrNotLocked, http.StatusConflict, "Not Locked"},
	{shared.ErrUnlockWindowExpired, http.StatusConflict, "Unlock Window Expired"},
	{shared.ErrInvalidManualTransition, http.StatusUnprocessableEntity, "Invalid Manual Transition"},
	{shared.ErrOrderNotCompleted, http.StatusConflict, "Order Not Completed"},
	{shared.ErrConfirmationRequired, http.StatusConflict, "Confirmation Required"},
	{shared.ErrDeletionInProgress, http.StatusConflict, "Deletion In Progress"},
	{shared.ErrConflict, http.StatusConflict, "Conflict"},
	{shared.ErrIdempotencyConflict, http.StatusConflict, "Duplicate Request"},
}

// StatusFor returns the HTTP status and title for a domain error.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.title
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}
