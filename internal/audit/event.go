package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event types recorded against an order.
const (
	OrderCreated         = "ORDER_CREATED"
	OrderStatusChanged   = "ORDER_STATUS_CHANGED"
	OrderDiscountChanged = "ORDER_DISCOUNT_CHANGED"
	OrderHeld            = "ORDER_HELD"
	OrderHoldRemoved     = "ORDER_HOLD_REMOVED"
	OrderLocked          = "ORDER_LOCKED"
	OrderUnlocked        = "ORDER_UNLOCKED"
	OrderCompleted       = "ORDER_COMPLETED"
	OrderReopened        = "ORDER_REOPENED"
	CompletionBackfilled = "ORDER_COMPLETION_BACKFILLED"
	DeletionStarted      = "ORDER_DELETION_STARTED"
	DeletionStepFailed   = "ORDER_DELETION_STEP_FAILED"
	OrderDeleted         = "ORDER_DELETED"
	ItemAdded            = "ITEM_ADDED"
	ItemUpdated          = "ITEM_UPDATED"
	ItemDeleted          = "ITEM_DELETED"
	DeliveryRecorded     = "DELIVERY_RECORDED"
	PaymentCreated       = "PAYMENT_CREATED"
	PaymentUpdated       = "PAYMENT_UPDATED"
	PaymentDeleted       = "PAYMENT_DELETED"
)

// Event is one append-only audit entry.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   int64          `json:"order_id"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	ActorID   int64          `json:"actor_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// TimelineFilters narrows an order's audit timeline.
type TimelineFilters struct {
	OrderID   int64
	EventType string
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

// PagingInfo is simple forward/backward paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Events []Event    `json:"events"`
	Paging PagingInfo `json:"paging"`
}
