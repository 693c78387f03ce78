package sales

import (
	"fmt"
	"time"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusReadyForPayment Status = "READY_FOR_PAYMENT"
	StatusCompleted       Status = "COMPLETED"
)

// PaymentStatus is derived from the order's payments and cached on the order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "READY_FOR_PAYMENT"
	PaymentPartial PaymentStatus = "PARTIAL_PAYMENT"
	PaymentFull    PaymentStatus = "FULL_PAYMENT"
)

// Listing tags computed for the extended order listing.
const (
	TagOnHold             = "ON_HOLD"
	TagLocked             = "LOCKED"
	TagUnlockWindowOpen   = "UNLOCK_WINDOW_OPEN"
	TagPartiallyDelivered = "PARTIALLY_DELIVERED"
	TagFullyDelivered     = "FULLY_DELIVERED"
	TagUnpaid             = "UNPAID"
	TagPartiallyPaid      = "PARTIALLY_PAID"
	TagPaid               = "PAID"
)

// Order is a customer order header.
type Order struct {
	ID                int64         `json:"id"`
	OrderNumber       string        `json:"order_number"`
	CustomerID        int64         `json:"customer_id"`
	OrderDate         time.Time     `json:"order_date"`
	Status            Status        `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	IsOnHold          bool          `json:"is_on_hold"`
	HoldReason        string        `json:"hold_reason,omitempty"`
	HeldBy            string        `json:"held_by,omitempty"`
	HeldAt            *time.Time    `json:"held_at,omitempty"`
	IsLocked          bool          `json:"is_locked"`
	LockedAt          *time.Time    `json:"locked_at,omitempty"`
	LockedBy          string        `json:"locked_by,omitempty"`
	UnlockDeadline    *time.Time    `json:"unlock_deadline,omitempty"`
	DiscountAmount    float64       `json:"discount_amount"`
	TotalAmount       float64       `json:"total_amount"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	DeletionStartedAt *time.Time    `json:"deletion_started_at,omitempty"`
	CreatedBy         string        `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Items             []LineItem    `json:"items,omitempty"`
}

// NetTotal is the gross total minus discount, the payment denominator.
func (o Order) NetTotal() float64 {
	return o.TotalAmount - o.DiscountAmount
}

// LineItem is one lot drawn by an order.
type LineItem struct {
	ID                int64     `json:"id"`
	OrderID           int64     `json:"order_id"`
	StockLotID        int64     `json:"stock_lot_id"`
	Quantity          float64   `json:"quantity"`
	UnitPrice         float64   `json:"unit_price"`
	LineTotal         float64   `json:"line_total"`
	QuantityDelivered float64   `json:"quantity_delivered"`
	InventoryRestored bool      `json:"inventory_restored"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Undelivered is the quantity still to ship.
func (li LineItem) Undelivered() float64 {
	if v := li.Quantity - li.QuantityDelivered; v > 0 {
		return v
	}
	return 0
}

// ItemInput describes a line item to add or the new shape of an existing one.
type ItemInput struct {
	StockLotID int64   `json:"stock_lot_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"gt=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
}

func (in ItemInput) validate() error {
	if in.StockLotID <= 0 {
		return fmt.Errorf("stock lot required")
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if in.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative")
	}
	return nil
}

// CreateOrderRequest opens an order, optionally with initial items.
type CreateOrderRequest struct {
	CustomerID     int64       `json:"customer_id" validate:"required,gt=0"`
	OrderDate      *time.Time  `json:"order_date,omitempty"`
	DiscountAmount float64     `json:"discount_amount" validate:"gte=0"`
	Items          []ItemInput `json:"items" validate:"dive"`
}

// StatusRequest asks for a manual status change.
type StatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ReasonRequest carries the mandatory reason for hold and unlock.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// DiscountRequest sets the order discount.
type DiscountRequest struct {
	DiscountAmount float64 `json:"discount_amount" validate:"gte=0"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     Status
	CustomerID int64
	OnHold     *bool
	Locked     *bool
	Page       int
	PerPage    int
}

// OrderSummary is an order row of the extended listing.
type OrderSummary struct {
	Order
	CustomerType      string   `json:"customer_type,omitempty"`
	QuantityOrdered   float64  `json:"quantity_ordered"`
	QuantityDelivered float64  `json:"quantity_delivered"`
	Tags              []string `json:"tags"`
}

// LockInfo reports lock metadata and the unlock countdown.
type LockInfo struct {
	OrderID          int64      `json:"order_id"`
	IsLocked         bool       `json:"is_locked"`
	LockedAt         *time.Time `json:"locked_at,omitempty"`
	LockedBy         string     `json:"locked_by,omitempty"`
	UnlockDeadline   *time.Time `json:"unlock_deadline,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	CanUnlock        bool       `json:"can_unlock"`
	CanLock          bool       `json:"can_lock"`
}

// DeleteOptions controls order deletion.
type DeleteOptions struct {
	// Confirm skips the interactive preview and runs the deletion.
	Confirm bool
}

// DeletionPlan lists what deleting an order will touch.
type DeletionPlan struct {
	OrderID           int64   `json:"order_id"`
	OrderNumber       string  `json:"order_number"`
	LineItems         int     `json:"line_items"`
	DeliveredItems    int     `json:"delivered_items"`
	QuantityToRestore float64 `json:"quantity_to_restore"`
	Payments          int     `json:"payments"`
	Invoices          int     `json:"invoices"`
	Dispatches        int     `json:"dispatches"`
}

// DeletionResult reports the executed steps.
type DeletionResult struct {
	Plan             DeletionPlan `json:"plan"`
	CompletedSteps   []string     `json:"completed_steps"`
	QuantityRestored float64      `json:"quantity_restored"`
}

// StepError identifies the step of a multi-step write that failed. Earlier
// steps stay committed; every step is safe to rerun.
type StepError struct {
	OrderID int64
	Step    int
	Name    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("order %d: step %d (%s) failed, earlier steps committed: %v", e.OrderID, e.Step, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
