package delivery

import (
	"io"
	"time"
)

// Dispatch is one delivery event against a line item. The cumulative quantity
// on the item is authoritative; dispatches are the history behind it.
type Dispatch struct {
	ID                  int64     `json:"id"`
	OrderID             int64     `json:"order_id"`
	LineItemID          int64     `json:"line_item_id"`
	StockLotID          int64     `json:"stock_lot_id"`
	QuantityDelivered   float64   `json:"quantity_delivered"`
	CumulativeDelivered float64   `json:"cumulative_delivered"`
	DeliveryDate        time.Time `json:"delivery_date"`
	EvidenceRef         string    `json:"evidence_ref,omitempty"`
	RecordedBy          string    `json:"recorded_by"`
	CreatedAt           time.Time `json:"created_at"`
}

// RecordDeliveryInput sets the new cumulative delivered quantity of an item.
type RecordDeliveryInput struct {
	OrderID           int64
	LineItemID        int64
	QuantityDelivered float64
	DeliveryDate      *time.Time
	// Evidence is an optional proof-of-delivery document stored before the write.
	Evidence     io.Reader
	EvidenceName string
}

// DeliveryRequest is the JSON body of a delivery update.
type DeliveryRequest struct {
	QuantityDelivered *float64   `json:"quantity_delivered" validate:"required"`
	DeliveryDate      *time.Time `json:"delivery_date,omitempty"`
}

// DeliveryResult reports the outcome of a delivery update.
type DeliveryResult struct {
	LineItemID        int64     `json:"line_item_id"`
	QuantityDelivered float64   `json:"quantity_delivered"`
	Delta             float64   `json:"delta"`
	Dispatch          *Dispatch `json:"dispatch,omitempty"`
}
