package inventory

import (
	"time"
)

// StockLot is a batch of a finished good with a fixed produced quantity.
// QuantityAvailable is a denormalized running counter moved only by deliveries
// (down) and order deletion (back up), bounded by [0, QuantityCreated].
type StockLot struct {
	ID                int64     `json:"id"`
	ProductType       string    `json:"product_type"`
	BatchReference    string    `json:"batch_reference"`
	Unit              string    `json:"unit"`
	QuantityCreated   float64   `json:"quantity_created"`
	QuantityAvailable float64   `json:"quantity_available"`
	QuantityWasted    float64   `json:"quantity_wasted"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Label returns the human readable lot identifier used in messages.
func (l StockLot) Label() string {
	if l.BatchReference != "" {
		return l.BatchReference
	}
	return l.ProductType
}

// Reservation holds stock for exactly one active order line item.
type Reservation struct {
	ID               int64     `json:"id"`
	OrderID          int64     `json:"order_id"`
	LineItemID       int64     `json:"line_item_id"`
	StockLotID       int64     `json:"stock_lot_id"`
	QuantityReserved float64   `json:"quantity_reserved"`
	CreatedAt        time.Time `json:"created_at"`
}

// AvailabilityQuery scopes the reservation-aware availability sum. Reservations
// belonging to ExcludeOrderID or ExcludeLineItemID are not subtracted.
type AvailabilityQuery struct {
	StockLotID        int64
	ExcludeOrderID    int64
	ExcludeLineItemID int64
}

// Availability is the breakdown served to callers browsing a lot.
type Availability struct {
	StockLotID        int64   `json:"stock_lot_id"`
	Unit              string  `json:"unit"`
	QuantityCreated   float64 `json:"quantity_created"`
	QuantityAvailable float64 `json:"quantity_available"`
	Delivered         float64 `json:"delivered"`
	Reserved          float64 `json:"reserved"`
	Wasted            float64 `json:"wasted"`
	ForSale           float64 `json:"for_sale"`
	ForDisplay        float64 `json:"for_display"`
}

// ReserveInput describes a new reservation for a line item. Delivered is the
// portion of Quantity already shipped; only the remainder is checked.
type ReserveInput struct {
	OrderID    int64
	LineItemID int64
	StockLotID int64
	Quantity   float64
	Delivered  float64
}

// ReplaceInput swaps the reservation held by a line item.
type ReplaceInput struct {
	OrderID    int64
	LineItemID int64
	StockLotID int64
	Quantity   float64
}

// CreateLotRequest registers a produced lot.
type CreateLotRequest struct {
	ProductType     string  `json:"product_type" validate:"required,max=100"`
	BatchReference  string  `json:"batch_reference" validate:"required,max=100"`
	Unit            string  `json:"unit" validate:"required,max=20"`
	QuantityCreated float64 `json:"quantity_created" validate:"gt=0"`
}

// RecordWasteRequest records spoiled or discarded quantity against a lot.
type RecordWasteRequest struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Note     string  `json:"note" validate:"max=500"`
}

// LotFilter narrows lot listings.
type LotFilter struct {
	ProductType string
	Page        int
	PerPage     int
}
