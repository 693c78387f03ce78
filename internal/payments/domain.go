package payments

import (
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
)

// Tolerance absorbs rounding when comparing paid amounts with the net total.
const Tolerance = 0.01

// Payment modes accepted by the ledger.
const (
	ModeCash         = "CASH"
	ModeBankTransfer = "BANK_TRANSFER"
	ModeCheque       = "CHEQUE"
	ModeCard         = "CARD"
	ModeOther        = "OTHER"
)

// Payment is money received against an order.
type Payment struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	AmountReceived float64   `json:"amount_received"`
	PaymentDate    time.Time `json:"payment_date"`
	Mode           string    `json:"mode"`
	Reference      string    `json:"reference,omitempty"`
	PaidTo         string    `json:"paid_to,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PaymentRequest creates or replaces a payment.
type PaymentRequest struct {
	AmountReceived float64   `json:"amount_received" validate:"gt=0"`
	PaymentDate    time.Time `json:"payment_date" validate:"required"`
	Mode           string    `json:"mode" validate:"required,oneof=CASH BANK_TRANSFER CHEQUE CARD OTHER"`
	Reference      string    `json:"reference" validate:"max=100"`
	PaidTo         string    `json:"paid_to" validate:"max=100"`
	// IdempotencyKey deduplicates client retries of a create.
	IdempotencyKey string `json:"-"`
}

// AccountingEntry mirrors one payment in the external ledger.
type AccountingEntry struct {
	PaymentID int64     `json:"payment_id"`
	OrderID   int64     `json:"order_id"`
	Amount    float64   `json:"amount"`
	EntryDate time.Time `json:"entry_date"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
}

// StatusView explains a derived payment status.
type StatusView struct {
	OrderID        int64               `json:"order_id"`
	TotalAmount    float64             `json:"total_amount"`
	DiscountAmount float64             `json:"discount_amount"`
	NetTotal       float64             `json:"net_total"`
	TotalPaid      float64             `json:"total_paid"`
	Outstanding    float64             `json:"outstanding"`
	Status         sales.PaymentStatus `json:"status"`
}

func entryFor(p Payment) AccountingEntry {
	return AccountingEntry{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.AmountReceived,
		EntryDate: p.PaymentDate,
		Method:    p.Mode,
		Reference: p.Reference,
	}
}
