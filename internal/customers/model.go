package customers

import "time"

// Customer types drive the listing tag on orders.
const (
	TypeRetail      = "RETAIL"
	TypeWholesale   = "WHOLESALE"
	TypeDistributor = "DISTRIBUTOR"
)

type Customer struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	CustomerType string    `json:"customer_type"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	Address      *string   `json:"address,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateCustomerRequest struct {
	Code         string  `json:"code" validate:"omitempty,max=20"`
	Name         string  `json:"name" validate:"required,max=200"`
	CustomerType string  `json:"customer_type" validate:"required,oneof=RETAIL WHOLESALE DISTRIBUTOR"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address      *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

type ListCustomersRequest struct {
	Search       string
	CustomerType string
	Page         int
	PerPage      int
}
