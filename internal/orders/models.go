package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxStatusNoteLen caps the free-text note attached on accept/reject.
const MaxStatusNoteLen = 500

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Batch     string          `json:"batch,omitempty"`
	Supplier  string          `json:"supplier,omitempty"`
	Stock     int             `json:"stock"`
	MinStock  int             `json:"min_stock"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LowStock reports whether the product has dropped below its advisory
// reorder threshold. Informational only, never blocks an order.
func (p Product) LowStock() bool { return p.Stock < p.MinStock }

// OrderItem is a frozen snapshot of the product at order time. Later price
// or batch changes must not alter historical orders.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Batch     string          `json:"batch,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Items        []OrderItem     `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Status       Status          `json:"status"`
	StatusNote   string          `json:"status_note"`
	AcceptedBy   string          `json:"accepted_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ItemInput is what the caller supplies when placing an order.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
