package orders

import (
	"errors"
	"fmt"
)

// Sentinel errors. Client input and not-found errors are rejected before any
// write; conflict errors are discovered mid-transaction and roll back the
// whole unit of work. ErrSequenceConflict is the only one (besides stock
// conflicts) a caller may retry automatically.
var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidCustomer   = errors.New("customer is required")
	ErrNoteTooLong       = errors.New("status note cannot exceed 500 characters")
	ErrInvalidTransition = errors.New("status must be accepted or rejected")
	ErrAlreadyProcessed  = errors.New("order has already been processed")
	ErrOrderNotFound     = errors.New("order not found")
	ErrSequenceConflict  = errors.New("order number allocation conflict")

	// ErrOrderNumberTaken is returned by order repositories when the unique
	// constraint on order_number rejects an insert. The creation transaction
	// treats it as transient and re-runs sequence allocation once.
	ErrOrderNumberTaken = errors.New("order number already taken")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.Name, e.Available, e.Requested)
}

// StockConflictError means the atomic reserve lost a race against a
// concurrent order after the optimistic pre-check passed. Transient: the
// same items might succeed on retry.
type StockConflictError struct {
	ProductID string
	Name      string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock changed during order processing for %q", e.Name)
}
