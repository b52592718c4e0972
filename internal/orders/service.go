package orders

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the order fulfillment engine: order creation as one atomic
// unit of work, and the pending -> accepted/rejected transition with stock
// compensation on the rejected branch.
type Service struct {
	Products ProductRepository
	Orders   OrderRepository
	Ledger   Ledger
	Tx       Tx
	Logger   *zap.Logger

	// Now is swappable for tests pinning the order-number prefix.
	Now func() time.Time
}

func NewService(products ProductRepository, orders OrderRepository, ledger Ledger, tx Tx, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Products: products,
		Orders:   orders,
		Ledger:   ledger,
		Tx:       tx,
		Logger:   logger,
		Now:      time.Now,
	}
}

// CreateOrder places a multi-item order: validate, snapshot prices, price
// the order, allocate a number, persist in pending, and reserve stock —
// all inside one transaction. The per-item pre-check narrows the failure
// window but the atomic conditional decrement has the final word; losing
// that race aborts everything with a StockConflictError.
//
// A collision on the non-atomic order-number allocation aborts the whole
// unit of work and re-runs it once before giving up with
// ErrSequenceConflict.
func (s *Service) CreateOrder(ctx context.Context, customerID, customerName string, items []ItemInput) (*Order, error) {
	if customerID == "" {
		return nil, ErrInvalidCustomer
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
	}

	o, err := s.createOnce(ctx, customerID, customerName, items)
	if errors.Is(err, ErrOrderNumberTaken) {
		s.Logger.Warn("order number collision, retrying allocation",
			zap.String("customer_id", customerID))
		o, err = s.createOnce(ctx, customerID, customerName, items)
		if errors.Is(err, ErrOrderNumberTaken) {
			return nil, ErrSequenceConflict
		}
	}
	if err != nil {
		return nil, err
	}

	s.Logger.Info("order created",
		zap.String("order_number", o.OrderNumber),
		zap.String("customer", o.CustomerName),
		zap.String("total", o.Total.String()))
	return o, nil
}

func (s *Service) createOnce(ctx context.Context, customerID, customerName string, items []ItemInput) (*Order, error) {
	var created *Order
	err := s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		// optimistic pre-check against the transaction's read view, in
		// caller-supplied order so diagnostics point at the right line
		lines := make([]OrderItem, 0, len(items))
		for _, it := range items {
			p, err := s.Products.GetByID(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return &ProductNotFoundError{ProductID: it.ProductID}
				}
				return err
			}
			if p.Stock < it.Quantity {
				return &InsufficientStockError{
					ProductID: p.ID,
					Name:      p.Name,
					Requested: it.Quantity,
					Available: p.Stock,
				}
			}
			lines = append(lines, OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Batch:     p.Batch,
				Price:     p.Price,
				Quantity:  it.Quantity,
			})
		}

		subtotal, tax, total := Totals(lines)

		now := s.Now().UTC()
		last, err := s.Orders.LastNumberForPrefix(ctx, NumberPrefix(now))
		if err != nil {
			return err
		}
		number, err := NextNumber(NumberPrefix(now), last)
		if err != nil {
			return err
		}

		o := &Order{
			ID:           uuid.NewString(),
			OrderNumber:  number,
			CustomerID:   customerID,
			CustomerName: customerName,
			Items:        lines,
			Subtotal:     subtotal,
			Tax:          tax,
			Total:        total,
			Status:       StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.Orders.Create(ctx, o); err != nil {
			return err
		}

		// the atomic guard: any lost race rolls back the order insert and
		// every reservation already applied in this loop
		for _, line := range lines {
			ok, err := s.Ledger.TryReserve(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &StockConflictError{ProductID: line.ProductID, Name: line.Name}
			}
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateStatus applies the one-way pending -> accepted/rejected transition.
// Rejection releases every reserved line back to the ledger; acceptance
// never touches inventory. A second call against a processed order fails
// with ErrAlreadyProcessed rather than silently succeeding, because
// re-releasing an already-rejected order would double-credit stock.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target Status, note, actorID string) (*Order, error) {
	if target != StatusAccepted && target != StatusRejected {
		return nil, ErrInvalidTransition
	}
	// the cap is in characters, not bytes; multibyte notes count per rune
	if utf8.RuneCountInString(note) > MaxStatusNoteLen {
		return nil, ErrNoteTooLong
	}

	var updated *Order
	err := s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.Orders.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if !CanTransition(o.Status, target) {
			return ErrAlreadyProcessed
		}

		if target == StatusRejected {
			for _, line := range o.Items {
				if err := s.Ledger.Release(ctx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
		}

		o.Status = target
		o.StatusNote = note
		o.AcceptedBy = actorID
		o.UpdatedAt = s.Now().UTC()
		if err := s.Orders.Update(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("order resolved",
		zap.String("order_number", updated.OrderNumber),
		zap.String("status", string(updated.Status)),
		zap.String("by", actorID))
	return updated, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.Orders.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (s *Service) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	return s.Orders.List(ctx, f.normalized())
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.Products.List(ctx)
}
