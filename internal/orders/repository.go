package orders

import "context"

// OrderFilter narrows List. Zero values mean "no filter"; Page/PageSize
// default to 1/50, and PageSize is capped at MaxPageSize.
type OrderFilter struct {
	CustomerID string
	Status     Status
	Page       int
	PageSize   int
}

const defaultPageSize = 50

// MaxPageSize bounds one page so a caller-supplied page size cannot pull
// the whole order table plus items in a single query.
const MaxPageSize = 200

func (f OrderFilter) normalized() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
}

type OrderRepository interface {
	// Create persists a new order with its items. Returns
	// ErrOrderNumberTaken when the unique order_number constraint rejects
	// the insert.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// Update persists the status fields of an existing order.
	Update(ctx context.Context, o *Order) error
	// List returns one page of orders plus the unpaginated total count,
	// newest first.
	List(ctx context.Context, f OrderFilter) ([]Order, int, error)
	// LastNumberForPrefix returns the highest order number starting with
	// prefix, or "" when none exists.
	LastNumberForPrefix(ctx context.Context, prefix string) (string, error)
}

// Ledger owns per-product stock counts. TryReserve is the sole mechanism
// permitted to reduce stock.
type Ledger interface {
	// TryReserve atomically decrements stock by qty only if the current
	// stock covers it, and reports whether the decrement applied. Must be a
	// single conditional write at the storage layer, never read-then-write:
	// it is the last line of defense against overselling.
	TryReserve(ctx context.Context, productID string, qty int) (bool, error)
	// Release unconditionally restores qty units. Compensating action only.
	Release(ctx context.Context, productID string, qty int) error
	// Peek returns the current stock count. Non-authoritative: the value
	// may be stale by the time a reservation is attempted.
	Peek(ctx context.Context, productID string) (int, error)
}

// Tx runs fn as one atomic unit of work: every write inside commits
// together or not at all.
type Tx interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
