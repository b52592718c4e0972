package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of every storage interface the
// engine consumes. It backs the test suite and local development without a
// database, with the same unit-of-work semantics: WithTransaction holds the
// write lock for the whole callback and restores a snapshot when the
// callback fails, so partial effects are never observable.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
	orders   map[string]Order
	numbers  map[string]string // order_number -> order id, uniqueness backstop
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]Product),
		orders:   make(map[string]Order),
		numbers:  make(map[string]string),
	}
}

var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ Ledger            = (*MemoryStore)(nil)
	_ Tx                = (*MemoryStore)(nil)
)

type memTxKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(memTxKey{}).(bool)
	return v
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Unlock()
	}
}

// WithTransaction serializes units of work under the write lock and rolls
// the whole store back to its pre-transaction snapshot on error.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := cloneMap(m.products)
	orders := cloneMap(m.orders)
	numbers := cloneMap(m.numbers)

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.products = products
		m.orders = orders
		m.numbers = numbers
		return err
	}
	return nil
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ---- ProductRepository ----

func (m *MemoryStore) Create(ctx context.Context, p *Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- OrderRepository ----

// MemoryOrders adapts the shared store to the order repository interface;
// the method set would otherwise collide with the product repository's.
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *Order) error {
	return mo.store.createOrder(ctx, o)
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id string) (*Order, error) {
	return mo.store.getOrderByID(ctx, id)
}

func (mo *MemoryOrders) Update(ctx context.Context, o *Order) error {
	return mo.store.updateOrder(ctx, o)
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	return mo.store.listOrders(ctx, f)
}

func (mo *MemoryOrders) LastNumberForPrefix(ctx context.Context, prefix string) (string, error) {
	return mo.store.lastNumberForPrefix(ctx, prefix)
}

// createOrder persists a new order, enforcing order_number uniqueness the
// way the database's unique index does.
func (m *MemoryStore) createOrder(ctx context.Context, o *Order) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, taken := m.numbers[o.OrderNumber]; taken {
		return ErrOrderNumberTaken
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	m.orders[cp.ID] = cp
	m.numbers[cp.OrderNumber] = cp.ID
	return nil
}

func (m *MemoryStore) getOrderByID(ctx context.Context, id string) (*Order, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp, nil
}

func (m *MemoryStore) updateOrder(ctx context.Context, o *Order) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.orders[o.ID]; !ok {
		return ErrNotFound
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	m.orders[cp.ID] = cp
	return nil
}

func (m *MemoryStore) listOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	f = f.normalized()
	m.rlock(ctx)
	defer m.runlock(ctx)

	matched := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderNumber > matched[j].OrderNumber
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.PageSize
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) lastNumberForPrefix(ctx context.Context, prefix string) (string, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	last := ""
	for number := range m.numbers {
		if strings.HasPrefix(number, prefix) && number > last {
			last = number
		}
	}
	return last, nil
}

// ---- Ledger ----

func (m *MemoryStore) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return true, nil
}

func (m *MemoryStore) Release(ctx context.Context, productID string, qty int) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return nil
}

func (m *MemoryStore) Peek(ctx context.Context, productID string) (int, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.products[productID]
	if !ok {
		return 0, ErrNotFound
	}
	return p.Stock, nil
}
