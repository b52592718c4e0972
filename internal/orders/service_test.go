package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, NewMemoryOrders(store), store, store, zap.NewNop())
	svc.Now = func() time.Time {
		return time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc, store
}

func seedProduct(t *testing.T, store *MemoryStore, name, price string, stock int) Product {
	t.Helper()
	p := Product{Name: name, Batch: "B-" + name, Supplier: "Acme Pharma",
		Stock: stock, MinStock: 1, Price: decimal.RequireFromString(price)}
	if err := store.Create(context.Background(), &p); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return p
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p1 := seedProduct(t, store, "Amoxicillin", "100", 5)
	p2 := seedProduct(t, store, "Ibuprofen", "20.50", 10)

	o, err := svc.CreateOrder(ctx, "cust-1", "Jane Wholesale", []ItemInput{
		{ProductID: p1.ID, Quantity: 1},
		{ProductID: p2.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if o.Status != StatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
	if o.OrderNumber != "ORD-202608-0001" {
		t.Fatalf("order number = %q", o.OrderNumber)
	}
	// 100 + 41 = 141; tax 25.38; total 166.38
	if !o.Subtotal.Equal(decimal.RequireFromString("141")) {
		t.Fatalf("subtotal = %s", o.Subtotal)
	}
	if !o.Tax.Equal(decimal.RequireFromString("25.38")) {
		t.Fatalf("tax = %s", o.Tax)
	}
	if !o.Total.Equal(decimal.RequireFromString("166.38")) {
		t.Fatalf("total = %s", o.Total)
	}

	// line snapshots freeze name, batch, and price at order time
	if len(o.Items) != 2 {
		t.Fatalf("items = %d", len(o.Items))
	}
	if o.Items[0].Name != "Amoxicillin" || o.Items[0].Batch != "B-Amoxicillin" {
		t.Fatalf("bad snapshot: %+v", o.Items[0])
	}
	if !o.Items[1].Price.Equal(decimal.RequireFromString("20.50")) {
		t.Fatalf("snapshot price = %s", o.Items[1].Price)
	}

	// stock reserved
	if s, _ := store.Peek(ctx, p1.ID); s != 4 {
		t.Fatalf("p1 stock = %d, want 4", s)
	}
	if s, _ := store.Peek(ctx, p2.ID); s != 8 {
		t.Fatalf("p2 stock = %d, want 8", s)
	}
}

func TestCreateOrder_ClientErrors(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Aspirin", "10", 5)

	if _, err := svc.CreateOrder(ctx, "", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}}); !errors.Is(err, ErrInvalidCustomer) {
		t.Fatalf("expected ErrInvalidCustomer, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, "c", "x", nil); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 0}}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	// nothing was written
	if s, _ := store.Peek(ctx, p.ID); s != 5 {
		t.Fatalf("stock touched by rejected input: %d", s)
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestEngine(t)

	_, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: "ghost", Quantity: 1}})
	var nf *ProductNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ProductNotFoundError, got %v", err)
	}
	if nf.ProductID != "ghost" {
		t.Fatalf("error names wrong product: %q", nf.ProductID)
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Cetirizine", "8", 5)

	_, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 6}})
	var ins *InsufficientStockError
	if !errors.As(err, &ins) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ins.Requested != 6 || ins.Available != 5 {
		t.Fatalf("error detail: %+v", ins)
	}
	if s, _ := store.Peek(ctx, p.ID); s != 5 {
		t.Fatalf("stock = %d, want unchanged 5", s)
	}
	if _, total, _ := svc.ListOrders(ctx, OrderFilter{}); total != 0 {
		t.Fatalf("no order should persist, got %d", total)
	}
}

func TestCreateOrder_ExactStockDrainsToZero(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Insulin", "450", 5)

	if _, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 5}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s, _ := store.Peek(ctx, p.ID); s != 0 {
		t.Fatalf("stock = %d, want 0", s)
	}
}

func TestCreateOrder_SequentialNumbers(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Vitamin C", "5", 100)

	first, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if first.OrderNumber != "ORD-202608-0001" || second.OrderNumber != "ORD-202608-0002" {
		t.Fatalf("numbers = %q, %q", first.OrderNumber, second.OrderNumber)
	}
}

// stockConflictLedger passes the optimistic pre-check through but makes the
// atomic reserve lose, as if a concurrent order drained stock between the
// read and the guard.
type stockConflictLedger struct {
	Ledger
	failProduct string
}

func (l *stockConflictLedger) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	if productID == l.failProduct {
		return false, nil
	}
	return l.Ledger.TryReserve(ctx, productID, qty)
}

func TestCreateOrder_StockConflictRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p1 := seedProduct(t, store, "Zinc", "3", 20)
	p2 := seedProduct(t, store, "Magnesium", "4", 20)
	svc.Ledger = &stockConflictLedger{Ledger: store, failProduct: p2.ID}

	_, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 2},
	})
	var conflict *StockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StockConflictError, got %v", err)
	}
	if conflict.ProductID != p2.ID {
		t.Fatalf("conflict names wrong product: %q", conflict.ProductID)
	}

	// the first reservation and the order insert are both undone
	if s, _ := store.Peek(ctx, p1.ID); s != 20 {
		t.Fatalf("p1 stock = %d, want 20 after rollback", s)
	}
	if _, total, _ := svc.ListOrders(ctx, OrderFilter{}); total != 0 {
		t.Fatalf("order persisted despite conflict: %d", total)
	}
}

// conflictOrders injects order-number collisions ahead of the real
// repository, mimicking a concurrent creation racing the same prefix.
type conflictOrders struct {
	OrderRepository
	collisions int
}

func (c *conflictOrders) Create(ctx context.Context, o *Order) error {
	if c.collisions > 0 {
		c.collisions--
		return ErrOrderNumberTaken
	}
	return c.OrderRepository.Create(ctx, o)
}

func TestCreateOrder_RetriesSequenceOnce(t *testing.T) {
	// duplicate suffixes within one month are expected under concurrency:
	// the documented behavior is one retry of the whole unit of work
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Folic Acid", "2", 10)
	svc.Orders = &conflictOrders{OrderRepository: NewMemoryOrders(store), collisions: 1}

	o, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatalf("create should survive one collision: %v", err)
	}
	if o.OrderNumber != "ORD-202608-0001" {
		t.Fatalf("number = %q", o.OrderNumber)
	}
	if s, _ := store.Peek(ctx, p.ID); s != 9 {
		t.Fatalf("stock = %d, want 9 (reserved exactly once)", s)
	}
}

func TestCreateOrder_SequenceConflictAfterRetry(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Biotin", "2", 10)
	svc.Orders = &conflictOrders{OrderRepository: NewMemoryOrders(store), collisions: 2}

	_, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}})
	if !errors.Is(err, ErrSequenceConflict) {
		t.Fatalf("expected ErrSequenceConflict, got %v", err)
	}
	if s, _ := store.Peek(ctx, p.ID); s != 10 {
		t.Fatalf("stock = %d, want untouched 10", s)
	}
}

func TestConcurrentOrders_NeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	const (
		stock = 5
		qty   = 2
		calls = 8
	)
	p := seedProduct(t, store, "Adrenaline", "99", stock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, fmt.Sprintf("cust-%d", i), "x",
				[]ItemInput{{ProductID: p.ID, Quantity: qty}})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			default:
				var ins *InsufficientStockError
				var conflict *StockConflictError
				if !errors.As(err, &ins) && !errors.As(err, &conflict) {
					t.Errorf("unexpected failure mode: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if succeeded > stock/qty {
		t.Fatalf("%d orders succeeded for stock %d qty %d", succeeded, stock, qty)
	}
	got, _ := store.Peek(ctx, p.ID)
	if got != stock-qty*succeeded {
		t.Fatalf("final stock = %d, want %d", got, stock-qty*succeeded)
	}
	if got < 0 {
		t.Fatalf("stock went negative: %d", got)
	}
}

func TestUpdateStatus_Accept(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Omeprazole", "30", 10)

	o, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 3}})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateStatus(ctx, o.ID, StatusAccepted, "approved", "admin-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != StatusAccepted || updated.StatusNote != "approved" || updated.AcceptedBy != "admin-1" {
		t.Fatalf("transition fields: %+v", updated)
	}
	// acceptance never touches inventory
	if s, _ := store.Peek(ctx, p.ID); s != 7 {
		t.Fatalf("stock = %d, want 7", s)
	}
}

func TestUpdateStatus_RejectRestoresStock(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p1 := seedProduct(t, store, "Metformin", "15", 10)
	p2 := seedProduct(t, store, "Atorvastatin", "25", 6)

	o, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{
		{ProductID: p1.ID, Quantity: 4},
		{ProductID: p2.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateStatus(ctx, o.ID, StatusRejected, "out of license", "admin-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if s, _ := store.Peek(ctx, p1.ID); s != 10 {
		t.Fatalf("p1 stock = %d, want restored 10", s)
	}
	if s, _ := store.Peek(ctx, p2.ID); s != 6 {
		t.Fatalf("p2 stock = %d, want restored 6", s)
	}
}

func TestUpdateStatus_Terminal(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Losartan", "18", 10)

	o, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, StatusRejected, "", "admin-1"); err != nil {
		t.Fatal(err)
	}

	// a second rejection must not double-credit stock
	if _, err := svc.UpdateStatus(ctx, o.ID, StatusRejected, "", "admin-2"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if s, _ := store.Peek(ctx, p.ID); s != 10 {
		t.Fatalf("stock = %d, want 10 (restored exactly once)", s)
	}

	// and no flip to accepted either
	if _, err := svc.UpdateStatus(ctx, o.ID, StatusAccepted, "", "admin-2"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	got, err := svc.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRejected || got.AcceptedBy != "admin-1" {
		t.Fatalf("terminal order mutated: %+v", got)
	}
}

func TestUpdateStatus_Validation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Ranitidine", "9", 5)
	o, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateStatus(ctx, o.ID, StatusPending, "", "a"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, Status("shipped"), "", "a"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	long := make([]byte, MaxStatusNoteLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, StatusAccepted, string(long), "a"); !errors.Is(err, ErrNoteTooLong) {
		t.Fatalf("expected ErrNoteTooLong, got %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, "ghost", StatusAccepted, "", "a"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateStatus_NoteLengthInCharacters(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEngine(t)
	p := seedProduct(t, store, "Ceftriaxone", "40", 5)
	o, err := svc.CreateOrder(ctx, "c", "x", []ItemInput{{ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}

	// 500 characters but 1000 bytes: the limit counts characters
	note := strings.Repeat("é", MaxStatusNoteLen)
	updated, err := svc.UpdateStatus(ctx, o.ID, StatusRejected, note, "admin-1")
	if err != nil {
		t.Fatalf("multibyte note at the limit rejected: %v", err)
	}
	if updated.StatusNote != note {
		t.Fatalf("note not stored intact")
	}
	if s, _ := store.Peek(ctx, p.ID); s != 5 {
		t.Fatalf("stock = %d, want restored 5", s)
	}

	// one character over fails regardless of encoding
	if _, err := svc.UpdateStatus(ctx, o.ID, StatusAccepted, note+"é", "admin-1"); !errors.Is(err, ErrNoteTooLong) {
		t.Fatalf("expected ErrNoteTooLong, got %v", err)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, _ := newTestEngine(t)
	if _, err := svc.GetOrder(context.Background(), "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
