package stockwatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-pharma-orders/internal/kafka"
	"github.com/ariefcatur/go-pharma-orders/internal/orders"
	"github.com/ariefcatur/go-pharma-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memMarker struct {
	marks map[string]bool
}

func newMemMarker() *memMarker { return &memMarker{marks: map[string]bool{}} }

func (m *memMarker) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.marks[key] {
		return false, nil
	}
	m.marks[key] = true
	return true, nil
}

func (m *memMarker) Clear(_ context.Context, key string) error {
	delete(m.marks, key)
	return nil
}

func newWatcher(t *testing.T) (*Service, *orders.MemoryStore, *memMarker) {
	t.Helper()
	store := orders.NewMemoryStore()
	marks := newMemMarker()
	return &Service{
		Products:    store,
		Marks:       marks,
		Logger:      zap.NewNop(),
		ServiceName: "stockwatch-test",
	}, store, marks
}

func seedProduct(t *testing.T, store *orders.MemoryStore, name string, stock, minStock int) orders.Product {
	t.Helper()
	p := orders.Product{Name: name, Stock: stock, MinStock: minStock,
		Price: decimal.RequireFromString("10")}
	if err := store.Create(context.Background(), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func orderCreatedMessage(t *testing.T, eventID string, productIDs ...string) kafkago.Message {
	t.Helper()
	items := make([]orders.ItemQty, 0, len(productIDs))
	for _, id := range productIDs {
		items = append(items, orders.ItemQty{ProductID: id, Qty: 1})
	}
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    orders.EventOrderCreated,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "pharma-orders-test",
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:     "o1",
			OrderNumber: "ORD-202608-0001",
			Items:       items,
			Total:       "10",
		}),
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderCreated_LatchesBelowMinimum(t *testing.T) {
	ctx := context.Background()
	svc, store, marks := newWatcher(t)
	low := seedProduct(t, store, "Scarce", 1, 5)
	ok := seedProduct(t, store, "Plenty", 50, 5)

	msg := orderCreatedMessage(t, "ev-1", low.ID, ok.ID)
	if err := svc.HandleOrderCreated(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if !marks.marks[fmt.Sprintf(redisx.KeyLowStock, low.ID)] {
		t.Fatal("low product not latched")
	}
	if marks.marks[fmt.Sprintf(redisx.KeyLowStock, ok.ID)] {
		t.Fatal("healthy product latched")
	}
}

func TestHandleOrderCreated_DedupSkipsRedelivery(t *testing.T) {
	ctx := context.Background()
	svc, store, marks := newWatcher(t)
	low := seedProduct(t, store, "Scarce", 1, 5)

	msg := orderCreatedMessage(t, "ev-dup", low.ID)
	if err := svc.HandleOrderCreated(ctx, msg); err != nil {
		t.Fatal(err)
	}

	// simulate recovery, then redeliver the same event: dedup must win and
	// the cleared latch must stay cleared
	latch := fmt.Sprintf(redisx.KeyLowStock, low.ID)
	if err := marks.Clear(ctx, latch); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleOrderCreated(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if marks.marks[latch] {
		t.Fatal("redelivered event re-latched despite dedup")
	}
}

func TestHandleOrderCreated_RecoveryClearsLatch(t *testing.T) {
	ctx := context.Background()
	svc, store, marks := newWatcher(t)
	p := seedProduct(t, store, "Restocked", 1, 5)

	if err := svc.HandleOrderCreated(ctx, orderCreatedMessage(t, "ev-1", p.ID)); err != nil {
		t.Fatal(err)
	}
	latch := fmt.Sprintf(redisx.KeyLowStock, p.ID)
	if !marks.marks[latch] {
		t.Fatal("latch not set")
	}

	// restock above the minimum, then a fresh event re-arms the alert
	if err := store.Release(ctx, p.ID, 20); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleOrderCreated(ctx, orderCreatedMessage(t, "ev-2", p.ID)); err != nil {
		t.Fatal(err)
	}
	if marks.marks[latch] {
		t.Fatal("latch not cleared after recovery")
	}
}

func TestHandleOrderCreated_IgnoresOtherEventTypes(t *testing.T) {
	ctx := context.Background()
	svc, _, marks := newWatcher(t)

	env := orders.Envelope{
		EventID:   "ev-x",
		EventType: orders.EventOrderAccepted,
		Payload:   kafkax.MustMarshal(orders.OrderResolvedPayload{OrderID: "o1"}),
	}
	if err := svc.HandleOrderCreated(ctx, kafkago.Message{Value: kafkax.MustMarshal(env)}); err != nil {
		t.Fatal(err)
	}
	if len(marks.marks) != 0 {
		t.Fatalf("marks written for foreign event: %v", marks.marks)
	}
}

func TestHandleOrderCreated_BadJSON(t *testing.T) {
	svc, _, _ := newWatcher(t)
	if err := svc.HandleOrderCreated(context.Background(), kafkago.Message{Value: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
}
