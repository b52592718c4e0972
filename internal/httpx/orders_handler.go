package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-pharma-orders/internal/kafka"
	"github.com/ariefcatur/go-pharma-orders/internal/orders"
	"github.com/ariefcatur/go-pharma-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is what the handler needs from the Kafka producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// StatusCache is the read-fast-path for order status (redisx.Cache in
// production). Optional: a nil cache disables it.
type StatusCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type OrdersHandler struct {
	Service          *orders.Service
	ProducerCreated  Publisher
	ProducerResolved Publisher
	Cache            StatusCache
	Log              *zap.Logger
	ServiceName      string
}

type CreateOrderReq struct {
	CustomerID   string             `json:"customer_id"`
	CustomerName string             `json:"customer_name"`
	Items        []orders.ItemInput `json:"items"`
}

type UpdateStatusReq struct {
	Status     string `json:"status"`
	StatusNote string `json:"status_note"`
	ActorID    string `json:"actor_id"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Put("/orders/{id}/status", h.updateOrderStatus)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps typed engine errors onto HTTP codes. 409s are the only
// ones a client may retry without new input.
func statusFor(err error) int {
	var (
		notFound   *orders.ProductNotFoundError
		noStock    *orders.InsufficientStockError
		stockClash *orders.StockConflictError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.As(err, &stockClash), errors.Is(err, orders.ErrSequenceConflict):
		return http.StatusConflict
	case errors.As(err, &noStock),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidCustomer),
		errors.Is(err, orders.ErrNoteTooLong),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrAlreadyProcessed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.CreateOrder(ctx, req.CustomerID, req.CustomerName, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publishCreated(o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f := orders.OrderFilter{
		CustomerID: r.URL.Query().Get("customer_id"),
		Status:     orders.Status(r.URL.Query().Get("status")),
		Page:       atoiDefault(r.URL.Query().Get("page"), 1),
		PageSize:   atoiDefault(r.URL.Query().Get("page_size"), 50),
	}
	// keep the reported page_size in step with what the repository will
	// actually apply
	if f.PageSize > orders.MaxPageSize {
		f.PageSize = orders.MaxPageSize
	}
	if f.Status != "" && !f.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}

	list, total, err := h.Service.ListOrders(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	pages := (total + f.PageSize - 1) / f.PageSize
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": list,
		"pagination": map[string]int{
			"page":      f.Page,
			"page_size": f.PageSize,
			"total":     total,
			"pages":     pages,
		},
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the hot polling path through the cache, falling
// back to the repository on a miss.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Cache.Get(ctx, key); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(o.Status)})
}

func (h *OrdersHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, chi.URLParam(r, "id"),
		orders.Status(req.Status), req.StatusNote, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publishResolved(o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Service.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	type productView struct {
		orders.Product
		LowStock bool `json:"low_stock"`
	}
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, productView{Product: p, LowStock: p.LowStock()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Cache == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	body, _ := json.Marshal(map[string]string{"status": string(o.Status)})
	_ = h.Cache.Set(ctx, key, string(body), redisx.TTLStatusCache)
}

func (h *OrdersHandler) publishCreated(o *orders.Order) {
	if h.ProducerCreated == nil {
		return
	}
	items := make([]orders.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			CustomerID:  o.CustomerID,
			Items:       items,
			Total:       o.Total.String(),
		}),
	}
	h.ProducerCreated.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishResolved(o *orders.Order) {
	if h.ProducerResolved == nil {
		return
	}
	eventType := orders.EventOrderAccepted
	if o.Status == orders.StatusRejected {
		eventType = orders.EventOrderRejected
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderResolvedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      o.Status,
			ActorID:     o.AcceptedBy,
		}),
	}
	h.ProducerResolved.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
