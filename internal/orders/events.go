package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated  = "OrderCreated"
	EventOrderAccepted = "OrderAccepted"
	EventOrderRejected = "OrderRejected"
)

// Envelope is the versioned wrapper every published event rides in.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id"`
	Items       []ItemQty `json:"items"`
	Total       string    `json:"total"`
}

type OrderResolvedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      Status `json:"status"`
	ActorID     string `json:"actor_id"`
}
