package redisx

import "time"

const (
	// Cache of order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup for event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Low-stock alert latch so the warning fires once per threshold
	// crossing: lowstock:{product_id}
	KeyLowStock = "lowstock:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLLowStock    = 7 * 24 * time.Hour
)
