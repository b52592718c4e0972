package stockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-pharma-orders/internal/kafka"
	"github.com/ariefcatur/go-pharma-orders/internal/orders"
	"github.com/ariefcatur/go-pharma-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Marker is the once-only mark store the watcher needs: event dedup and the
// low-stock alert latch. Backed by Redis in production (redisx.Marker).
type Marker interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, key string) error
}

// Service watches order.created events and raises a low-stock warning the
// first time a product falls below its advisory minimum. Purely
// observational: it never mutates stock.
type Service struct {
	Products    orders.ProductRepository
	Marks       Marker
	Logger      *zap.Logger
	ServiceName string
}

// HandleOrderCreated is wired as the consumer handler.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	// redeliveries are expected with manual offset commits; claim the
	// event id before doing any work
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := s.Marks.MarkOnce(ctx, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, it := range p.Items {
		if err := s.checkProduct(ctx, it.ProductID); err != nil {
			s.Logger.Warn("low-stock check failed",
				zap.String("product_id", it.ProductID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) checkProduct(ctx context.Context, productID string) error {
	p, err := s.Products.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	key := fmt.Sprintf(redisx.KeyLowStock, p.ID)
	if !p.LowStock() {
		// stock recovered; re-arm the latch
		return s.Marks.Clear(ctx, key)
	}

	first, err := s.Marks.MarkOnce(ctx, key, redisx.TTLLowStock)
	if err != nil {
		return err
	}
	if first {
		s.Logger.Warn("product below minimum stock",
			zap.String("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock),
			zap.Int("min_stock", p.MinStock))
	}
	return nil
}
