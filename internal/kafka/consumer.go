package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when processing succeeded and the offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// Start dispatches messages to a worker pool and commits offsets only after
// the handler succeeds. Returns when ctx is canceled or the reader fails.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	for i := 0; i < c.workers; i++ {
		go func() {
			for m := range jobs {
				if err := process(ctx, h, m); err != nil {
					// shutdown mid-retry; leave the offset uncommitted
					return
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.Printf("commit error: %v", err)
				}
			}
		}()
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			close(jobs)
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}
	}
}

const maxAttempts = 5

var retryBackoff = 200 * time.Millisecond

// process retries the handler in place. Committing any later offset on the
// partition also marks this message consumed, so a failure must never fall
// through to commit silently; a message still failing after maxAttempts is
// dropped with a log line instead of stalling the partition.
func process(ctx context.Context, h Handler, m kafka.Message) error {
	backoff := retryBackoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			log.Printf("dropping message after %d attempts (topic %s partition %d offset %d): %v",
				attempt, m.Topic, m.Partition, m.Offset, err)
			return nil
		}
		log.Printf("handler error, retrying: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
