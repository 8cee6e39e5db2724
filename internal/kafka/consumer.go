package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Handler processes one message. Returning nil commits the message offset;
// an error is logged and the commit skipped.
type Handler func(ctx context.Context, m kafkago.Message) error

// messageReader is the part of *kafkago.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group and fans messages out to
// a pool of workers.
type Consumer struct {
	r       messageReader
	topic   string
	workers int
}

// NewConsumer creates a consumer for topic in group with the given number of
// workers.
func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	return newConsumer(kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), topic, workers)
}

func newConsumer(r messageReader, topic string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, topic: topic, workers: workers}
}

// Run consumes until ctx is cancelled or the reader fails. Workers finish
// their current message before Run returns.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafkago.Message, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}()
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafkago.Message) {
	if err := h(ctx, m); err != nil {
		slog.Error("kafka handler failed", "topic", c.topic, "offset", m.Offset, "error", err)
		// light backoff
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		slog.Error("kafka commit failed", "topic", c.topic, "offset", m.Offset, "error", err)
	}
}
