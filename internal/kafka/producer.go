package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafkago.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes messages to one topic from a background goroutine.
// Publish never blocks: when the buffer is full the message is dropped and
// logged.
type Producer struct {
	w       messageWriter
	topic   string
	inbox   chan kafkago.Message
	closeCh chan struct{}
}

// NewProducer creates a producer for topic with an inbox of buf messages.
func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}, topic, buf)
}

func newProducer(w messageWriter, topic string, buf int) *Producer {
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w:       w,
		topic:   topic,
		inbox:   make(chan kafkago.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called. Messages still buffered
// at that point are flushed before the writer is closed.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			p.write(m)
		}
		if err := p.w.Close(); err != nil {
			slog.Error("closing kafka writer", "topic", p.topic, "error", err)
		}
	}()
}

func (p *Producer) write(m kafkago.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		slog.Error("kafka publish failed", "topic", p.topic, "key", string(m.Key), "error", err)
	}
}

// Publish queues a message and reports whether it was accepted.
func (p *Producer) Publish(key, value []byte, headers ...kafkago.Header) bool {
	select {
	case p.inbox <- kafkago.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return true
	default:
		slog.Warn("kafka producer buffer full, dropping message", "topic", p.topic, "key", string(key))
		return false
	}
}

// PublishEnvelope encodes e and queues it keyed by its correlation id.
func (p *Producer) PublishEnvelope(e Envelope) bool {
	b, err := e.Encode()
	if err != nil {
		slog.Error("encoding envelope", "type", e.EventType, "error", err)
		return false
	}
	return p.Publish(PartitionKey(e.CorrelationID), b,
		kafkago.Header{Key: "event_type", Value: []byte(e.EventType)})
}

// Close stops accepting messages. Publish must not be called afterwards.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until buffered messages are flushed and the writer is closed.
func (p *Producer) WaitClosed() { <-p.closeCh }
