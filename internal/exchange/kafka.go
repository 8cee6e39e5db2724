package exchange

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/swapmeet/swapmeet/internal/kafka"
)

// EventSweepRequested is the envelope type of sweep tasks on
// kafka.TopicOfferSweep.
const EventSweepRequested = "SweepRequested"

// EnvelopePublisher is satisfied by *kafka.Producer.
type EnvelopePublisher interface {
	PublishEnvelope(e kafka.Envelope) bool
}

// KafkaDispatcher publishes sweep tasks so that any instance in the consumer
// group can run them.
type KafkaDispatcher struct {
	Publisher EnvelopePublisher
}

// Dispatch publishes the task keyed by item id.
func (d KafkaDispatcher) Dispatch(_ context.Context, task SweepTask) error {
	env, err := kafka.NewEnvelope(EventSweepRequested, task.ItemID, task)
	if err != nil {
		return err
	}
	if !d.Publisher.PublishEnvelope(env) {
		return ErrQueueFull
	}
	return nil
}

// SweepHandler consumes sweep tasks published by KafkaDispatcher.
// Undecodable messages are logged and committed.
func SweepHandler(s *Sweeper) kafka.Handler {
	return func(ctx context.Context, m kafkago.Message) error {
		env, err := kafka.DecodeEnvelope(m.Value)
		if err != nil {
			slog.Error("dropping malformed sweep message", "offset", m.Offset, "error", err)
			return nil
		}
		if env.EventType != EventSweepRequested {
			return nil
		}
		task, err := kafka.UnwrapPayload[SweepTask](env.Payload)
		if err != nil {
			slog.Error("dropping malformed sweep task", "event", env.EventID, "error", err)
			return nil
		}
		return s.Sweep(ctx, task)
	}
}
