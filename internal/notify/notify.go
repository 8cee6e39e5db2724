// Package notify delivers exchange events to users.
package notify

import (
	"context"
	"log/slog"

	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/kafka"
)

// Log writes every event to the structured log.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, userID string, e exchange.Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"user", userID, "event", e.Type, "item", e.ItemID, "offer", e.OfferID, "actor", e.ActorID)
}

// Message is the payload published for each notification.
type Message struct {
	UserID string         `json:"userId"`
	Event  exchange.Event `json:"event"`
}

// Kafka publishes events to kafka.TopicNotifications for a delivery service
// to pick up. Publishing never blocks; dropped events are logged by the
// producer.
type Kafka struct {
	Publisher exchange.EnvelopePublisher
}

func (k Kafka) Notify(_ context.Context, userID string, e exchange.Event) {
	env, err := kafka.NewEnvelope(string(e.Type), e.ItemID, Message{UserID: userID, Event: e})
	if err != nil {
		slog.Error("encoding notification", "user", userID, "event", e.Type, "error", err)
		return
	}
	k.Publisher.PublishEnvelope(env)
}

// Multi fans an event out to several sinks.
type Multi []exchange.NotificationSink

func (m Multi) Notify(ctx context.Context, userID string, e exchange.Event) {
	for _, s := range m {
		s.Notify(ctx, userID, e)
	}
}
