package exchange

import (
	"context"
	"time"

	"github.com/swapmeet/swapmeet/internal/model"
)

// ExchangeContext describes a completed exchange to the karma ledger.
type ExchangeContext struct {
	ItemID      string         `json:"itemId"`
	OfferID     string         `json:"offerId"`
	ItemType    model.ItemType `json:"itemType"`
	OfferItemID string         `json:"offerItemId,omitempty"`
}

// KarmaLedger credits reputation points once an exchange completes. Reward
// must be idempotent per offer: it is retried until the offer is marked
// settled.
type KarmaLedger interface {
	Reward(ctx context.Context, fromUser, toUser string, xc ExchangeContext) error
	Balance(ctx context.Context, userID string) (int64, error)
}

// EventType names a notification.
type EventType string

// Notification events.
const (
	EventOfferReceived  EventType = "offer.received"
	EventOfferAccepted  EventType = "offer.accepted"
	EventOfferRejected  EventType = "offer.rejected"
	EventOfferWithdrawn EventType = "offer.withdrawn"
	EventItemExchanged  EventType = "item.exchanged"
)

// Event is what a NotificationSink receives.
type Event struct {
	Type    EventType `json:"type"`
	ItemID  string    `json:"itemId"`
	OfferID string    `json:"offerId"`
	ActorID string    `json:"actorId"`
	At      time.Time `json:"at"`
}

// NotificationSink informs users of state changes. Notify is fire-and-forget
// and must not block the caller.
type NotificationSink interface {
	Notify(ctx context.Context, userID string, e Event)
}

type discardSink struct{}

func (discardSink) Notify(context.Context, string, Event) {}

func newEvent(t EventType, item *model.Item, offer *model.Offer, actor string) Event {
	return Event{Type: t, ItemID: item.ID, OfferID: offer.ID, ActorID: actor, At: time.Now().UTC()}
}
