package exchange

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
	"github.com/swapmeet/swapmeet/internal/store"
)

// Coordinator owns offers and the protocol that resolves them. Acceptance
// is serialized by a compare-and-swap on the item status, so exactly one
// offer per item can win no matter how many owners' requests race.
type Coordinator struct {
	db      *db.DB
	items   *Registry
	sweeper *Sweeper
	sweeps  Dispatcher
	sink    NotificationSink
}

// NewCoordinator wires a Coordinator. A nil sink discards notifications.
func NewCoordinator(database *db.DB, items *Registry, sweeper *Sweeper, sweeps Dispatcher, sink NotificationSink) *Coordinator {
	if sink == nil {
		sink = discardSink{}
	}
	return &Coordinator{db: database, items: items, sweeper: sweeper, sweeps: sweeps, sink: sink}
}

// Resolution is the result of a status change on an offer.
type Resolution struct {
	Offer *model.Offer `json:"offer"`
	Item  *model.Item  `json:"item,omitempty"`
	// SettleErr is set when the exchange completed but karma could not be
	// credited yet. The sweeper retries it.
	SettleErr error `json:"-"`
}

func (c *Coordinator) getOffer(ctx context.Context, id string) (*model.Offer, error) {
	offer, err := store.GetOffer(ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, model.NotFoundf("offer %s not found", id)
	}
	return offer, nil
}

// MakeOffer opens a pending offer on an available item.
func (c *Coordinator) MakeOffer(ctx context.Context, in model.OfferInput) (*model.Offer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	item, err := c.items.GetItem(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID == in.OfferedBy {
		return nil, model.Authorizationf("cannot make an offer on your own item")
	}
	if item.Status != model.ItemStatusAvailable {
		return nil, model.InvalidStatef("item %s is %s", item.ID, item.Status)
	}

	if in.OfferItemID != "" {
		offered, err := c.items.GetItem(ctx, in.OfferItemID)
		if err != nil {
			return nil, err
		}
		if offered.OwnerID != in.OfferedBy {
			return nil, model.Authorizationf("item %s does not belong to the offeror", offered.ID)
		}
		if offered.Status != model.ItemStatusAvailable {
			return nil, model.InvalidStatef("offered item %s is %s", offered.ID, offered.Status)
		}
	}

	offer, err := store.CreateOffer(ctx, c.db, in)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, model.InvalidStatef("item %s is no longer available", item.ID)
	}

	slog.Info("offer made", "offer", offer.ID, "item", item.ID, "offeror", offer.OfferedBy)
	c.sink.Notify(ctx, item.OwnerID, newEvent(EventOfferReceived, item, offer, offer.OfferedBy))
	return offer, nil
}

// AcceptOffer resolves the negotiation on an item in favour of one offer.
// Only the item owner may accept. If another acceptance got there first the
// result is a conflict error and nothing changes.
func (c *Coordinator) AcceptOffer(ctx context.Context, offerID, actor string) (*Resolution, error) {
	offer, err := c.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	item, err := c.items.GetItem(ctx, offer.ItemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != actor {
		return nil, model.Authorizationf("only the item owner can accept offer %s", offerID)
	}
	if offer.Status != model.OfferStatusPending {
		// Rejected by the sweep after another offer won the item.
		if offer.Status == model.OfferStatusRejected && item.Status != model.ItemStatusAvailable {
			return nil, model.Conflictf("item %s is no longer available", item.ID)
		}
		return nil, model.InvalidStatef("offer %s is %s", offerID, offer.Status)
	}

	if err := store.AcceptOffer(ctx, c.db, offer.ID, item.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrItemNotAvailable):
			return nil, model.Conflictf("item %s is no longer available", item.ID)
		case errors.Is(err, store.ErrOfferNotPending):
			return nil, model.InvalidStatef("offer %s is no longer pending", offerID)
		case errors.Is(err, store.ErrOfferedItemNotAvailable):
			return nil, model.InvalidStatef("offered item %s is no longer available", offer.OfferItemID)
		case ctx.Err() != nil:
			return nil, model.Conflictf("outcome of accepting offer %s is indeterminate: %v", offerID, ctx.Err())
		default:
			return nil, err
		}
	}

	now := time.Now().UTC()
	offer.Status, offer.UpdatedAt = model.OfferStatusAccepted, now
	item.Status, item.UpdatedAt = model.ItemStatusExchanged, now
	slog.Info("offer accepted", "offer", offer.ID, "item", item.ID, "owner", item.OwnerID, "offeror", offer.OfferedBy)

	res := &Resolution{Offer: offer, Item: item}

	// The exchange is final from here on; what follows is cleanup.
	c.items.enqueueSweep(ctx, SweepTask{ItemID: item.ID})
	if offer.OfferItemID != "" {
		c.items.enqueueSweep(ctx, SweepTask{ItemID: offer.OfferItemID})
	}

	if err := c.sweeper.Settle(ctx, item, offer); err != nil {
		slog.Error("karma settlement failed", "offer", offer.ID, "error", err)
		res.SettleErr = err
	} else if c.sweeper.ledger != nil {
		offer.SettledAt = &now
	}

	c.sink.Notify(ctx, offer.OfferedBy, newEvent(EventOfferAccepted, item, offer, actor))
	c.sink.Notify(ctx, item.OwnerID, newEvent(EventItemExchanged, item, offer, actor))
	return res, nil
}

// RejectOffer declines a pending offer. The item stays available.
func (c *Coordinator) RejectOffer(ctx context.Context, offerID, actor string) (*model.Offer, error) {
	offer, err := c.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	item, err := c.items.GetItem(ctx, offer.ItemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != actor {
		return nil, model.Authorizationf("only the item owner can reject offer %s", offerID)
	}

	if err := c.resolve(ctx, offer, model.OfferStatusRejected); err != nil {
		return nil, err
	}
	slog.Info("offer rejected", "offer", offer.ID, "item", item.ID)
	c.sink.Notify(ctx, offer.OfferedBy, newEvent(EventOfferRejected, item, offer, actor))
	return offer, nil
}

// WithdrawOffer lets the offeror take back a pending offer.
func (c *Coordinator) WithdrawOffer(ctx context.Context, offerID, actor string) (*model.Offer, error) {
	offer, err := c.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.OfferedBy != actor {
		return nil, model.Authorizationf("only the offeror can withdraw offer %s", offerID)
	}

	if err := c.resolve(ctx, offer, model.OfferStatusWithdrawn); err != nil {
		return nil, err
	}
	slog.Info("offer withdrawn", "offer", offer.ID, "item", offer.ItemID)

	if item, err := c.items.GetItem(ctx, offer.ItemID); err == nil {
		c.sink.Notify(ctx, item.OwnerID, newEvent(EventOfferWithdrawn, item, offer, actor))
	}
	return offer, nil
}

// resolve moves a pending offer to a terminal status and updates offer in place.
func (c *Coordinator) resolve(ctx context.Context, offer *model.Offer, next model.OfferStatus) error {
	if !model.CanTransitionOffer(offer.Status, next) {
		return model.InvalidStatef("offer %s is %s", offer.ID, offer.Status)
	}
	ok, err := store.TransitionOfferStatus(ctx, c.db, offer.ID, offer.Status, next)
	if err != nil {
		if ctx.Err() != nil {
			return model.Conflictf("outcome of updating offer %s is indeterminate: %v", offer.ID, ctx.Err())
		}
		return err
	}
	if !ok {
		return model.InvalidStatef("offer %s is no longer %s", offer.ID, offer.Status)
	}
	offer.Status, offer.UpdatedAt = next, time.Now().UTC()
	return nil
}

// DeleteOffer removes the record of a withdrawn or rejected offer. Only the
// offeror may delete it.
func (c *Coordinator) DeleteOffer(ctx context.Context, offerID, actor string) error {
	offer, err := c.getOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.OfferedBy != actor {
		return model.Authorizationf("only the offeror can delete offer %s", offerID)
	}
	if offer.Status != model.OfferStatusWithdrawn && offer.Status != model.OfferStatusRejected {
		return model.InvalidStatef("offer %s is %s; only withdrawn or rejected offers can be deleted", offerID, offer.Status)
	}

	ok, err := store.DeleteOffer(ctx, c.db, offerID)
	if err != nil {
		return err
	}
	if !ok {
		return model.InvalidStatef("offer %s changed while deleting", offerID)
	}
	slog.Info("offer deleted", "offer", offerID, "user", actor)
	return nil
}

// ListOffersForItem returns the offers on an item, newest first.
func (c *Coordinator) ListOffersForItem(ctx context.Context, itemID string) ([]model.Offer, error) {
	offers, err := store.ListOffersByItem(ctx, c.db, itemID)
	if err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []model.Offer{}
	}
	return offers, nil
}

// ListOffersForUser returns the offers a user made, newest first.
func (c *Coordinator) ListOffersForUser(ctx context.Context, userID string) ([]model.Offer, error) {
	offers, err := store.ListOffersByUser(ctx, c.db, userID)
	if err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []model.Offer{}
	}
	return offers, nil
}

// SetOfferStatus dispatches a requested status to the matching operation.
func (c *Coordinator) SetOfferStatus(ctx context.Context, offerID, actor, status string) (*Resolution, error) {
	next, err := model.ParseOfferStatus(status)
	if err != nil {
		return nil, err
	}

	var offer *model.Offer
	switch next {
	case model.OfferStatusAccepted:
		return c.AcceptOffer(ctx, offerID, actor)
	case model.OfferStatusRejected:
		offer, err = c.RejectOffer(ctx, offerID, actor)
	case model.OfferStatusWithdrawn:
		offer, err = c.WithdrawOffer(ctx, offerID, actor)
	default:
		return nil, model.Validationf("invalid status %q: an offer can only be set to accepted, rejected or withdrawn", next)
	}
	if err != nil {
		return nil, err
	}
	return &Resolution{Offer: offer}, nil
}
