package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
	"github.com/swapmeet/swapmeet/internal/store"
)

// SweepTask asks the sweeper to clean up after an item left the available
// state. ItemID selects the item whose pending offers are rejected; OfferID,
// if set, names an accepted offer whose karma settlement is retried.
type SweepTask struct {
	ItemID  string `json:"itemId"`
	OfferID string `json:"offerId,omitempty"`
}

// Sweeper performs the cleanup that follows an acceptance or removal. Every
// method is idempotent and safe to run concurrently.
type Sweeper struct {
	db     *db.DB
	ledger KarmaLedger
}

// NewSweeper returns a Sweeper crediting karma through ledger.
func NewSweeper(database *db.DB, ledger KarmaLedger) *Sweeper {
	return &Sweeper{db: database, ledger: ledger}
}

// Sweep rejects the pending offers of a no longer available item and retries
// settlement of the task's offer.
func (s *Sweeper) Sweep(ctx context.Context, task SweepTask) error {
	if task.ItemID != "" {
		n, err := store.RejectPendingOffers(ctx, s.db, task.ItemID)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("rejected pending offers", "item", task.ItemID, "count", n)
		}
	}

	if task.OfferID == "" {
		return nil
	}
	offer, err := store.GetOffer(ctx, s.db, task.OfferID)
	if err != nil {
		return err
	}
	if offer == nil || offer.Status != model.OfferStatusAccepted || offer.SettledAt != nil {
		return nil
	}
	item, err := store.GetItem(ctx, s.db, offer.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s of offer %s is missing", offer.ItemID, offer.ID)
	}
	return s.Settle(ctx, item, offer)
}

// Settle credits karma for an accepted offer and marks it settled. A ledger
// failure leaves the offer unsettled for the next Reconcile.
func (s *Sweeper) Settle(ctx context.Context, item *model.Item, offer *model.Offer) error {
	if s.ledger == nil {
		return nil
	}
	xc := ExchangeContext{
		ItemID:      item.ID,
		OfferID:     offer.ID,
		ItemType:    item.Type,
		OfferItemID: offer.OfferItemID,
	}
	if err := s.ledger.Reward(ctx, item.OwnerID, offer.OfferedBy, xc); err != nil {
		return fmt.Errorf("rewarding karma for offer %s: %w", offer.ID, err)
	}
	if err := store.MarkOfferSettled(ctx, s.db, offer.ID); err != nil {
		return err
	}
	slog.Info("karma settled", "offer", offer.ID, "owner", item.OwnerID, "offeror", offer.OfferedBy)
	return nil
}

// ReconcileResult counts the work a Reconcile pass did.
type ReconcileResult struct {
	StaleItems      int
	UnsettledOffers int
	Failed          int
}

// Reconcile finds every item that still has pending offers after leaving the
// available state and every accepted offer without settled karma, and sweeps
// them. Failures are collected; the pass continues past them.
func (s *Sweeper) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	var errs []error

	items, err := store.ListStaleItemIDs(ctx, s.db)
	if err != nil {
		return res, err
	}
	for _, id := range items {
		res.StaleItems++
		if err := s.Sweep(ctx, SweepTask{ItemID: id}); err != nil {
			res.Failed++
			errs = append(errs, err)
		}
	}

	if s.ledger != nil {
		offers, err := store.ListUnsettledOffers(ctx, s.db)
		if err != nil {
			return res, errors.Join(append(errs, err)...)
		}
		for _, o := range offers {
			res.UnsettledOffers++
			if err := s.Sweep(ctx, SweepTask{OfferID: o.ID}); err != nil {
				res.Failed++
				errs = append(errs, err)
			}
		}
	}

	return res, errors.Join(errs...)
}
