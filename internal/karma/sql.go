package karma

import (
	"context"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/store"
)

// SQLLedger keeps karma in the karma_entries table of the main database.
type SQLLedger struct {
	db     *db.DB
	points Points
}

// NewSQLLedger returns a ledger backed by database.
func NewSQLLedger(database *db.DB, points Points) *SQLLedger {
	return &SQLLedger{db: database, points: points}
}

// Reward records one entry per party, keyed by offer, so repeating it is a
// no-op.
func (l *SQLLedger) Reward(ctx context.Context, fromUser, toUser string, xc exchange.ExchangeContext) error {
	_, err := store.RecordKarma(ctx, l.db, xc.OfferID, []store.KarmaEntry{
		{UserID: fromUser, Points: l.points.Owner},
		{UserID: toUser, Points: l.points.Offeror},
	})
	return err
}

// Balance returns the user's total karma.
func (l *SQLLedger) Balance(ctx context.Context, userID string) (int64, error) {
	return store.KarmaBalance(ctx, l.db, userID)
}
