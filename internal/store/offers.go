package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
)

// Outcomes of AcceptOffer that are not storage failures.
var (
	ErrItemNotAvailable        = errors.New("item is not available")
	ErrOfferNotPending         = errors.New("offer is not pending")
	ErrOfferedItemNotAvailable = errors.New("offered item is not available")
)

const offerColumns = `id, item_id, offered_by, offer_item_id, status, created_at, updated_at, settled_at`

func scanOffer(s rowScanner) (*model.Offer, error) {
	o := &model.Offer{}
	var offerItem sql.NullString
	if err := s.Scan(&o.ID, &o.ItemID, &o.OfferedBy, &offerItem, &o.Status,
		&o.CreatedAt, &o.UpdatedAt, &o.SettledAt); err != nil {
		return nil, err
	}
	o.OfferItemID = offerItem.String
	return o, nil
}

func scanOffers(rows *sql.Rows) ([]model.Offer, error) {
	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning offer: %w", err)
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

// CreateOffer inserts a pending offer. The insert only happens if the target
// item is available when the statement runs; otherwise CreateOffer returns
// nil without error.
func CreateOffer(ctx context.Context, database *db.DB, in model.OfferInput) (*model.Offer, error) {
	var offerItem sql.NullString
	if in.OfferItemID != "" {
		offerItem = sql.NullString{String: in.OfferItemID, Valid: true}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	result, err := database.ExecContext(ctx,
		`INSERT INTO offers (id, item_id, offered_by, offer_item_id, status, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM items WHERE id = ? AND status = ?)`,
		id, in.ItemID, in.OfferedBy, offerItem, model.OfferStatusPending, now, now,
		in.ItemID, model.ItemStatusAvailable,
	)
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	return GetOffer(ctx, database, id)
}

// GetOffer returns an offer by ID, or nil if it does not exist.
func GetOffer(ctx context.Context, database *db.DB, id string) (*model.Offer, error) {
	o, err := scanOffer(database.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting offer: %w", err)
	}
	return o, nil
}

// ListOffersByItem returns the offers made on an item, newest first.
func ListOffersByItem(ctx context.Context, database *db.DB, itemID string) ([]model.Offer, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE item_id = ? ORDER BY created_at DESC, id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing offers for item: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// ListOffersByUser returns the offers made by a user, newest first.
func ListOffersByUser(ctx context.Context, database *db.DB, userID string) ([]model.Offer, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE offered_by = ? ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing offers for user: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// TransitionOfferStatus moves an offer from expected to next in a single
// conditional write and reports whether it happened.
func TransitionOfferStatus(ctx context.Context, database *db.DB, id string, expected, next model.OfferStatus) (bool, error) {
	result, err := database.ExecContext(ctx,
		`UPDATE offers SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next, time.Now().UTC(), id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("transitioning offer status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transitioning offer status: %w", err)
	}
	return n == 1, nil
}

// AcceptOffer marks the item exchanged and the offer accepted in one
// transaction. The item update is a compare-and-swap on status = available:
// when it matches no row the transaction is rolled back and
// ErrItemNotAvailable is returned. If the offer stopped being pending in the
// meantime, ErrOfferNotPending is returned and nothing changes. A barter
// offer also moves the offered item from available to exchanged; if it is
// no longer available, ErrOfferedItemNotAvailable is returned and nothing
// changes.
func AcceptOffer(ctx context.Context, database *db.DB, offerID, itemID string) error {
	tx, err := database.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.ItemStatusExchanged, now, itemID, model.ItemStatusAvailable,
	)
	if err != nil {
		return fmt.Errorf("claiming item: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("claiming item: %w", err)
	} else if n == 0 {
		return ErrItemNotAvailable
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE offers SET status = ?, updated_at = ? WHERE id = ? AND item_id = ? AND status = ?`,
		model.OfferStatusAccepted, now, offerID, itemID, model.OfferStatusPending,
	)
	if err != nil {
		return fmt.Errorf("accepting offer: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("accepting offer: %w", err)
	} else if n == 0 {
		return ErrOfferNotPending
	}

	var offerItem sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT offer_item_id FROM offers WHERE id = ?`, offerID,
	).Scan(&offerItem); err != nil {
		return fmt.Errorf("loading offered item: %w", err)
	}
	if offerItem.Valid {
		result, err = tx.ExecContext(ctx,
			`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			model.ItemStatusExchanged, now, offerItem.String, model.ItemStatusAvailable,
		)
		if err != nil {
			return fmt.Errorf("claiming offered item: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("claiming offered item: %w", err)
		} else if n == 0 {
			return ErrOfferedItemNotAvailable
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing acceptance: %w", err)
	}
	return nil
}

// RejectPendingOffers rejects every pending offer on an item that is no
// longer available, and every pending offer that puts that item up in
// exchange. It is a no-op for available items and safe to repeat.
func RejectPendingOffers(ctx context.Context, database *db.DB, itemID string) (int64, error) {
	result, err := database.ExecContext(ctx,
		`UPDATE offers SET status = ?, updated_at = ?
		 WHERE (item_id = ? OR offer_item_id = ?) AND status = ?
		   AND EXISTS (SELECT 1 FROM items WHERE id = ? AND status <> ?)`,
		model.OfferStatusRejected, time.Now().UTC(), itemID, itemID, model.OfferStatusPending,
		itemID, model.ItemStatusAvailable,
	)
	if err != nil {
		return 0, fmt.Errorf("rejecting pending offers: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rejecting pending offers: %w", err)
	}
	return n, nil
}

// ListStaleItemIDs returns items that are no longer available but are still
// the target or the offered item of a pending offer.
func ListStaleItemIDs(ctx context.Context, database *db.DB) ([]string, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT o.item_id
		 FROM offers o
		 JOIN items i ON i.id = o.item_id
		 WHERE o.status = ? AND i.status <> ?
		 UNION
		 SELECT o.offer_item_id
		 FROM offers o
		 JOIN items i ON i.id = o.offer_item_id
		 WHERE o.status = ? AND i.status <> ?`,
		model.OfferStatusPending, model.ItemStatusAvailable,
		model.OfferStatusPending, model.ItemStatusAvailable,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUnsettledOffers returns accepted offers whose karma has not been
// settled yet.
func ListUnsettledOffers(ctx context.Context, database *db.DB) ([]model.Offer, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE status = ? AND settled_at IS NULL ORDER BY updated_at`,
		model.OfferStatusAccepted,
	)
	if err != nil {
		return nil, fmt.Errorf("listing unsettled offers: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// MarkOfferSettled records that karma for an accepted offer was credited.
func MarkOfferSettled(ctx context.Context, database *db.DB, id string) error {
	_, err := database.ExecContext(ctx,
		`UPDATE offers SET settled_at = ? WHERE id = ? AND settled_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking offer settled: %w", err)
	}
	return nil
}

// DeleteOffer removes a withdrawn or rejected offer and reports whether a
// row was deleted.
func DeleteOffer(ctx context.Context, database *db.DB, id string) (bool, error) {
	result, err := database.ExecContext(ctx,
		`DELETE FROM offers WHERE id = ? AND status IN (?, ?)`,
		id, model.OfferStatusWithdrawn, model.OfferStatusRejected,
	)
	if err != nil {
		return false, fmt.Errorf("deleting offer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting offer: %w", err)
	}
	return n == 1, nil
}
