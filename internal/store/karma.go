package store

import (
	"context"
	"fmt"
	"time"

	"github.com/swapmeet/swapmeet/internal/db"
)

// KarmaEntry is one credit or debit in the karma ledger.
type KarmaEntry struct {
	UserID string
	Points int
}

// RecordKarma writes the entries for an offer in one transaction. Entries
// already recorded for the same offer and user are skipped, so a retried
// settlement never double-credits. It reports how many entries were new.
func RecordKarma(ctx context.Context, database *db.DB, offerID string, entries []KarmaEntry) (int, error) {
	tx, err := database.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	added := 0
	for _, e := range entries {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO karma_entries (offer_id, user_id, points, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (offer_id, user_id) DO NOTHING`,
			offerID, e.UserID, e.Points, now,
		)
		if err != nil {
			return 0, fmt.Errorf("recording karma for %s: %w", e.UserID, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing karma: %w", err)
	}
	return added, nil
}

// KarmaBalance returns the sum of a user's karma entries.
func KarmaBalance(ctx context.Context, database *db.DB, userID string) (int64, error) {
	var total int64
	err := database.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM karma_entries WHERE user_id = ?`, userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("getting karma balance: %w", err)
	}
	return total, nil
}
