package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
)

const itemColumns = `id, owner_id, title, description, category, type, status, images, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(s rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var images string
	if err := s.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Category,
		&item.Type, &item.Status, &images, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(images), &item.Images); err != nil {
		return nil, fmt.Errorf("decoding images of item %s: %w", item.ID, err)
	}
	if item.Images == nil {
		item.Images = []string{}
	}
	return item, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encoding images: %w", err)
	}
	return string(b), nil
}

// CreateItem creates a new available item owned by ownerID.
func CreateItem(ctx context.Context, database *db.DB, ownerID string, in model.ItemInput) (*model.Item, error) {
	images, err := encodeImages(in.Images)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = database.ExecContext(ctx,
		`INSERT INTO items (id, owner_id, title, title_search, description, category, type, status, images, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, in.Title, searchKey(in.Title), in.Description, in.Category, in.Type, model.ItemStatusAvailable, images, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItem(ctx, database, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, database *db.DB, id string) (*model.Item, error) {
	item, err := scanItem(database.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// searchKey is the form of a title that keyword searches match against.
func searchKey(title string) string {
	return strings.ToLower(title)
}

// escapeLike escapes LIKE wildcards so a keyword matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func itemSearchQuery(f model.ItemFilter) (string, []any) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	var args []any

	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		query += ` AND title_search LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(searchKey(kw))+"%")
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}

	query += ` ORDER BY created_at DESC, id`
	return query, args
}

// SearchItems returns a lazy sequence of items matching the filter. Every
// range over the sequence runs the query again, so it can be restarted.
func SearchItems(ctx context.Context, database *db.DB, f model.ItemFilter) iter.Seq2[model.Item, error] {
	query, args := itemSearchQuery(f)
	return func(yield func(model.Item, error) bool) {
		rows, err := database.QueryContext(ctx, query, args...)
		if err != nil {
			yield(model.Item{}, fmt.Errorf("searching items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				yield(model.Item{}, fmt.Errorf("scanning item: %w", err))
				return
			}
			if !yield(*item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Item{}, fmt.Errorf("searching items: %w", err))
		}
	}
}

// ListItems collects SearchItems into a slice.
func ListItems(ctx context.Context, database *db.DB, f model.ItemFilter) ([]model.Item, error) {
	var items []model.Item
	for item, err := range SearchItems(ctx, database, f) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateItem overwrites the descriptive fields of an item, but only while it
// is still available. It reports whether a row was updated.
func UpdateItem(ctx context.Context, database *db.DB, id string, in model.ItemInput) (bool, error) {
	images, err := encodeImages(in.Images)
	if err != nil {
		return false, err
	}

	result, err := database.ExecContext(ctx,
		`UPDATE items SET title = ?, title_search = ?, description = ?, category = ?, type = ?, images = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		in.Title, searchKey(in.Title), in.Description, in.Category, in.Type, images, time.Now().UTC(), id, model.ItemStatusAvailable,
	)
	if err != nil {
		return false, fmt.Errorf("updating item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating item: %w", err)
	}
	return n == 1, nil
}

// TransitionItemStatus moves an item from expected to next in a single
// conditional write. It returns false, without changing anything, when the
// item's current status is not expected.
func TransitionItemStatus(ctx context.Context, database *db.DB, id string, expected, next model.ItemStatus) (bool, error) {
	result, err := database.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next, time.Now().UTC(), id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("transitioning item status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transitioning item status: %w", err)
	}
	return n == 1, nil
}
