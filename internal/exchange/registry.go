package exchange

import (
	"context"
	"iter"
	"log/slog"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
	"github.com/swapmeet/swapmeet/internal/store"
)

// Registry owns items and their availability state.
type Registry struct {
	db     *db.DB
	sweeps Dispatcher
}

// NewRegistry returns a Registry. sweeps receives a task whenever an item
// leaves the available state.
func NewRegistry(database *db.DB, sweeps Dispatcher) *Registry {
	return &Registry{db: database, sweeps: sweeps}
}

// CreateItem lists a new available item owned by owner.
func (r *Registry) CreateItem(ctx context.Context, owner string, in model.ItemInput) (*model.Item, error) {
	if owner == "" {
		return nil, model.Validationf("owner is required")
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	item, err := store.CreateItem(ctx, r.db, owner, in)
	if err != nil {
		return nil, err
	}
	slog.Info("item created", "item", item.ID, "owner", owner, "type", item.Type)
	return item, nil
}

// GetItem returns an item or a not-found error.
func (r *Registry) GetItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := store.GetItem(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NotFoundf("item %s not found", id)
	}
	return item, nil
}

// UpdateItem replaces the descriptive fields of an available item. Only the
// owner may update it.
func (r *Registry) UpdateItem(ctx context.Context, id, actor string, in model.ItemInput) (*model.Item, error) {
	item, err := r.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != actor {
		return nil, model.Authorizationf("only the owner can update item %s", id)
	}
	if item.Status != model.ItemStatusAvailable {
		return nil, model.InvalidStatef("item %s is %s and can no longer be edited", id, item.Status)
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ok, err := store.UpdateItem(ctx, r.db, id, in)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.InvalidStatef("item %s is no longer available", id)
	}
	return r.GetItem(ctx, id)
}

// TransitionStatus moves an item from expected to next if, and only if, its
// current status is expected. It reports whether the transition happened.
func (r *Registry) TransitionStatus(ctx context.Context, id string, expected, next model.ItemStatus) (bool, error) {
	if !model.CanTransitionItem(expected, next) {
		return false, model.Validationf("item cannot move from %s to %s", expected, next)
	}
	ok, err := store.TransitionItemStatus(ctx, r.db, id, expected, next)
	if err != nil || !ok {
		return false, err
	}
	r.enqueueSweep(ctx, SweepTask{ItemID: id})
	return true, nil
}

// RemoveItem withdraws an available item from circulation. Pending offers on
// it are rejected by the sweep.
func (r *Registry) RemoveItem(ctx context.Context, id, actor string) (*model.Item, error) {
	item, err := r.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != actor {
		return nil, model.Authorizationf("only the owner can remove item %s", id)
	}

	ok, err := r.TransitionStatus(ctx, id, model.ItemStatusAvailable, model.ItemStatusRemoved)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := r.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, model.InvalidStatef("item %s is %s and cannot be removed", id, current.Status)
	}

	slog.Info("item removed", "item", id, "owner", actor)
	return r.GetItem(ctx, id)
}

// Search returns the items matching every set field of the filter. The
// sequence is lazy and can be ranged over more than once.
func (r *Registry) Search(ctx context.Context, f model.ItemFilter) iter.Seq2[model.Item, error] {
	if err := f.Validate(); err != nil {
		return func(yield func(model.Item, error) bool) {
			yield(model.Item{}, err)
		}
	}
	return store.SearchItems(ctx, r.db, f)
}

// ListUserItems returns every item owned by userID, newest first.
func (r *Registry) ListUserItems(ctx context.Context, userID string) ([]model.Item, error) {
	items, err := store.ListItems(ctx, r.db, model.ItemFilter{OwnerID: userID})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Item{}
	}
	return items, nil
}

func (r *Registry) enqueueSweep(ctx context.Context, task SweepTask) {
	if r.sweeps == nil {
		return
	}
	if err := r.sweeps.Dispatch(ctx, task); err != nil {
		slog.Warn("sweep not enqueued, left to reconcile", "item", task.ItemID, "offer", task.OfferID, "error", err)
	}
}
