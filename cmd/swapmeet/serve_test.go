package main

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/model"
	"github.com/swapmeet/swapmeet/internal/store"
)

func TestServicesCloseOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &services{cancel: cancel}

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		<-ctx.Done()
		record("worker")
	}()
	svc.onDrain(func() {
		if ctx.Err() != nil {
			t.Error("drain ran after the work context was cancelled")
		}
		record("drain")
	})
	svc.onClose(func() { record("closer") })

	svc.close()

	want := []string{"drain", "worker", "closer"}
	if !slices.Equal(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestQueuedSweepsFinishOnShutdown(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, err := store.CreateItem(ctx, database, "alice", model.ItemInput{
		Title: "Kettle", Description: "Works", Category: "kitchen", Type: model.ItemTypeDonate,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	offer, err := store.CreateOffer(ctx, database, model.OfferInput{ItemID: item.ID, OfferedBy: "bob"})
	if err != nil || offer == nil {
		t.Fatalf("CreateOffer: offer=%v err=%v", offer, err)
	}
	if _, err := store.TransitionItemStatus(ctx, database, item.ID, model.ItemStatusAvailable, model.ItemStatusRemoved); err != nil {
		t.Fatalf("TransitionItemStatus: %v", err)
	}

	workCtx, cancel := context.WithCancel(context.Background())
	svc := &services{cancel: cancel}
	pool := exchange.NewPool(exchange.NewSweeper(database, nil), 1, 8)
	if err := pool.Dispatch(ctx, exchange.SweepTask{ItemID: item.ID}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	pool.Start(workCtx)
	svc.onDrain(pool.Close)

	svc.close()

	got, _ := store.GetOffer(ctx, database, offer.ID)
	if got.Status != model.OfferStatusRejected {
		t.Errorf("expected queued sweep to reject the offer, got %q", got.Status)
	}
}
