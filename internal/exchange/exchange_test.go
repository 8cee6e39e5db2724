package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
)

type fakeLedger struct {
	mu      sync.Mutex
	fail    bool
	rewards map[string]int
	points  map[string]int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rewards: map[string]int{}, points: map[string]int64{}}
}

func (l *fakeLedger) Reward(_ context.Context, from, to string, xc ExchangeContext) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("ledger unavailable")
	}
	l.rewards[xc.OfferID]++
	if l.rewards[xc.OfferID] == 1 {
		l.points[from] += 10
		l.points[to] += 5
	}
	return nil
}

func (l *fakeLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.points[userID], nil
}

func (l *fakeLedger) setFail(fail bool) {
	l.mu.Lock()
	l.fail = fail
	l.mu.Unlock()
}

type sentEvent struct {
	userID string
	event  Event
}

type recordingSink struct {
	mu     sync.Mutex
	events []sentEvent
}

func (s *recordingSink) Notify(_ context.Context, userID string, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{userID: userID, event: e})
}

func (s *recordingSink) received(userID string, t EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.userID == userID && e.event.Type == t {
			return true
		}
	}
	return false
}

type testEnv struct {
	db       *db.DB
	registry *Registry
	coord    *Coordinator
	sweeper  *Sweeper
	ledger   *fakeLedger
	sink     *recordingSink
}

// newTestEnv wires the exchange with an inline sweep, or with no sweep at
// all when inlineSweep is false.
func newTestEnv(t *testing.T, inlineSweep bool) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	ledger := newFakeLedger()
	sweeper := NewSweeper(database, ledger)

	var sweeps Dispatcher
	if inlineSweep {
		sweeps = Inline{Sweeper: sweeper}
	}
	registry := NewRegistry(database, sweeps)
	sink := &recordingSink{}
	coord := NewCoordinator(database, registry, sweeper, sweeps, sink)

	return &testEnv{db: database, registry: registry, coord: coord, sweeper: sweeper, ledger: ledger, sink: sink}
}

func (e *testEnv) item(t *testing.T, owner string, typ model.ItemType) *model.Item {
	t.Helper()
	item, err := e.registry.CreateItem(context.Background(), owner, model.ItemInput{
		Title:       "Item of " + owner,
		Description: "A thing",
		Category:    "misc",
		Type:        typ,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func (e *testEnv) offer(t *testing.T, itemID, offeror string) *model.Offer {
	t.Helper()
	offer, err := e.coord.MakeOffer(context.Background(), model.OfferInput{ItemID: itemID, OfferedBy: offeror})
	if err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}
	return offer
}

func (e *testEnv) offerStatus(t *testing.T, id string) model.OfferStatus {
	t.Helper()
	offer, err := e.coord.getOffer(context.Background(), id)
	if err != nil {
		t.Fatalf("getOffer: %v", err)
	}
	return offer.Status
}

func (e *testEnv) itemStatus(t *testing.T, id string) model.ItemStatus {
	t.Helper()
	item, err := e.registry.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	return item.Status
}

func assertKind(t *testing.T, err error, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v error, got %v", want, err)
	}
}
