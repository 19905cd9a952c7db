package cart

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

func TestViewFetchesOnceThenServesCache(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "100.00", 100)}})
	svc, _ := newTestService(t, remote)
	ctx := context.Background()

	first, err := svc.View(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Summary == nil || first.Summary.Total.StringFixed(2) != "300.00" {
		t.Fatalf("unexpected view: %+v", first)
	}
	if _, err := svc.View(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.fetches() != 1 {
		t.Fatalf("expected a single fetch, got %d", remote.fetches())
	}
}

func TestViewEmptyCartWhenRemoteHasNone(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, newFakeRemote(&Cart{}))

	view, err := svc.View(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.Empty || view.Summary != nil {
		t.Fatalf("expected empty view, got %+v", view)
	}
}

func TestChangeQuantityClampsAndDefersToSignal(t *testing.T) {
	t.Parallel()

	item := line("1", "100.00", 300)
	item.ContainerID = "box-1"
	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{item}})
	svc, holder := newTestService(t, remote)
	ctx := context.Background()

	if _, err := svc.View(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.ChangeQuantity(ctx, "s1", "1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(remote.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(remote.updates))
	}
	sent := remote.updates[0]
	if sent.Quantity != 100 || sent.ContainerID != "box-1" || sent.ProductID != "p-1" || sent.ItemID != "1" {
		t.Fatalf("unexpected update payload: %+v", sent)
	}

	// the first signal of a sequence drops the snapshot; it is never patched in place
	if snap, err := holder.Load(ctx, "s1"); err == nil && snap.Cart.Items[0].Quantity != 300 {
		t.Fatalf("cache must not be updated optimistically, got %d", snap.Cart.Items[0].Quantity)
	} else if err != nil && !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := svc.View(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.fetches() != 2 {
		t.Fatalf("expected signal change to trigger a refresh, fetches=%d", remote.fetches())
	}
	if view.Lines[0].Quantity != 100 || view.Summary.Subtotal.StringFixed(2) != "100.00" {
		t.Fatalf("unexpected refreshed view: %+v", view.Lines[0])
	}
}

func TestDecrementFloorsAtOneUnit(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "5.00", 100)}})
	svc, _ := newTestService(t, remote)
	ctx := context.Background()

	if err := svc.Decrement(ctx, "s1", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := remote.updates[0].Quantity; got != 100 {
		t.Fatalf("expected quantity to stay at 100, got %d", got)
	}

	if err := svc.Increment(ctx, "s1", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := remote.updates[1].Quantity; got != 200 {
		t.Fatalf("expected increment to 200, got %d", got)
	}
}

func TestRemoveItemRefreshesExplicitly(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "100.00", 100)}})
	svc, holder := newTestService(t, remote)
	ctx := context.Background()

	if _, err := svc.View(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := svc.RemoveItem(ctx, "s1", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remote.deletes) != 1 || remote.deletes[0] != [2]string{"c1", "1"} {
		t.Fatalf("unexpected deletes: %+v", remote.deletes)
	}
	if !view.Empty {
		t.Fatalf("expected empty view after removing last item, got %+v", view)
	}
	if view.CartID != "c1" {
		t.Fatalf("cart entity must survive emptying, got %q", view.CartID)
	}
	if signal, _ := holder.Count(ctx, "s1"); signal != 0 {
		t.Fatalf("remove should not rely on the count signal, got %d", signal)
	}
}

func TestMutationFailureSurfacesWithoutBump(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "1.00", 100)}})
	remote.updateErr = pkgerrors.New(pkgerrors.CodeDependency, "backend unavailable")
	svc, holder := newTestService(t, remote)
	ctx := context.Background()

	err := svc.Increment(ctx, "s1", "1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if signal, _ := holder.Count(ctx, "s1"); signal != 0 {
		t.Fatalf("failed mutation must not bump the signal, got %d", signal)
	}
	if remote.fetches() != 1 {
		t.Fatalf("no retry expected, fetches=%d", remote.fetches())
	}
}

func TestUnknownItemIsNotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "1.00", 100)}}))

	err := svc.ChangeQuantity(context.Background(), "s1", "missing", 200)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddItemClampsAndBumpsSignal(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{})
	svc, holder := newTestService(t, remote)
	ctx := context.Background()

	if err := svc.AddItem(ctx, "s1", AddItemInput{ProductID: "p-9", Quantity: 40}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remote.adds) != 1 || remote.adds[0].Quantity != 100 {
		t.Fatalf("unexpected adds: %+v", remote.adds)
	}
	if signal, _ := holder.Count(ctx, "s1"); signal != 1 {
		t.Fatalf("expected signal bump, got %d", signal)
	}
	if err := svc.AddItem(ctx, "s1", AddItemInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefreshDropsStaleResponse(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore()
	holder, _ := NewRedisHolder(store, 0)
	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "1.00", 100)}})
	svc := mustService(t, remote, holder)
	ctx := context.Background()

	// a refresh that started later lands while this one is still fetching
	remote.onFetch = func() {
		remote.onFetch = nil
		ticket, _ := holder.NextTicket(ctx, "s1")
		newer := Snapshot{Cart: Cart{ID: "c1", Items: []LineItem{line("1", "1.00", 500)}}, Ticket: ticket}
		if ok, err := holder.Replace(ctx, "s1", newer); err != nil || !ok {
			t.Errorf("newer snapshot should apply, ok=%v err=%v", ok, err)
		}
	}

	view, err := svc.Refresh(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := view.Lines[0].Quantity; got != 500 {
		t.Fatalf("stale response must not replace newer snapshot, got quantity %d", got)
	}
}

func TestViewAfterMutationWhenTicketSequenceLost(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "100.00", 100)}})
	svc, _, store := newStoreService(t, remote)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Refresh(ctx, "s1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	store.evict(store.CartTicketKey("s1"))

	if err := svc.ChangeQuantity(ctx, "s1", "1", 700); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := svc.View(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := view.Lines[0].Quantity; got != 700 {
		t.Fatalf("expected the changed quantity 700, got %d", got)
	}
}

func TestViewAfterMutationOnceCacheTTLPasses(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "100.00", 100)}})
	svc, _, store := newStoreService(t, remote)
	ctx := context.Background()

	// an active session, touched more often than the TTL but for longer than it
	for step := 1; step <= 4; step++ {
		store.advance(10 * time.Hour)
		quantity := 100 * (step + 1)
		if err := svc.ChangeQuantity(ctx, "s1", "1", quantity); err != nil {
			t.Fatalf("step %d: unexpected error: %v", step, err)
		}
		view, err := svc.View(ctx, "s1")
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", step, err)
		}
		if got := view.Lines[0].Quantity; got != quantity {
			t.Fatalf("step %d: expected quantity %d, got %d", step, quantity, got)
		}
	}
}

func TestViewAfterMutationWhenSignalRestarts(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "100.00", 100)}})
	svc, _, store := newStoreService(t, remote)
	ctx := context.Background()

	// snapshot taken at signal 1
	if err := svc.ChangeQuantity(ctx, "s1", "1", 200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.View(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.evict(store.CartCountKey("s1"))
	if err := svc.ChangeQuantity(ctx, "s1", "1", 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := svc.View(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := view.Lines[0].Quantity; got != 300 {
		t.Fatalf("expected quantity 300 after the signal restarted, got %d", got)
	}
}

func TestMutationSucceedsWhenSignalBumpFails(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(&Cart{ID: "c1", Items: []LineItem{line("1", "100.00", 100)}})
	_, holder := newTestService(t, remote)
	svc := mustService(t, remote, brokenSignalHolder{Holder: holder})
	ctx := context.Background()

	if err := svc.AddItem(ctx, "s1", AddItemInput{ProductID: "p-2"}); err != nil {
		t.Fatalf("remote add succeeded, expected no error, got %v", err)
	}
	if err := svc.ChangeQuantity(ctx, "s1", "1", 400); err != nil {
		t.Fatalf("remote update succeeded, expected no error, got %v", err)
	}
	if len(remote.adds) != 1 || len(remote.updates) != 1 {
		t.Fatalf("expected one add and one update, got %d and %d", len(remote.adds), len(remote.updates))
	}
}

type brokenSignalHolder struct {
	Holder
}

func (brokenSignalHolder) BumpCount(context.Context, string) (int64, error) {
	return 0, pkgerrors.New(pkgerrors.CodeDependency, "redis down")
}

func TestSessionRequired(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, newFakeRemote(&Cart{}))
	if _, err := svc.View(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func newTestService(t *testing.T, remote Remote) (Service, Holder) {
	t.Helper()
	holder, err := NewRedisHolder(newFakeStateStore(), 0)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	return mustService(t, remote, holder), holder
}

func newStoreService(t *testing.T, remote Remote) (Service, Holder, *fakeStateStore) {
	t.Helper()
	store := newFakeStateStore()
	holder, err := NewRedisHolder(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	return mustService(t, remote, holder), holder, store
}

func mustService(t *testing.T, remote Remote, holder Holder) Service {
	t.Helper()
	svc, err := NewService(remote, holder, DefaultShippingPolicy(), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

// fakeRemote applies mutations to an in-memory cart like the backend would.
type fakeRemote struct {
	mu         sync.Mutex
	cart       *Cart
	fetchCount int
	updates    []UpdateItemInput
	deletes    [][2]string
	adds       []AddItemInput
	updateErr  error
	onFetch    func()
}

func newFakeRemote(c *Cart) *fakeRemote {
	return &fakeRemote{cart: c}
}

func (f *fakeRemote) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

func (f *fakeRemote) FetchCart(ctx context.Context, sessionID string) (*Cart, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++
	copied := Cart{ID: f.cart.ID, Items: append([]LineItem{}, f.cart.Items...)}
	return &copied, nil
}

func (f *fakeRemote) AddItem(ctx context.Context, sessionID string, input AddItemInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, input)
	if f.cart.ID == "" {
		f.cart.ID = "created"
	}
	f.cart.Items = append(f.cart.Items, LineItem{ID: "new-" + input.ProductID, ProductID: input.ProductID, Quantity: input.Quantity})
	return nil
}

func (f *fakeRemote) UpdateItem(ctx context.Context, input UpdateItemInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, input)
	for i := range f.cart.Items {
		if f.cart.Items[i].ID == input.ItemID {
			f.cart.Items[i].Quantity = input.Quantity
		}
	}
	return nil
}

func (f *fakeRemote) DeleteItem(ctx context.Context, cartID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cartID != f.cart.ID {
		return errors.New("unknown cart")
	}
	f.deletes = append(f.deletes, [2]string{cartID, itemID})
	kept := f.cart.Items[:0]
	for _, item := range f.cart.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	f.cart.Items = kept
	return nil
}
