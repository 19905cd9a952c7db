package cart

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisHolderReplaceKeepsNewestTicket(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore()
	holder, err := NewRedisHolder(store, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, err := holder.Load(ctx, "s1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	newer := Snapshot{Cart: Cart{ID: "c1", Items: []LineItem{line("1", "10", 200)}}, Ticket: 2}
	older := Snapshot{Cart: Cart{ID: "c1", Items: []LineItem{line("1", "10", 100)}}, Ticket: 1}

	if ok, err := holder.Replace(ctx, "s1", newer); err != nil || !ok {
		t.Fatalf("expected newer snapshot applied, ok=%v err=%v", ok, err)
	}
	if ok, err := holder.Replace(ctx, "s1", older); err != nil || ok {
		t.Fatalf("expected older snapshot rejected, ok=%v err=%v", ok, err)
	}

	got, err := holder.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Ticket != 2 || got.Cart.Items[0].Quantity != 200 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestRedisHolderSignalsAndClear(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore()
	holder, _ := NewRedisHolder(store, 0)
	ctx := context.Background()

	if signal, err := holder.Count(ctx, "s1"); err != nil || signal != 0 {
		t.Fatalf("expected zero signal, got %d err=%v", signal, err)
	}
	if signal, _ := holder.BumpCount(ctx, "s1"); signal != 1 {
		t.Fatalf("expected signal 1, got %d", signal)
	}
	if signal, _ := holder.Count(ctx, "s1"); signal != 1 {
		t.Fatalf("expected stored signal 1, got %d", signal)
	}
	first, _ := holder.NextTicket(ctx, "s1")
	second, _ := holder.NextTicket(ctx, "s1")
	if second <= first {
		t.Fatalf("tickets must increase: %d then %d", first, second)
	}

	if _, err := holder.Replace(ctx, "s1", Snapshot{Cart: Cart{ID: "c1"}, Ticket: second}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := holder.Clear(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := holder.Load(ctx, "s1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss after clear, got %v", err)
	}
	if next, _ := holder.NextTicket(ctx, "s1"); next <= second {
		t.Fatalf("ticket sequence must survive clear, got %d", next)
	}
}

func TestRedisHolderTicketOutrunsAppliedAfterLoss(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore()
	holder, _ := NewRedisHolder(store, time.Hour)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		ticket, err := holder.NextTicket(ctx, "s1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok, _ := holder.Replace(ctx, "s1", Snapshot{Cart: Cart{ID: "c1"}, Ticket: ticket}); !ok {
			t.Fatalf("ticket %d should apply", ticket)
		}
		last = ticket
	}

	store.evict(store.CartTicketKey("s1"))
	next, err := holder.NextTicket(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next <= last {
		t.Fatalf("ticket %d issued at or below applied %d", next, last)
	}
	if ok, _ := holder.Replace(ctx, "s1", Snapshot{Cart: Cart{ID: "c2"}, Ticket: next}); !ok {
		t.Fatal("snapshot with a fresh ticket must apply")
	}
}

func TestRedisHolderKeysExpireTogether(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore()
	holder, _ := NewRedisHolder(store, time.Hour)
	ctx := context.Background()

	first, _ := holder.NextTicket(ctx, "s1")
	// keep the session busy past the first ticket's original expiry
	for i := 0; i < 3; i++ {
		store.advance(40 * time.Minute)
		ticket, _ := holder.NextTicket(ctx, "s1")
		if ok, _ := holder.Replace(ctx, "s1", Snapshot{Ticket: ticket}); !ok {
			t.Fatalf("refresh %d after %d was rejected", ticket, first)
		}
	}
}

func TestRedisHolderSignalRestartDropsSnapshot(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore()
	holder, _ := NewRedisHolder(store, time.Hour)
	ctx := context.Background()

	signal, _ := holder.BumpCount(ctx, "s1")
	ticket, _ := holder.NextTicket(ctx, "s1")
	if _, err := holder.Replace(ctx, "s1", Snapshot{Cart: Cart{ID: "c1"}, Signal: signal, Ticket: ticket}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.evict(store.CartCountKey("s1"))
	if again, _ := holder.BumpCount(ctx, "s1"); again != signal {
		t.Fatalf("expected the signal to start over at %d, got %d", signal, again)
	}
	if _, err := holder.Load(ctx, "s1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("snapshot from the previous sequence must be dropped, got %v", err)
	}
}

func TestNewRedisHolderRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisHolder(nil, time.Minute); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

// fakeStateStore models the redis keys the holder uses, including expiry on a manual clock.
type fakeStateStore struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Time
	now     time.Time
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		data:    map[string]string{},
		expires: map[string]time.Time{},
		now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStateStore) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// evict drops a key the way memory pressure would.
func (f *fakeStateStore) evict(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.expires, key)
}

// lookup must be called with mu held.
func (f *fakeStateStore) lookup(key string) (string, bool) {
	if at, ok := f.expires[key]; ok && !f.now.Before(at) {
		delete(f.data, key)
		delete(f.expires, key)
	}
	val, ok := f.data[key]
	return val, ok
}

func (f *fakeStateStore) put(key, value string, ttl time.Duration) {
	f.data[key] = value
	f.expires[key] = f.now.Add(ttl)
}

func (f *fakeStateStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.lookup(key)
	if !ok {
		return "", redis.Nil
	}
	return val, nil
}

func (f *fakeStateStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
		delete(f.expires, key)
	}
	return nil
}

func (f *fakeStateStore) counter(key string) int64 {
	raw, _ := f.lookup(key)
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

func (f *fakeStateStore) IncrAbove(ctx context.Context, counterKey, floorKey string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.counter(counterKey) + 1
	if floor := f.counter(floorKey); n <= floor {
		n = floor + 1
	}
	f.put(counterKey, strconv.FormatInt(n, 10), ttl)
	return n, nil
}

func (f *fakeStateStore) IncrInvalidating(ctx context.Context, counterKey, dependentKey string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.counter(counterKey) + 1
	if n == 1 {
		delete(f.data, dependentKey)
		delete(f.expires, dependentKey)
	}
	f.put(counterKey, strconv.FormatInt(n, 10), ttl)
	return n, nil
}

func (f *fakeStateStore) SetIfNewer(ctx context.Context, valueKey, versionKey, value string, version int64, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if version <= f.counter(versionKey) {
		return false, nil
	}
	f.put(valueKey, value, ttl)
	f.put(versionKey, strconv.FormatInt(version, 10), ttl)
	return true, nil
}

func (f *fakeStateStore) CartSnapshotKey(sessionID string) string { return "snap:" + sessionID }
func (f *fakeStateStore) CartCountKey(sessionID string) string    { return "count:" + sessionID }
func (f *fakeStateStore) CartTicketKey(sessionID string) string   { return "ticket:" + sessionID }
func (f *fakeStateStore) CartAppliedKey(sessionID string) string  { return "applied:" + sessionID }
