package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no snapshot is held for a session.
var ErrCacheMiss = errors.New("cart snapshot not cached")

const defaultSnapshotTTL = 24 * time.Hour

// Snapshot is the cached cart plus the count signal observed before it was fetched.
type Snapshot struct {
	Cart      Cart      `json:"cart"`
	Signal    int64     `json:"signal"`
	Ticket    int64     `json:"ticket"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Holder caches the last authoritative cart for each session.
type Holder interface {
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Replace(ctx context.Context, sessionID string, snap Snapshot) (bool, error)
	Count(ctx context.Context, sessionID string) (int64, error)
	BumpCount(ctx context.Context, sessionID string) (int64, error)
	NextTicket(ctx context.Context, sessionID string) (int64, error)
	Clear(ctx context.Context, sessionID string) error
}

type stateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	IncrAbove(ctx context.Context, counterKey, floorKey string, ttl time.Duration) (int64, error)
	IncrInvalidating(ctx context.Context, counterKey, dependentKey string, ttl time.Duration) (int64, error)
	SetIfNewer(ctx context.Context, valueKey, versionKey, value string, version int64, ttl time.Duration) (bool, error)
	CartSnapshotKey(sessionID string) string
	CartCountKey(sessionID string) string
	CartTicketKey(sessionID string) string
	CartAppliedKey(sessionID string) string
}

type redisHolder struct {
	store stateStore
	ttl   time.Duration
}

// NewRedisHolder builds a Holder over the shared redis client.
func NewRedisHolder(store stateStore, ttl time.Duration) (Holder, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart state store required")
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &redisHolder{store: store, ttl: ttl}, nil
}

func (h *redisHolder) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	raw, err := h.store.Get(ctx, h.store.CartSnapshotKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart snapshot")
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart snapshot")
	}
	return &snap, nil
}

// Replace stores snap wholesale unless a snapshot with a newer ticket was already applied.
func (h *redisHolder) Replace(ctx context.Context, sessionID string, snap Snapshot) (bool, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}
	applied, err := h.store.SetIfNewer(ctx,
		h.store.CartSnapshotKey(sessionID),
		h.store.CartAppliedKey(sessionID),
		string(payload), snap.Ticket, h.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store cart snapshot")
	}
	return applied, nil
}

func (h *redisHolder) Count(ctx context.Context, sessionID string) (int64, error) {
	raw, err := h.store.Get(ctx, h.store.CartCountKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart count signal")
	}
	signal, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse cart count signal")
	}
	return signal, nil
}

// BumpCount moves the count signal. When the signal starts a new sequence (first bump,
// or after expiry or eviction) the snapshot is dropped too, since it may carry the same
// signal value from the previous sequence.
func (h *redisHolder) BumpCount(ctx context.Context, sessionID string) (int64, error) {
	signal, err := h.store.IncrInvalidating(ctx, h.store.CartCountKey(sessionID), h.store.CartSnapshotKey(sessionID), h.ttl)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump cart count signal")
	}
	return signal, nil
}

// NextTicket issues a refresh ticket above the newest applied one, even when the ticket
// sequence itself was lost.
func (h *redisHolder) NextTicket(ctx context.Context, sessionID string) (int64, error) {
	ticket, err := h.store.IncrAbove(ctx, h.store.CartTicketKey(sessionID), h.store.CartAppliedKey(sessionID), h.ttl)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue refresh ticket")
	}
	return ticket, nil
}

// Clear drops the snapshot and signal. The ticket and applied keys stay so tickets keep
// rising across a clear; they expire with the session's cache TTL.
func (h *redisHolder) Clear(ctx context.Context, sessionID string) error {
	if err := h.store.Del(ctx,
		h.store.CartSnapshotKey(sessionID),
		h.store.CartCountKey(sessionID),
	); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart snapshot")
	}
	return nil
}
