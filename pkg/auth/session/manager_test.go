package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/pkg/config"
	redisclient "github.com/angelmondragon/storefront/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return "", redislib.Nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func TestGenerateStoresHashNotToken(t *testing.T) {
	store := newMemoryStore()
	manager := newManager(store, time.Hour)
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-1", Record{UserID: "u1", IdentityToken: "idp-tok", CartSessionID: "guest-1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw := store.data["sess:access-1"]
	if strings.Contains(raw, token) || !strings.Contains(raw, hashToken(token)) {
		t.Fatalf("refresh token must be stored hashed: %s", raw)
	}
	if store.ttls["sess:access-1"] != time.Hour {
		t.Fatalf("unexpected ttl %v", store.ttls["sess:access-1"])
	}

	rec, err := manager.Lookup(ctx, "access-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.UserID != "u1" || rec.CartSessionID != "guest-1" || rec.IdentityToken != "idp-tok" || rec.RefreshToken != "" {
		t.Fatalf("unexpected stored record %+v", rec)
	}
}

func TestRotateIsSingleUse(t *testing.T) {
	store := newMemoryStore()
	manager := newManager(store, time.Hour)
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-1", Record{UserID: "u1", CartSessionID: "guest-1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, _, err := manager.Rotate(ctx, "access-1", "wrong"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token error, got %v", err)
	}

	newAccessID, rotated, err := manager.Rotate(ctx, "access-1", token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.RefreshToken == "" || rotated.RefreshToken == token || rotated.CartSessionID != "guest-1" {
		t.Fatalf("unexpected rotated record %+v", rotated)
	}
	if ok, _ := manager.HasSession(ctx, "access-1"); ok {
		t.Fatal("old access id still has a session")
	}
	if ok, err := manager.HasSession(ctx, newAccessID); err != nil || !ok {
		t.Fatalf("expected new session, ok=%v err=%v", ok, err)
	}

	if _, _, err := manager.Rotate(ctx, "access-1", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replayed refresh token must fail, got %v", err)
	}
	if _, _, err := manager.Rotate(ctx, newAccessID, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token should work once: %v", err)
	}
}

func TestRevokeAndCorruptEntries(t *testing.T) {
	store := newMemoryStore()
	manager := newManager(store, time.Hour)
	ctx := context.Background()

	if _, err := manager.Generate(ctx, "a-1", Record{CartSessionID: "s"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := manager.Revoke(ctx, "a-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := manager.Lookup(ctx, "a-1"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token, got %v", err)
	}

	store.data["sess:bad"] = "{not json"
	if _, err := manager.Lookup(ctx, "bad"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("corrupt entry should read as invalid, got %v", err)
	}
	if err := manager.Revoke(ctx, " "); err == nil {
		t.Fatal("expected error for blank access id")
	}
}

func TestNewManagerValidatesTTL(t *testing.T) {
	client := &redisclient.Client{}
	if _, err := NewManager(nil, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 120}); err == nil {
		t.Fatal("expected error without redis client")
	}
	if _, err := NewManager(client, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30}); err == nil {
		t.Fatal("refresh ttl shorter than access ttl must be rejected")
	}
	if _, err := NewManager(client, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 120}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
