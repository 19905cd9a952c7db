package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/config"
	redisclient "github.com/angelmondragon/storefront/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errMissingAccessID     = errors.New("access id is required")
)

// Record is what the server keeps for a signed-in access id. RefreshToken is only set on
// values returned by Rotate; the store keeps a hash of it.
type Record struct {
	UserID        string `json:"user_id"`
	RefreshToken  string `json:"-"`
	IdentityToken string `json:"identity_token,omitempty"`
	CartSessionID string `json:"cart_session_id"`
}

// entry is the stored form of a Record.
type entry struct {
	Record
	RefreshHash string    `json:"refresh_hash"`
	IssuedAt    time.Time `json:"issued_at"`
}

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is the read-only surface the session middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Manager keeps one redis entry per access id, holding the refresh token hash and the
// session's identity token and cart session.
type Manager struct {
	store sessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires a refresh TTL longer than the access token lifetime.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case ttl <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case ttl <= access:
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, access)
	}
	return newManager(client, ttl), nil
}

func newManager(store sessionStore, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// NewAccessID mints the JWT jti that keys a session.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate stores rec under accessID and returns the refresh token for it.
func (m *Manager) Generate(ctx context.Context, accessID string, rec Record) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errMissingAccessID
	}
	token, err := m.issue(ctx, accessID, rec)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Rotate checks provided against the session under oldAccessID, moves the session to a new
// access id with a new refresh token, and deletes the old entry. A refresh token works once.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (string, Record, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return "", Record{}, ErrInvalidRefreshToken
	}
	current, err := m.load(ctx, oldAccessID)
	if err != nil {
		return "", Record{}, err
	}
	if subtle.ConstantTimeCompare([]byte(current.RefreshHash), []byte(hashToken(provided))) != 1 {
		return "", Record{}, ErrInvalidRefreshToken
	}

	if err := m.store.Del(ctx, m.store.AccessSessionKey(oldAccessID)); err != nil {
		return "", Record{}, err
	}
	newAccessID := NewAccessID()
	token, err := m.issue(ctx, newAccessID, current.Record)
	if err != nil {
		return "", Record{}, err
	}
	rec := current.Record
	rec.RefreshToken = token
	return newAccessID, rec, nil
}

// Lookup returns ErrInvalidRefreshToken when no session exists for accessID.
func (m *Manager) Lookup(ctx context.Context, accessID string) (*Record, error) {
	current, err := m.load(ctx, accessID)
	if err != nil {
		return nil, err
	}
	return &current.Record, nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errMissingAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errMissingAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, redislib.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *Manager) issue(ctx context.Context, accessID string, rec Record) (string, error) {
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	rec.RefreshToken = ""
	payload, err := json.Marshal(entry{Record: rec, RefreshHash: hashToken(token), IssuedAt: m.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(payload), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

func (m *Manager) load(ctx context.Context, accessID string) (*entry, error) {
	raw, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	if errors.Is(err, redislib.Nil) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.RefreshHash == "" {
		return nil, ErrInvalidRefreshToken
	}
	return &e, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
