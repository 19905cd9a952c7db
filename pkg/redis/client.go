package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyNamespace = "sf"

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	ExpireNX(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

// Client is the storefront's redis access: cart snapshots, sessions, rate limits and
// idempotency records, all under the "sf:" namespace.
type Client struct {
	store cmdable
	raw   *redis.Client
}

type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is the subset the idempotency middleware needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New connects and pings. A URL wins over Address; pool and timeout settings from cfg fill
// whatever the URL leaves unset.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis.connected")
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	fillZero(&opts.DB, cfg.DB)
	fillZero(&opts.PoolSize, cfg.PoolSize)
	fillZero(&opts.MinIdleConns, cfg.MinIdleConns)
	fillZero(&opts.DialTimeout, cfg.DialTimeout)
	fillZero(&opts.ReadTimeout, cfg.ReadTimeout)
	fillZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillZero[T comparable](dst *T, fallback T) {
	var zero T
	if *dst == zero {
		*dst = fallback
	}
}

func (c *Client) conn() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	store, err := c.conn()
	if err != nil {
		return err
	}
	return store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	store, err := c.conn()
	if err != nil {
		return "", err
	}
	return store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	store, err := c.conn()
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL increments key and makes sure it expires. The expiry is only set when the key
// has none, so the window is anchored at the first increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	store, err := c.conn()
	if err != nil {
		return 0, err
	}
	count, err := store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 {
		if err := store.ExpireNX(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	store, err := c.conn()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return store.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	store, err := c.conn()
	if err != nil {
		return err
	}
	return store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// setIfNewerScript: KEYS[1] value, KEYS[2] version; ARGV value, version, ttl ms.
const setIfNewerScript = `
local applied = tonumber(redis.call("GET", KEYS[2]) or "0")
if tonumber(ARGV[2]) <= applied then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`

// SetIfNewer atomically stores value under valueKey when version is greater than the
// version stored under versionKey. It reports whether the write happened.
func (c *Client) SetIfNewer(ctx context.Context, valueKey, versionKey, value string, version int64, ttl time.Duration) (bool, error) {
	store, err := c.conn()
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}
	res, err := store.Eval(ctx, setIfNewerScript, []string{valueKey, versionKey}, value, version, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// incrAboveScript: KEYS[1] counter, KEYS[2] floor; ARGV ttl ms.
const incrAboveScript = `
local n = redis.call("INCR", KEYS[1])
local floor = tonumber(redis.call("GET", KEYS[2]) or "0")
if n <= floor then
  n = floor + 1
  redis.call("SET", KEYS[1], n)
end
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return n
`

// IncrAbove increments counterKey and returns a value strictly greater than the integer
// stored under floorKey, lifting the counter when it fell behind (expired or evicted).
// The counter's expiry is renewed on every call.
func (c *Client) IncrAbove(ctx context.Context, counterKey, floorKey string, ttl time.Duration) (int64, error) {
	return c.evalCounter(ctx, incrAboveScript, counterKey, floorKey, ttl)
}

// incrInvalidatingScript: KEYS[1] counter, KEYS[2] dependent; ARGV ttl ms.
const incrInvalidatingScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("DEL", KEYS[2])
end
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return n
`

// IncrInvalidating increments counterKey with a sliding expiry. When the counter starts
// over, dependentKey is deleted so nothing recorded against the old sequence survives.
func (c *Client) IncrInvalidating(ctx context.Context, counterKey, dependentKey string, ttl time.Duration) (int64, error) {
	return c.evalCounter(ctx, incrInvalidatingScript, counterKey, dependentKey, ttl)
}

func (c *Client) evalCounter(ctx context.Context, script, counterKey, otherKey string, ttl time.Duration) (int64, error) {
	store, err := c.conn()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, errors.New("ttl must be positive")
	}
	n, err := store.Eval(ctx, script, []string{counterKey, otherKey}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", counterKey, err)
	}
	return n, nil
}

func (c *Client) IdempotencyKey(scope, id string) string { return key("idempotency", scope, id) }
func (c *Client) RateLimitKey(scope string) string      { return key("rate_limit", scope) }
func (c *Client) AccessSessionKey(jti string) string    { return key("session", "access", jti) }

func (c *Client) CartSnapshotKey(sid string) string { return key("cart", sid, "snapshot") }
func (c *Client) CartCountKey(sid string) string    { return key("cart", sid, "count") }
func (c *Client) CartTicketKey(sid string) string   { return key("cart", sid, "ticket") }

// CartAppliedKey holds the newest refresh ticket written to the snapshot.
func (c *Client) CartAppliedKey(sid string) string { return key("cart", sid, "applied") }

// key joins non-empty parts under the namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
