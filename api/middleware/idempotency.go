package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront/api/responses"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// idempotentRoutes maps "METHOD /path" to how long a completed response is replayed.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/v1/auth/sign-up": defaultIdempotencyTTL,
	"POST /api/v1/cart/items":   defaultIdempotencyTTL,
	"POST /api/v1/checkout":     criticalIdempotencyTTL,
}

// storedResponse is what sits under an idempotency key. InFlight marks a claimed key whose
// first request has not finished yet.
type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type replayer struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency requires an Idempotency-Key on the routes listed in idempotentRoutes. The first
// request with a key runs; repeats with the same body get the stored response back, repeats
// with a different body get IDEMPOTENCY_KEY_REUSED. Server errors free the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	rp := &replayer{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, requestPath(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := rp.serve(w, r, next, ttl); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
			}
		})
	}
}

func (rp *replayer) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) error {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if clientKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fingerprint := fingerprintOf(body)
	key := rp.store.IdempotencyKey(scopeOf(r), clientKey)

	claimed, err := rp.claim(ctx, key, fingerprint, ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if !claimed {
		return rp.replay(ctx, w, key, fingerprint)
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)

	if capture.statusCode() >= http.StatusInternalServerError {
		if err := rp.store.Del(ctx, key); err != nil {
			rp.warn(ctx, "idempotency.release_failed", err)
		}
		return nil
	}
	rp.remember(ctx, key, storedResponse{
		Fingerprint: fingerprint,
		Status:      capture.statusCode(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	}, ttl)
	return nil
}

func (rp *replayer) claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(storedResponse{InFlight: true, Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return rp.store.SetNX(ctx, key, string(payload), ttl)
}

func (rp *replayer) replay(ctx context.Context, w http.ResponseWriter, key, fingerprint string) error {
	raw, err := rp.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// expired between SetNX and Get
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key expired, retry the request")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	switch {
	case stored.Fingerprint != fingerprint:
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	case stored.InFlight:
		return pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress")
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return nil
}

func (rp *replayer) remember(ctx context.Context, key string, resp storedResponse, ttl time.Duration) {
	payload, err := json.Marshal(resp)
	if err == nil {
		err = rp.store.Set(ctx, key, string(payload), ttl)
	}
	if err != nil {
		rp.warn(ctx, "idempotency.persist_failed", err)
	}
}

func (rp *replayer) warn(ctx context.Context, msg string, err error) {
	if rp.logg == nil {
		return
	}
	rp.logg.Warn(rp.logg.WithField(ctx, "error", err.Error()), msg)
}

// scopeOf ties a key to the caller so two shoppers can reuse the same client key.
func scopeOf(r *http.Request) string {
	ctx := r.Context()
	return strings.Join([]string{UserIDFromContext(ctx), CartSessionIDFromContext(ctx), r.Method, r.URL.Path}, "|")
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// requestPath is matched instead of the chi pattern, which is still partial while
// group middleware runs.
func requestPath(r *http.Request) string {
	path := r.URL.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func routeTTL(method, path string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+path]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
