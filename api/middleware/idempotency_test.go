package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key], _ = value.(string)
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func keyed(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/auth/sign-up", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/cart/items", defaultIdempotencyTTL, true},
		{http.MethodPatch, "/api/v1/cart/items/abc", 0, false},
		{http.MethodPost, "/api/v1/auth/sign-in", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok || ttl != tt.want {
			t.Fatalf("%s %s: got (%v, %v), want (%v, %v)", tt.method, tt.path, ttl, ok, tt.want, tt.ok)
		}
	}
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	called := false
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	mw.ServeHTTP(httptest.NewRecorder(), keyed("/api/v1/auth/sign-in", "", `{}`))
	if !called {
		t.Fatal("unlisted route should pass through without a key")
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without idempotency key")
	}))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, keyed("/api/v1/auth/sign-up", "", `{"foo":"bar"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls int
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, keyed("/api/v1/auth/sign-up", "abc", `{"foo":"bar"}`))
	if first.Code != http.StatusAccepted || first.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}

	again := httptest.NewRecorder()
	mw.ServeHTTP(again, keyed("/api/v1/auth/sign-up", "abc", `{"foo":"bar"}`))
	if again.Code != http.StatusAccepted || again.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected replay %d %v", again.Code, again.Header())
	}
	if again.Header().Get("Idempotent-Replayed") != "true" || again.Body.String() != `{"ok":true}` {
		t.Fatalf("unexpected replay body %q", again.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mw.ServeHTTP(httptest.NewRecorder(), keyed("/api/v1/auth/sign-up", "xyz", `{"foo":"bar"}`))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, keyed("/api/v1/auth/sign-up", "xyz", `{"foo":"diff"}`))

	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	var calls int
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		mw.ServeHTTP(httptest.NewRecorder(), keyed("/api/v1/checkout", "retry-me", `{"cart":"c1"}`))
	}
	if calls != 2 {
		t.Fatalf("expected retry after server error, handler ran %d times", calls)
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	var outer http.Handler
	outer = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dup := httptest.NewRecorder()
		Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("duplicate must not reach the handler")
		})).ServeHTTP(dup, keyed("/api/v1/checkout", "busy", `{"cart":"c1"}`))
		if dup.Code != http.StatusConflict {
			t.Errorf("expected 409 for in-flight duplicate, got %d", dup.Code)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	outer.ServeHTTP(httptest.NewRecorder(), keyed("/api/v1/checkout", "busy", `{"cart":"c1"}`))
}
