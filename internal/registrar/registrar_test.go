package registrar

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
)

func testServerKey(t *testing.T) string {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes())
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.OpenStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func alwaysActive() bool { return true }

func TestRegisterPostsSubscriptionOnce(t *testing.T) {
	var posts atomic.Int64
	var lastBody []byte
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/subscribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		posts.Add(1)
		lastBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer relay.Close()

	store := newStore(t)
	cfg := Config{
		Enabled:         true,
		RelayURL:        relay.URL,
		SubscribePath:   "/api/subscribe",
		ServerPublicKey: testServerKey(t),
		Endpoint:        relay.URL + "/api/push/ahava.worker.1",
	}

	if err := New(cfg, store, alwaysActive, slog.Default()).Register(context.Background()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// Second boot: the local record must suppress a second subscription.
	if err := New(cfg, store, alwaysActive, slog.Default()).Register(context.Background()); err != nil {
		t.Fatalf("second register: %v", err)
	}

	if posts.Load() != 1 {
		t.Fatalf("relay received %d posts, want exactly 1", posts.Load())
	}

	var rec models.SubscriptionRecord
	if err := json.Unmarshal(lastBody, &rec); err != nil {
		t.Fatalf("decode posted record: %v", err)
	}
	if rec.Endpoint != cfg.Endpoint {
		t.Errorf("endpoint = %q", rec.Endpoint)
	}
	if rec.ExpirationTime != nil {
		t.Errorf("expirationTime = %v, want null", *rec.ExpirationTime)
	}
	p256dh, err := base64.RawURLEncoding.DecodeString(rec.Keys.P256dh)
	if err != nil || len(p256dh) != 65 || p256dh[0] != 0x04 {
		t.Errorf("p256dh is not an uncompressed P-256 point: err=%v len=%d", err, len(p256dh))
	}
	if auth, err := base64.RawURLEncoding.DecodeString(rec.Keys.Auth); err != nil || len(auth) != 16 {
		t.Errorf("auth secret malformed: err=%v len=%d", err, len(auth))
	}
}

func TestRelayFailureRetriesNextBoot(t *testing.T) {
	var posts atomic.Int64
	var failing atomic.Bool
	failing.Store(true)
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"database down"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer relay.Close()

	store := newStore(t)
	cfg := Config{
		Enabled:         true,
		RelayURL:        relay.URL,
		SubscribePath:   "/api/subscribe",
		ServerPublicKey: testServerKey(t),
		Endpoint:        "queue:ahava.worker.2",
	}

	// Failure is logged, not returned, and leaves no local record.
	if err := New(cfg, store, alwaysActive, slog.Default()).Register(context.Background()); err != nil {
		t.Fatalf("register during outage: %v", err)
	}
	if _, ok := store.GetMeta("push_subscription"); ok {
		t.Fatalf("failed registration must not persist a local record")
	}

	failing.Store(false)
	if err := New(cfg, store, alwaysActive, slog.Default()).Register(context.Background()); err != nil {
		t.Fatalf("register after recovery: %v", err)
	}
	if posts.Load() != 2 {
		t.Fatalf("posts = %d, want 2 (retry on next boot)", posts.Load())
	}
	if _, ok := store.GetMeta("push_subscription"); !ok {
		t.Fatalf("successful registration must persist the record")
	}
}

func TestDisabledCapabilityIsNoOp(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("relay must not be contacted when capability is absent")
	}))
	defer relay.Close()

	cfg := Config{Enabled: false, RelayURL: relay.URL, SubscribePath: "/api/subscribe"}
	if err := New(cfg, newStore(t), alwaysActive, slog.Default()).Register(context.Background()); err != nil {
		t.Fatalf("disabled register: %v", err)
	}
}

func TestInvalidServerKeyIsAnError(t *testing.T) {
	cfg := Config{
		Enabled:         true,
		RelayURL:        "http://relay.invalid",
		SubscribePath:   "/api/subscribe",
		ServerPublicKey: "dG9vLXNob3J0",
	}
	if err := New(cfg, newStore(t), alwaysActive, slog.Default()).Register(context.Background()); err == nil {
		t.Fatalf("expected error for malformed server key")
	}
}

func TestValidateServerKeyAcceptsPadding(t *testing.T) {
	key := testServerKey(t)
	padded := key + "=="

	if err := validateServerKey(padded); err != nil {
		t.Fatalf("validate padded key: %v", err)
	}
}
