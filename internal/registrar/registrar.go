package registrar

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
)

const (
	subscriptionMetaKey = "push_subscription"
	serverKeyLen        = 65 // uncompressed P-256 point
	authSecretLen       = 16
	readyPollInterval   = 100 * time.Millisecond
)

// Config describes the one-time push opt-in.
type Config struct {
	// Enabled is false when the push capability is absent (no relay, no
	// server key, no broker); registration is then a no-op, not an error.
	Enabled bool
	// RelayURL plus SubscribePath form the registration endpoint.
	RelayURL      string
	SubscribePath string
	// ServerPublicKey is the relay's public key as a URL-safe base64 string;
	// it must decode to a 65-byte uncompressed P-256 point.
	ServerPublicKey string
	// Endpoint is this worker's unique subscription identity, derived from
	// its announcement queue.
	Endpoint string
	Timeout  time.Duration
}

// Registrar performs the push opt-in once per worker installation. The
// local subscription record is checked before creating a new one, so
// repeated boots never register twice.
type Registrar struct {
	cfg    Config
	store  *cache.Store
	active func() bool
	client *http.Client
	log    *slog.Logger
}

// New builds a registrar; active reports whether the lifecycle has reached
// its active state.
func New(cfg Config, store *cache.Store, active func() bool, log *slog.Logger) *Registrar {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Registrar{
		cfg:    cfg,
		store:  store,
		active: active,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Register runs the opt-in. Outcomes other than a malformed server key are
// never errors: absent capability and relay failures are normal negative
// results, logged and retried naturally on the next boot.
func (r *Registrar) Register(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("push capability absent, skipping registration")
		return nil
	}

	if err := r.waitActive(ctx); err != nil {
		return err
	}

	if rec, ok := r.existing(); ok {
		r.log.Info("push subscription already registered", slog.String("endpoint", rec.Endpoint))
		return nil
	}

	if err := validateServerKey(r.cfg.ServerPublicKey); err != nil {
		return fmt.Errorf("invalid server public key: %w", err)
	}

	record, err := r.newSubscription()
	if err != nil {
		return err
	}

	if !r.post(ctx, record) {
		// The relay never saw us; leaving the local record absent means the
		// next boot retries the whole registration.
		return nil
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := r.store.PutMeta(subscriptionMetaKey, raw); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	r.log.Info("push subscription registered", slog.String("endpoint", record.Endpoint))
	return nil
}

// waitActive blocks until the worker generation is active, so registration
// never races installation.
func (r *Registrar) waitActive(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for !r.active() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (r *Registrar) existing() (models.SubscriptionRecord, bool) {
	raw, ok := r.store.GetMeta(subscriptionMetaKey)
	if !ok {
		return models.SubscriptionRecord{}, false
	}
	var rec models.SubscriptionRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Endpoint == "" {
		// Corrupt record: treat as absent and re-register.
		return models.SubscriptionRecord{}, false
	}
	return rec, true
}

// newSubscription generates the client key material: a fresh P-256 keypair
// (p256dh) and a random auth secret.
func (r *Registrar) newSubscription() (models.SubscriptionRecord, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("generate client key: %w", err)
	}
	auth := make([]byte, authSecretLen)
	if _, err := rand.Read(auth); err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("generate auth secret: %w", err)
	}

	return models.SubscriptionRecord{
		Endpoint:       r.cfg.Endpoint,
		ExpirationTime: nil,
		Keys: models.SubscriptionKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}, nil
}

// post registers the record with the relay. Any 2xx is success; everything
// else is logged only.
func (r *Registrar) post(ctx context.Context, record models.SubscriptionRecord) bool {
	body, err := json.Marshal(record)
	if err != nil {
		r.log.Error("subscription encode failed", slog.Any("error", err))
		return false
	}

	url := r.cfg.RelayURL + r.cfg.SubscribePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		r.log.Error("subscription request build failed", slog.Any("error", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("relay registration failed", slog.String("url", url), slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.log.Warn("relay rejected registration",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// validateServerKey checks that the configured server key is URL-safe
// base64 decoding to an uncompressed P-256 point. A bad key means the relay
// config is broken, which is worth failing loudly over.
func validateServerKey(encoded string) error {
	trimmed := strings.TrimRight(encoded, "=")
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return err
	}
	if len(raw) != serverKeyLen {
		return fmt.Errorf("expected %d key bytes, got %d", serverKeyLen, len(raw))
	}
	if raw[0] != 0x04 {
		return fmt.Errorf("key is not an uncompressed point")
	}
	return nil
}
