package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// WorkerConfig holds the offline gateway worker configuration loaded from
// the environment.
type WorkerConfig struct {
	AppName  string
	LogLevel string
	HTTPPort string

	// Fetch interception
	OriginURL    string
	BypassHosts  []string
	APIPrefix    string
	FetchTimeout time.Duration

	// Cache generations
	CachePath      string
	CacheVersion   string
	PrecacheAssets []string

	// Push channel (optional: empty RabbitURL disables push entirely)
	RabbitURL        string
	AnnounceExchange string
	WorkerQueue      string
	PrefetchCount    int
	WorkerCount      int

	// Relay registration (optional: empty RelayURL disables registration)
	RelayURL        string
	SubscribePath   string
	ServerPublicKey string

	// Announcement dedupe (optional)
	RedisURL  string
	DedupeTTL time.Duration
}

// RelayConfig holds the announcement relay configuration.
type RelayConfig struct {
	AppName  string
	LogLevel string
	HTTPPort string

	DatabaseURL       string
	SubscriptionTable string

	RabbitURL        string
	AnnounceExchange string

	PublishMaxAttempts    int
	PublishInitialBackoff time.Duration
	PublishMaxBackoff     time.Duration
}

// LoadWorker loads the worker configuration and performs basic validation.
func LoadWorker() (*WorkerConfig, error) {
	_ = godotenv.Load()

	cfg := &WorkerConfig{
		AppName:  getEnv("APP_NAME", "ahava_gateway"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		OriginURL:    strings.TrimRight(getEnv("ORIGIN_URL", ""), "/"),
		BypassHosts:  getEnvAsList("BYPASS_HOSTS", "supabase.co,supabase.in"),
		APIPrefix:    getEnv("API_PREFIX", "/api"),
		FetchTimeout: getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),

		CachePath:      getEnv("CACHE_PATH", "./data/cache"),
		CacheVersion:   getEnv("CACHE_VERSION", "ahava-v1"),
		PrecacheAssets: getEnvAsList("PRECACHE_ASSETS", "/,/index.html,/manifest.json,/icon.jpg"),

		RabbitURL:        getEnv("RABBITMQ_URL", ""),
		AnnounceExchange: getEnv("ANNOUNCE_EXCHANGE", "announcements.fanout"),
		WorkerQueue:      getEnv("WORKER_QUEUE", ""),
		PrefetchCount:    getEnvAsInt("PUSH_PREFETCH", 16),
		WorkerCount:      getEnvAsInt("PUSH_WORKERS", 2),

		RelayURL:        strings.TrimRight(getEnv("RELAY_URL", ""), "/"),
		SubscribePath:   getEnv("RELAY_SUBSCRIBE_PATH", "/api/subscribe"),
		ServerPublicKey: getEnv("VAPID_PUBLIC_KEY", ""),

		RedisURL:  getEnv("REDIS_URL", ""),
		DedupeTTL: getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRelay loads the relay configuration and performs basic validation.
func LoadRelay() (*RelayConfig, error) {
	_ = godotenv.Load()

	cfg := &RelayConfig{
		AppName:  getEnv("APP_NAME", "ahava_relay"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8081"),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SubscriptionTable: getEnv("SUBSCRIPTION_TABLE", "push_subscriptions"),

		RabbitURL:        getEnv("RABBITMQ_URL", ""),
		AnnounceExchange: getEnv("ANNOUNCE_EXCHANGE", "announcements.fanout"),

		PublishMaxAttempts:    getEnvAsInt("PUBLISH_MAX_ATTEMPTS", 4),
		PublishInitialBackoff: getEnvAsDuration("PUBLISH_INITIAL_BACKOFF", time.Second),
		PublishMaxBackoff:     getEnvAsDuration("PUBLISH_MAX_BACKOFF", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *WorkerConfig) validate() error {
	var missing []string
	if c.OriginURL == "" {
		missing = append(missing, "ORIGIN_URL")
	}
	// Push is optional, but a configured broker needs a queue identity.
	if c.RabbitURL != "" && c.WorkerQueue == "" {
		missing = append(missing, "WORKER_QUEUE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func (c *RelayConfig) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// PushEnabled reports whether the worker should consume announcements.
func (c *WorkerConfig) PushEnabled() bool {
	return c.RabbitURL != ""
}

// RegistrationEnabled reports whether the push capability is present; when
// it is not, the registrar is a no-op rather than an error.
func (c *WorkerConfig) RegistrationEnabled() bool {
	return c.RelayURL != "" && c.ServerPublicKey != "" && c.PushEnabled()
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

func getEnvAsList(key, def string) []string {
	raw := getEnv(key, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
