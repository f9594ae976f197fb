package dedupe

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache offers a small helper around Redis for announcement idempotency.
// The broker may redeliver an announcement after a worker crash; marking IDs
// here keeps a redelivery from notifying the user twice.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// FirstSeen marks an announcement ID and reports whether this was its first
// observation. false means the announcement was already handled.
func (c *Cache) FirstSeen(ctx context.Context, id string) (bool, error) {
	key := "ahava:announcement:seen:" + id
	return c.client.SetNX(ctx, key, "1", c.ttl).Result()
}
