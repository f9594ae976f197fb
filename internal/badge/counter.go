package badge

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
)

const metaKey = "badge_count"

// Counter maintains the unread announcement count shown in the UI chrome.
// It lives in the same durable store as the cache, so every window attached
// to this worker converges on one value instead of each keeping its own.
type Counter struct {
	store *cache.Store
	log   *slog.Logger

	mu    sync.Mutex
	count int
}

// NewCounter loads the persisted count; absent or unparseable state starts
// at zero.
func NewCounter(store *cache.Store, log *slog.Logger) *Counter {
	c := &Counter{store: store, log: log}
	if raw, ok := store.GetMeta(metaKey); ok {
		if n, err := strconv.Atoi(string(raw)); err == nil && n >= 0 {
			c.count = n
		}
	}
	return c
}

// Increment bumps the count by one and persists it. Called once per
// NEW_NOTIFICATION broadcast.
func (c *Counter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.persistLocked()
	return c.count
}

// Reset zeroes the count; called when the user opens the notification tray.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return
	}
	c.count = 0
	c.persistLocked()
}

// Count returns the current unread count.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *Counter) persistLocked() {
	if err := c.store.PutMeta(metaKey, []byte(strconv.Itoa(c.count))); err != nil {
		c.log.Warn("badge persist failed", slog.Any("error", err))
	}
}
