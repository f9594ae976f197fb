package badge

import (
	"log/slog"
	"testing"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
)

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.OpenStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartsAtZero(t *testing.T) {
	c := NewCounter(newStore(t), slog.Default())
	if c.Count() != 0 {
		t.Fatalf("count = %d, want 0", c.Count())
	}
}

func TestCorruptStateStartsAtZero(t *testing.T) {
	store := newStore(t)
	if err := store.PutMeta("badge_count", []byte("not-a-number")); err != nil {
		t.Fatal(err)
	}
	c := NewCounter(store, slog.Default())
	if c.Count() != 0 {
		t.Fatalf("count = %d, want 0 for corrupt state", c.Count())
	}

	if err := store.PutMeta("badge_count", []byte("-4")); err != nil {
		t.Fatal(err)
	}
	c = NewCounter(store, slog.Default())
	if c.Count() != 0 {
		t.Fatalf("count = %d, want 0 for negative state", c.Count())
	}
}

func TestIncrementPersists(t *testing.T) {
	store := newStore(t)
	c := NewCounter(store, slog.Default())
	c.Increment()
	c.Increment()
	c.Increment()

	// A fresh counter over the same store sees the persisted value.
	again := NewCounter(store, slog.Default())
	if again.Count() != 3 {
		t.Fatalf("reloaded count = %d, want 3", again.Count())
	}
}

func TestResetPersists(t *testing.T) {
	store := newStore(t)
	c := NewCounter(store, slog.Default())
	c.Increment()
	c.Reset()
	if c.Count() != 0 {
		t.Fatalf("count = %d, want 0 after reset", c.Count())
	}

	again := NewCounter(store, slog.Default())
	if again.Count() != 0 {
		t.Fatalf("reloaded count = %d, want 0", again.Count())
	}
}
