package cache

import (
	"log/slog"
	"net/http"
	"sort"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutMatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Open("v1"); err != nil {
		t.Fatalf("open generation: %v", err)
	}

	hdr := http.Header{"Content-Type": []string{"text/html"}}
	s.Put("v1", "/index.html", NewEntry(200, hdr, []byte("<html>hi</html>")))

	ent, ok := s.Match("v1", "/index.html")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if ent.Status != 200 {
		t.Errorf("status = %d, want 200", ent.Status)
	}
	if got := ent.Header.Get("Content-Type"); got != "text/html" {
		t.Errorf("content-type = %q, want text/html", got)
	}
	if string(ent.Body) != "<html>hi</html>" {
		t.Errorf("body = %q", ent.Body)
	}
}

func TestGenerationIsolation(t *testing.T) {
	s := newTestStore(t)
	for _, gen := range []string{"v1", "v2"} {
		if err := s.Open(gen); err != nil {
			t.Fatalf("open %s: %v", gen, err)
		}
	}

	s.Put("v1", "/page", NewEntry(200, nil, []byte("old")))
	s.Put("v2", "/page", NewEntry(200, nil, []byte("new")))

	if ent, ok := s.Match("v1", "/page"); !ok || string(ent.Body) != "old" {
		t.Errorf("v1 lookup = %q ok=%v, want old", ent.Body, ok)
	}
	if ent, ok := s.Match("v2", "/page"); !ok || string(ent.Body) != "new" {
		t.Errorf("v2 lookup = %q ok=%v, want new", ent.Body, ok)
	}
	if _, ok := s.Match("v3", "/page"); ok {
		t.Errorf("unknown generation should miss")
	}
}

func TestLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	if err := s.Open("v1"); err != nil {
		t.Fatal(err)
	}
	s.Put("v1", "/a", NewEntry(200, nil, []byte("first")))
	s.Put("v1", "/a", NewEntry(200, nil, []byte("second")))

	ent, ok := s.Match("v1", "/a")
	if !ok || string(ent.Body) != "second" {
		t.Fatalf("lookup = %q ok=%v, want second", ent.Body, ok)
	}
}

func TestDeleteGenerationRemovesEntries(t *testing.T) {
	s := newTestStore(t)
	for _, gen := range []string{"v1", "v2", "v3"} {
		if err := s.Open(gen); err != nil {
			t.Fatal(err)
		}
		s.Put(gen, "/asset", NewEntry(200, nil, []byte(gen)))
	}

	if err := s.DeleteGeneration("v1"); err != nil {
		t.Fatalf("delete v1: %v", err)
	}
	if err := s.DeleteGeneration("v2"); err != nil {
		t.Fatalf("delete v2: %v", err)
	}

	gens, err := s.Generations()
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	sort.Strings(gens)
	if len(gens) != 1 || gens[0] != "v3" {
		t.Fatalf("generations = %v, want [v3]", gens)
	}

	if _, ok := s.Match("v1", "/asset"); ok {
		t.Errorf("v1 entry survived deletion")
	}
	if ent, ok := s.Match("v3", "/asset"); !ok || string(ent.Body) != "v3" {
		t.Errorf("v3 entry lost: %q ok=%v", ent.Body, ok)
	}
}

func TestPutToDeletedGenerationIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.Open("v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteGeneration("v1"); err != nil {
		t.Fatal(err)
	}

	s.Put("v1", "/late", NewEntry(200, nil, []byte("late")))

	if _, ok := s.Match("v1", "/late"); ok {
		t.Fatalf("write to deleted generation should be dropped")
	}
	gens, err := s.Generations()
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 0 {
		t.Fatalf("generations = %v, want none", gens)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.GetMeta("badge"); ok {
		t.Fatalf("expected missing meta")
	}
	if err := s.PutMeta("badge", []byte("3")); err != nil {
		t.Fatalf("put meta: %v", err)
	}
	raw, ok := s.GetMeta("badge")
	if !ok || string(raw) != "3" {
		t.Fatalf("meta = %q ok=%v", raw, ok)
	}
	if err := s.DeleteMeta("badge"); err != nil {
		t.Fatalf("delete meta: %v", err)
	}
	if _, ok := s.GetMeta("badge"); ok {
		t.Fatalf("meta survived delete")
	}
}

func TestOpenRejectsSeparatorInName(t *testing.T) {
	s := newTestStore(t)
	if err := s.Open("v1"); err != nil {
		t.Fatalf("open generation: %v", err)
	}
	s.Put("v1", "/page", NewEntry(200, nil, []byte("kept")))

	// A name embedding the separator would alias v1's entry namespace:
	// deleting "v1:/p" scans the same keys as v1 entries under "/p:...".
	for _, name := range []string{"", "v1:/p", ":v1"} {
		if err := s.Open(name); err == nil {
			t.Errorf("Open(%q) succeeded, want error", name)
		}
	}

	if _, ok := s.Match("v1", "/page"); !ok {
		t.Fatalf("v1 entry lost")
	}
}
