package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Entry is a stored response snapshot.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt int64 // unix seconds
}

// Store is a durable response cache scoped to named generations. All
// generations share one leveldb handle; keys are namespaced per generation
// so entries written under one name are invisible to lookups under another.
//
// Key layout:
//
//	g:<generation>        marker that the generation exists
//	e:<generation>:<url>  response entry
//	m:<key>               worker metadata (badge count, subscription record)
type Store struct {
	db  *leveldb.DB
	log *slog.Logger

	// mu serializes generation creation/deletion against entry writes, so a
	// write racing a deletion of its generation is a silent no-op instead of
	// resurrecting a half-deleted namespace.
	mu sync.Mutex
}

// OpenStore opens (or creates) the cache database at path.
func OpenStore(path string, log *slog.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Open marks a generation as existing. Opening the same name twice is a
// no-op; the underlying namespace is shared. Names may not contain the key
// separator, otherwise one generation's entry namespace could alias
// another's.
func (s *Store) Open(generation string) error {
	if generation == "" || strings.Contains(generation, ":") {
		return fmt.Errorf("invalid generation name %q", generation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(generationKey(generation), []byte{1}, nil)
}

// Put stores a response snapshot under the generation. It is best-effort:
// storage errors and writes targeting a generation that no longer exists are
// logged (or silently dropped) and never surfaced to the request path.
func (s *Store) Put(generation, url string, ent Entry) {
	buf, err := encodeGob(ent)
	if err != nil {
		s.log.Warn("cache encode failed", slog.String("url", url), slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, _ := s.db.Has(generationKey(generation), nil); !ok {
		// Generation was deleted (or never opened); drop the write.
		return
	}
	if err := s.db.Put(entryKey(generation, url), buf, nil); err != nil {
		s.log.Warn("cache write failed", slog.String("url", url), slog.Any("error", err))
	}
}

// Match returns the most recently written entry for the URL in the given
// generation, if any.
func (s *Store) Match(generation, url string) (Entry, bool) {
	raw, err := s.db.Get(entryKey(generation, url), nil)
	if err != nil {
		return Entry{}, false
	}
	var ent Entry
	if err := decodeGob(raw, &ent); err != nil {
		s.log.Warn("cache decode failed", slog.String("url", url), slog.Any("error", err))
		return Entry{}, false
	}
	return ent, true
}

// DeleteGeneration removes a generation marker and every entry stored under
// it. Used only during activation cleanup.
func (s *Store) DeleteGeneration(generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	batch.Delete(generationKey(generation))

	prefix := []byte("e:" + generation + ":")
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for it.Next() {
		key := make([]byte, len(it.Key()))
		copy(key, it.Key())
		batch.Delete(key)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("scan generation %s: %w", generation, err)
	}

	return s.db.Write(batch, nil)
}

// Generations lists every generation currently marked as existing.
func (s *Store) Generations() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte("g:")), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, strings.TrimPrefix(string(it.Key()), "g:"))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// EntryCount reports how many entries a generation holds. Used by the
// health endpoint and tests.
func (s *Store) EntryCount(generation string) int {
	it := s.db.NewIterator(util.BytesPrefix([]byte("e:"+generation+":")), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}

// GetMeta reads a worker metadata value (badge count, subscription record).
func (s *Store) GetMeta(key string) ([]byte, bool) {
	raw, err := s.db.Get(metaKey(key), nil)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// PutMeta writes a worker metadata value.
func (s *Store) PutMeta(key string, value []byte) error {
	return s.db.Put(metaKey(key), value, nil)
}

// DeleteMeta removes a worker metadata value.
func (s *Store) DeleteMeta(key string) error {
	return s.db.Delete(metaKey(key), nil)
}

// NewEntry snapshots a response body and headers for storage.
func NewEntry(status int, header http.Header, body []byte) Entry {
	return Entry{
		Status:   status,
		Header:   cloneHeader(header),
		Body:     body,
		StoredAt: time.Now().Unix(),
	}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}

func generationKey(generation string) []byte { return []byte("g:" + generation) }
func metaKey(key string) []byte              { return []byte("m:" + key) }

func entryKey(generation, url string) []byte {
	return []byte("e:" + generation + ":" + url)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(raw []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(v)
}
