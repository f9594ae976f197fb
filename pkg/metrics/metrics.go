package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
)

// Metrics exposes a tiny in-memory counter set for the offline gateway.
type Metrics struct {
	fetched    atomic.Int64
	bypassed   atomic.Int64
	cached     atomic.Int64
	cacheHits  atomic.Int64
	offline    atomic.Int64
	notified   atomic.Int64
	broadcasts atomic.Int64
	duplicates atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncFetched()    { m.fetched.Add(1) }
func (m *Metrics) IncBypassed()   { m.bypassed.Add(1) }
func (m *Metrics) IncCached()     { m.cached.Add(1) }
func (m *Metrics) IncCacheHit()   { m.cacheHits.Add(1) }
func (m *Metrics) IncOffline()    { m.offline.Add(1) }
func (m *Metrics) IncNotified()   { m.notified.Add(1) }
func (m *Metrics) IncBroadcast()  { m.broadcasts.Add(1) }
func (m *Metrics) IncDuplicate()  { m.duplicates.Add(1) }

// Handler exposes the counters via a small JSON response so we do not need
// to pull in a heavy metrics dependency.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "fetched": ` + itoa(m.fetched.Load()) + `,
  "bypassed": ` + itoa(m.bypassed.Load()) + `,
  "cached": ` + itoa(m.cached.Load()) + `,
  "cache_hits": ` + itoa(m.cacheHits.Load()) + `,
  "offline_fallbacks": ` + itoa(m.offline.Load()) + `,
  "notified": ` + itoa(m.notified.Load()) + `,
  "broadcasts": ` + itoa(m.broadcasts.Load()) + `,
  "duplicates": ` + itoa(m.duplicates.Load()) + `
}`))
	})
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
