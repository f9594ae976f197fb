package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/metrics"
)

const offlineBody = "Service temporarily unavailable. You appear to be offline and this page has not been cached yet."

// Config describes the interception policy.
type Config struct {
	// Origin is the application origin every non-bypassed request is
	// forwarded to.
	Origin string
	// BypassHosts are auth/storage provider domains; a request whose host
	// ends with one of these suffixes is never cached or served from cache.
	BypassHosts []string
	// APIPrefix excludes dynamic API calls from caching by path.
	APIPrefix string
	Timeout   time.Duration
}

// Interceptor applies the per-request fetch policy: bypass for provider and
// API traffic, network-first with cache fallback for everything else.
type Interceptor struct {
	cfg     Config
	store   *cache.Store
	current func() string // name of the current cache generation
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics

	// writes tracks fire-and-forget cache populations so Drain can wait for
	// them during shutdown.
	writes sync.WaitGroup
}

// New builds an interceptor in front of the configured origin. current
// resolves the cache generation to read and populate; it is consulted per
// request so a generation switch takes effect without restarting.
func New(cfg Config, store *cache.Store, current func() string, m *metrics.Metrics, log *slog.Logger) *Interceptor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Interceptor{
		cfg:     cfg,
		store:   store,
		current: current,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
		metrics: m,
	}
}

func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.RequestURI()

	if i.shouldBypass(r.Host, r.URL.Path) {
		i.metrics.IncBypassed()
		i.forward(w, r, "bypass")
		return
	}

	status, header, body, err := i.fetch(r)
	if err == nil {
		i.metrics.IncFetched()
		if r.Method == http.MethodGet && status == http.StatusOK {
			i.storeAsync(key, status, header, body)
		}
		writeResponse(w, status, header, body, "network")
		return
	}

	// Network unreachable: fall back to the cache. Cache keys are URL-only,
	// so an offline POST must never be answered with a cached GET snapshot
	// for the same URL; only GET consults the cache.
	if r.Method == http.MethodGet {
		if ent, ok := i.store.Match(i.current(), key); ok {
			i.metrics.IncCacheHit()
			writeResponse(w, ent.Status, ent.Header, ent.Body, "hit")
			return
		}
	}

	i.metrics.IncOffline()
	i.log.Warn("offline with no cached fallback",
		slog.String("method", r.Method),
		slog.String("url", key),
		slog.Any("error", err))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Ahava-Cache", "offline")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, offlineBody)
}

// shouldBypass reports whether the request must skip the cache layer
// entirely. Host matching is a plain suffix check and path matching a plain
// prefix check; caching auth or API responses would serve stale tokens and
// break session flows.
func (i *Interceptor) shouldBypass(host, path string) bool {
	h := host
	if idx := strings.LastIndex(h, ":"); idx != -1 {
		h = h[:idx]
	}
	for _, suffix := range i.cfg.BypassHosts {
		if strings.HasSuffix(h, suffix) {
			return true
		}
	}
	return i.cfg.APIPrefix != "" && strings.HasPrefix(path, i.cfg.APIPrefix)
}

// forward proxies straight to the network with no cache involvement. A
// provider-host request goes to that host; anything else goes to the origin.
func (i *Interceptor) forward(w http.ResponseWriter, r *http.Request, tag string) {
	status, header, body, err := i.fetch(r)
	if err != nil {
		i.log.Warn("bypass request failed", slog.String("url", r.URL.RequestURI()), slog.Any("error", err))
		w.Header().Set("X-Ahava-Cache", tag)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	writeResponse(w, status, header, body, tag)
}

func (i *Interceptor) fetch(r *http.Request) (int, http.Header, []byte, error) {
	target := i.targetURL(r)
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := i.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}

	header := resp.Header.Clone()
	header.Del("Content-Length")
	return resp.StatusCode, header, body, nil
}

// targetURL resolves where the request actually goes. Requests addressed to
// a bypass host keep their own destination; everything else is rewritten to
// the app origin.
func (i *Interceptor) targetURL(r *http.Request) string {
	h := r.Host
	if idx := strings.LastIndex(h, ":"); idx != -1 {
		h = h[:idx]
	}
	for _, suffix := range i.cfg.BypassHosts {
		if strings.HasSuffix(h, suffix) {
			return "https://" + r.Host + r.URL.RequestURI()
		}
	}
	return i.cfg.Origin + r.URL.RequestURI()
}

// storeAsync clones the successful response into the current generation
// without delaying the caller. Failures inside are swallowed by the store.
func (i *Interceptor) storeAsync(key string, status int, header http.Header, body []byte) {
	generation := i.current()
	ent := cache.NewEntry(status, header, body)
	i.writes.Add(1)
	go func() {
		defer i.writes.Done()
		i.store.Put(generation, key, ent)
		i.metrics.IncCached()
	}()
}

// Drain blocks until in-flight cache writes finish. Called on shutdown.
func (i *Interceptor) Drain() {
	i.writes.Wait()
}

func writeResponse(w http.ResponseWriter, status int, header http.Header, body []byte, tag string) {
	for k, vs := range header {
		if strings.EqualFold(k, "X-Ahava-Cache") {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Ahava-Cache", tag)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
