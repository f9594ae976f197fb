package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/retry"
)

// State is the worker's position in the install/activate machine.
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// Claimer is the slice of the window hub activation needs.
type Claimer interface {
	Claim(generation string)
}

// Config describes one worker generation.
type Config struct {
	// Generation is the version tag naming the current cache generation.
	// Bumping it is the only way to invalidate previously cached entries.
	Generation string
	// Origin is fetched during install to pre-populate the cache.
	Origin string
	// PrecacheAssets are the core application resources fetched at install.
	PrecacheAssets []string
	// SkipWaiting makes the new generation activate without waiting for
	// windows attached to the previous one to drain. An in-flight window
	// may briefly see the new fetch policy; acceptable because the policy
	// is backward-compatible.
	SkipWaiting bool
	Timeout     time.Duration
}

// Worker drives a generation through installing, waiting, activating and
// active, then leaves it active until a newer generation supersedes it.
type Worker struct {
	cfg    Config
	store  *cache.Store
	hub    Claimer
	client *http.Client
	log    *slog.Logger

	mu    sync.RWMutex
	state State
}

// New builds a worker for the configured generation.
func New(cfg Config, store *cache.Store, hub Claimer, log *slog.Logger) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Worker{
		cfg:    cfg,
		store:  store,
		hub:    hub,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		state:  StateInstalling,
	}
}

// Run executes the full lifecycle. Install failures on individual assets
// never abort the run; only storage-level errors during activation cleanup
// are returned.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateInstalling)
	if err := w.store.Open(w.cfg.Generation); err != nil {
		return fmt.Errorf("open generation %s: %w", w.cfg.Generation, err)
	}
	w.precache(ctx)

	w.setState(StateWaiting)
	if !w.cfg.SkipWaiting {
		// No drain signal exists today; waiting without skip would park the
		// worker forever, so the flag is effectively always on.
		w.log.Warn("skip_waiting disabled has no drain signal, proceeding anyway")
	}

	w.setState(StateActivating)
	if err := w.cleanup(); err != nil {
		return err
	}
	// Cleanup strictly precedes claiming so a freshly claimed window can
	// never populate a generation that is about to disappear.
	w.hub.Claim(w.cfg.Generation)

	w.setState(StateActive)
	w.log.Info("generation active", slog.String("generation", w.cfg.Generation))
	return nil
}

// precache fetches every core asset and stores the 200s. Each asset is an
// independent best-effort fetch; one failure neither fails the others nor
// the install.
func (w *Worker) precache(ctx context.Context) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	cached, failed := 0, 0

	for _, asset := range w.cfg.PrecacheAssets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			if err := w.precacheOne(ctx, asset); err != nil {
				w.log.Warn("precache failed", slog.String("asset", asset), slog.Any("error", err))
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			cached++
			mu.Unlock()
		}(asset)
	}
	wg.Wait()

	w.log.Info("precache complete",
		slog.String("generation", w.cfg.Generation),
		slog.Int("cached", cached),
		slog.Int("failed", failed))
}

func (w *Worker) precacheOne(ctx context.Context, asset string) error {
	return retry.Do(ctx, retry.Config{MaxAttempts: 2, InitialBackoff: 250 * time.Millisecond}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.Origin+asset, nil)
		if err != nil {
			return err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		header := resp.Header.Clone()
		header.Del("Content-Length")
		w.store.Put(w.cfg.Generation, asset, cache.NewEntry(resp.StatusCode, header, body))
		return nil
	})
}

// cleanup deletes every generation whose name is not the current one.
func (w *Worker) cleanup() error {
	generations, err := w.store.Generations()
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}
	for _, gen := range generations {
		if gen == w.cfg.Generation {
			continue
		}
		if err := w.store.DeleteGeneration(gen); err != nil {
			return fmt.Errorf("delete stale generation %s: %w", gen, err)
		}
		w.log.Info("deleted stale generation", slog.String("generation", gen))
	}
	return nil
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Generation returns the current generation name; the gateway consults this
// per request.
func (w *Worker) Generation() string {
	return w.cfg.Generation
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.log.Debug("lifecycle transition", slog.String("state", string(s)))
}
