package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
)

// Store persists worker subscriptions.
type Store interface {
	Upsert(ctx context.Context, rec models.SubscriptionRecord) error
	Count(ctx context.Context) (int64, error)
}

// Broker fans announcements out to registered workers.
type Broker interface {
	Publish(ctx context.Context, payload json.RawMessage) (models.Announcement, error)
}

// Server exposes the relay's HTTP API: subscription registration for workers
// and announcement publishing for operators.
type Server struct {
	store   Store
	broker  Broker
	started time.Time
	logger  *slog.Logger
}

func NewServer(store Store, broker Broker, logger *slog.Logger) *Server {
	return &Server{
		store:   store,
		broker:  broker,
		started: time.Now(),
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/subscribe", s.handleSubscribe)
	mux.HandleFunc("/api/announce", s.handleAnnounce)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	subscribers, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Warn("subscriber count failed", slog.Any("error", err))
		subscribers = -1
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "announcement relay healthy",
		"meta": map[string]interface{}{
			"subscribers":    subscribers,
			"uptime_seconds": int(time.Since(s.started).Seconds()),
			"timestamp":      time.Now().UTC(),
		},
	})
}

// handleSubscribe upserts a worker subscription keyed by endpoint. Repeat
// registrations from the same worker succeed and leave a single row.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var rec models.SubscriptionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription body")
		return
	}
	if rec.Endpoint == "" || rec.Keys.P256dh == "" || rec.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	if err := s.store.Upsert(r.Context(), rec); err != nil {
		s.logger.Error("subscription upsert failed", slog.String("endpoint", rec.Endpoint), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to store subscription")
		return
	}

	s.logger.Info("subscription registered", slog.String("endpoint", rec.Endpoint))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload models.PushPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid announcement body")
		return
	}
	if payload.Title == "" && payload.Body == "" {
		writeError(w, http.StatusBadRequest, "title or body is required")
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode payload")
		return
	}

	ann, err := s.broker.Publish(r.Context(), raw)
	if err != nil {
		s.logger.Error("announcement publish failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "failed to publish announcement")
		return
	}

	s.logger.Info("announcement published", slog.String("id", ann.ID), slog.String("title", payload.Title))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ok": true,
		"id": ann.ID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
