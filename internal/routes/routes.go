package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/badge"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/clients"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/gateway"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/lifecycle"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/notifications"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/metrics"
)

// Deps bundles everything the worker's own HTTP surface needs. Any path not
// claimed here falls through to the fetch interceptor.
type Deps struct {
	Worker      *lifecycle.Worker
	Hub         *clients.Hub
	Center      *notifications.Center
	Badge       *badge.Counter
	Metrics     *metrics.Metrics
	Interceptor *gateway.Interceptor
	Started     time.Time
}

// New wires the worker endpoints and mounts the interceptor as the default
// handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "offline gateway healthy",
			"meta": map[string]interface{}{
				"state":          string(d.Worker.State()),
				"generation":     d.Worker.Generation(),
				"windows":        d.Hub.Count(),
				"uptime_seconds": int(time.Since(d.Started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})

	mux.Handle("/metrics", d.Metrics.Handler())

	mux.HandleFunc("/ws", d.Hub.Attach)

	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		// Opening the tray acknowledges everything unread.
		if r.URL.Query().Get("ack") == "1" {
			d.Badge.Reset()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":            true,
			"notifications": d.Center.List(),
			"unread":        d.Badge.Count(),
		})
	})

	mux.HandleFunc("/notifications/", func(w http.ResponseWriter, r *http.Request) {
		id, ok := clickID(r.URL.Path)
		if !ok || r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "route not found")
			return
		}
		action, err := d.Center.Click(id)
		if errors.Is(err, notifications.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, action)
	})

	mux.HandleFunc("/badge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"count": d.Badge.Count(),
		})
	})

	// Everything else is an application fetch.
	mux.Handle("/", d.Interceptor)

	return mux
}

// clickID extracts the notification ID from /notifications/{id}/click.
func clickID(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/notifications/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/click")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
