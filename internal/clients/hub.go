package clients

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/metrics"
)

const (
	helloTimeout = 10 * time.Second
	writeTimeout = 5 * time.Second
	sendBuffer   = 16
)

// WindowInfo is the hub's view of one connected application window.
type WindowInfo struct {
	ID         string
	URL        string
	Generation string
}

// Hub tracks every open application window over a websocket each window
// holds for its lifetime. The worker broadcasts typed messages to all of
// them, including windows attached before the current generation claimed
// control.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	windows    map[string]*window
	controller string
}

type window struct {
	id   string
	conn *websocket.Conn
	send chan models.ClientMessage

	mu         sync.Mutex
	url        string
	generation string
}

// NewHub returns an empty hub; controller is the generation that currently
// claims new windows.
func NewHub(controller string, m *metrics.Metrics, log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		metrics:    m,
		windows:    make(map[string]*window),
		controller: controller,
	}
}

// Attach upgrades the request to a websocket and keeps the window registered
// until the connection drops. The first frame must be a WindowHello carrying
// the window's location; later frames of the same shape update it as the
// window navigates.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("window attach failed", slog.Any("error", err))
		return
	}

	helloCtx, cancel := context.WithTimeout(r.Context(), helloTimeout)
	var hello models.WindowHello
	err = wsjson.Read(helloCtx, conn, &hello)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "expected hello frame")
		return
	}

	win := &window{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan models.ClientMessage, sendBuffer),
		url:  hello.URL,
	}

	h.mu.Lock()
	win.generation = h.controller
	h.windows[win.id] = win
	h.mu.Unlock()

	h.log.Info("window attached", slog.String("window_id", win.id), slog.String("url", hello.URL))

	go h.writeLoop(win)
	h.readLoop(r.Context(), win)

	h.detach(win, websocket.StatusNormalClosure, "")
}

func (h *Hub) writeLoop(win *window) {
	for msg := range win.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, win.conn, msg)
		cancel()
		if err != nil {
			h.detach(win, websocket.StatusAbnormalClosure, "write failed")
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, win *window) {
	for {
		var hello models.WindowHello
		if err := wsjson.Read(ctx, win.conn, &hello); err != nil {
			return
		}
		win.mu.Lock()
		win.url = hello.URL
		win.mu.Unlock()
	}
}

func (h *Hub) detach(win *window, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, present := h.windows[win.id]
	if present {
		delete(h.windows, win.id)
		close(win.send)
	}
	h.mu.Unlock()
	if present {
		_ = win.conn.Close(code, reason)
		h.log.Info("window detached", slog.String("window_id", win.id))
	}
}

// Broadcast posts a message to every connected window. A window whose send
// buffer is full is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(msg models.ClientMessage) {
	h.mu.RLock()
	targets := make([]*window, 0, len(h.windows))
	for _, win := range h.windows {
		targets = append(targets, win)
	}
	h.mu.RUnlock()

	for _, win := range targets {
		if !h.trySend(win, msg) {
			h.detach(win, websocket.StatusAbnormalClosure, "send buffer full")
		}
	}
	h.metrics.IncBroadcast()
}

// Send posts a message to one window; false means the window is gone.
func (h *Hub) Send(id string, msg models.ClientMessage) bool {
	h.mu.RLock()
	win, ok := h.windows[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !h.trySend(win, msg) {
		h.detach(win, websocket.StatusAbnormalClosure, "send buffer full")
		return false
	}
	return true
}

func (h *Hub) trySend(win *window, msg models.ClientMessage) bool {
	// The send channel may close concurrently with a broadcast; treat that
	// as an ordinary dropped window.
	defer func() { _ = recover() }()
	select {
	case win.send <- msg:
		return true
	default:
		return false
	}
}

// Windows lists every connected window, controlled by the current generation
// or not.
func (h *Hub) Windows() []WindowInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]WindowInfo, 0, len(h.windows))
	for _, win := range h.windows {
		win.mu.Lock()
		out = append(out, WindowInfo{ID: win.id, URL: win.url, Generation: win.generation})
		win.mu.Unlock()
	}
	return out
}

// Claim stamps every connected window with the new controller generation and
// tells them about it, so windows attached under an older generation start
// using the new one without reconnecting.
func (h *Hub) Claim(generation string) {
	h.mu.Lock()
	h.controller = generation
	targets := make([]*window, 0, len(h.windows))
	for _, win := range h.windows {
		win.mu.Lock()
		win.generation = generation
		win.mu.Unlock()
		targets = append(targets, win)
	}
	h.mu.Unlock()

	msg := models.ClientMessage{Type: models.MessageControllerChange, Generation: generation}
	for _, win := range targets {
		if !h.trySend(win, msg) {
			h.detach(win, websocket.StatusAbnormalClosure, "send buffer full")
		}
	}
}

// Count reports the number of connected windows.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.windows)
}

// Close drops every window; used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := make([]*window, 0, len(h.windows))
	for _, win := range h.windows {
		targets = append(targets, win)
	}
	h.mu.Unlock()
	for _, win := range targets {
		h.detach(win, websocket.StatusGoingAway, "worker shutting down")
	}
}
