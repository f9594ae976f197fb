package notifications

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/clients"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
)

// ErrNotFound is returned when a click references an unknown or already
// closed notification.
var ErrNotFound = errors.New("notification not found")

// Notification is one shown announcement. URL is click metadata only; it is
// never displayed to the user.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// ClickAction is the resolved outcome of a notification click: focus an
// existing window or open a new one at the target URL.
type ClickAction struct {
	Action   string `json:"action"` // "focus" or "open"
	URL      string `json:"url"`
	WindowID string `json:"window_id,omitempty"`
}

// WindowDirectory is the slice of the hub the router needs.
type WindowDirectory interface {
	Windows() []clients.WindowInfo
	Send(id string, msg models.ClientMessage) bool
}

// Center stores shown notifications and routes clicks on them.
type Center struct {
	windows WindowDirectory
	log     *slog.Logger

	mu    sync.Mutex
	byID  map[string]Notification
	order []string
}

// NewCenter returns an empty notification center.
func NewCenter(windows WindowDirectory, log *slog.Logger) *Center {
	return &Center{
		windows: windows,
		log:     log,
		byID:    make(map[string]Notification),
	}
}

// Show records a notification and returns it.
func (c *Center) Show(title, body, url string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	c.mu.Lock()
	c.byID[n.ID] = n
	c.order = append(c.order, n.ID)
	c.mu.Unlock()
	return n
}

// List returns shown notifications, newest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		if n, ok := c.byID[c.order[i]]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Click closes the notification, then resolves a focus-or-open action: the
// first connected window whose location contains the target URL is focused;
// with no match the caller is told to open exactly one new window. Match
// order is whatever the hub happens to return, which mirrors the platform's
// "any matching window" guarantee.
func (c *Center) Click(id string) (ClickAction, error) {
	c.mu.Lock()
	n, ok := c.byID[id]
	if ok {
		// Close first; the notification must not linger once acted on.
		delete(c.byID, id)
	}
	c.mu.Unlock()
	if !ok {
		return ClickAction{}, ErrNotFound
	}

	target := n.URL
	if target == "" {
		target = models.DefaultURL
	}

	for _, win := range c.windows.Windows() {
		if !strings.Contains(win.URL, target) {
			continue
		}
		if c.windows.Send(win.ID, models.ClientMessage{Type: models.MessageFocusWindow, URL: target}) {
			c.log.Info("notification click focused window",
				slog.String("notification_id", id),
				slog.String("window_id", win.ID))
			return ClickAction{Action: "focus", URL: target, WindowID: win.ID}, nil
		}
		// Window vanished between enumeration and send; try the next match.
	}

	c.log.Info("notification click opens new window",
		slog.String("notification_id", id),
		slog.String("url", target))
	return ClickAction{Action: "open", URL: target}, nil
}

// Len reports how many notifications are currently held.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
