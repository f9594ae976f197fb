package clients

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/metrics"
)

type testWindow struct {
	conn *websocket.Conn
}

func dialWindow(t *testing.T, serverURL, pageURL string) *testWindow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := wsjson.Write(ctx, conn, models.WindowHello{URL: pageURL}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return &testWindow{conn: conn}
}

func (w *testWindow) read(t *testing.T) models.ClientMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg models.ClientMessage
	if err := wsjson.Read(ctx, w.conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitForWindows(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d windows (have %d)", n, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesAllWindows(t *testing.T) {
	hub := NewHub("v1", metrics.New(), slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(hub.Attach))
	defer srv.Close()
	defer hub.Close()

	a := dialWindow(t, srv.URL, "/?tab=home")
	b := dialWindow(t, srv.URL, "/?tab=community")
	waitForWindows(t, hub, 2)

	hub.Broadcast(models.ClientMessage{Type: models.MessageNewNotification})

	for _, win := range []*testWindow{a, b} {
		msg := win.read(t)
		if msg.Type != models.MessageNewNotification {
			t.Errorf("message type = %q, want %q", msg.Type, models.MessageNewNotification)
		}
	}
}

func TestSendTargetsOneWindow(t *testing.T) {
	hub := NewHub("v1", metrics.New(), slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(hub.Attach))
	defer srv.Close()
	defer hub.Close()

	win := dialWindow(t, srv.URL, "/?tab=community")
	waitForWindows(t, hub, 1)

	infos := hub.Windows()
	if len(infos) != 1 {
		t.Fatalf("windows = %d, want 1", len(infos))
	}
	if infos[0].URL != "/?tab=community" {
		t.Fatalf("window url = %q", infos[0].URL)
	}

	if !hub.Send(infos[0].ID, models.ClientMessage{Type: models.MessageFocusWindow, URL: "/?tab=community"}) {
		t.Fatalf("send to live window failed")
	}
	msg := win.read(t)
	if msg.Type != models.MessageFocusWindow || msg.URL != "/?tab=community" {
		t.Errorf("got %+v", msg)
	}

	if hub.Send("nope", models.ClientMessage{Type: models.MessageFocusWindow}) {
		t.Errorf("send to unknown window should fail")
	}
}

func TestClaimStampsGenerationAndNotifies(t *testing.T) {
	hub := NewHub("v1", metrics.New(), slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(hub.Attach))
	defer srv.Close()
	defer hub.Close()

	win := dialWindow(t, srv.URL, "/")
	waitForWindows(t, hub, 1)

	hub.Claim("v2")

	msg := win.read(t)
	if msg.Type != models.MessageControllerChange || msg.Generation != "v2" {
		t.Fatalf("got %+v, want controller change to v2", msg)
	}
	if infos := hub.Windows(); infos[0].Generation != "v2" {
		t.Errorf("window generation = %q, want v2", infos[0].Generation)
	}
}

func TestNavigationUpdatesURL(t *testing.T) {
	hub := NewHub("v1", metrics.New(), slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(hub.Attach))
	defer srv.Close()
	defer hub.Close()

	win := dialWindow(t, srv.URL, "/?tab=home")
	waitForWindows(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, win.conn, models.WindowHello{URL: "/?tab=journal"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		infos := hub.Windows()
		if len(infos) == 1 && infos[0].URL == "/?tab=journal" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("url never updated: %+v", infos)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
