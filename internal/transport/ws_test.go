package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades every request and writes back each text frame.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			conn.WriteMessage(mt, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + ChatPath
}

func nextEvent(t *testing.T, tr *WS) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-tr.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}, false
	}
}

func TestURLFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		page string
		want string
	}{
		{"https://chat.example.com/", "wss://chat.example.com/chat"},
		{"http://localhost:8080/index.html", "ws://localhost:8080/chat"},
		{"http://10.0.0.2:3000", "ws://10.0.0.2:3000/chat"},
		{"file://host/page", "ws://host/chat"},
	}
	for _, tt := range tests {
		got, err := URLFor(tt.page)
		if err != nil {
			t.Errorf("URLFor(%q): %v", tt.page, err)
			continue
		}
		if got != tt.want {
			t.Errorf("URLFor(%q) = %q, want %q", tt.page, got, tt.want)
		}
	}
	if _, err := URLFor("not a url"); err == nil {
		t.Error("expected error for url without host")
	}
}

func TestSendBeforeOpen(t *testing.T) {
	t.Parallel()
	tr := New("ws://127.0.0.1:1/chat")
	if err := tr.Send("hello"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestOpenReadyAndEcho(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	tr := New(wsURL(srv.URL))
	defer tr.Close()

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	ev, _ := nextEvent(t, tr)
	if ev.Kind != Ready {
		t.Fatalf("expected ready first, got %v", ev.Kind)
	}
	if !tr.Ready() {
		t.Error("expected Ready() after open")
	}

	for _, frame := range []string{"one", "bob:two:three"} {
		if err := tr.Send(frame); err != nil {
			t.Fatalf("send %q: %v", frame, err)
		}
	}
	for _, want := range []string{"one", "bob:two:three"} {
		ev, _ := nextEvent(t, tr)
		if ev.Kind != Frame || ev.Text != want {
			t.Errorf("expected frame %q, got %v %q", want, ev.Kind, ev.Text)
		}
	}
}

func TestServerCloseReportsClosed(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	tr := New(wsURL(srv.URL))
	defer tr.Close()

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	nextEvent(t, tr) // ready
	tr.Send("bye")

	ev, ok := nextEvent(t, tr)
	if !ok || ev.Kind != Closed {
		t.Fatalf("expected closed event, got %v ok=%v", ev.Kind, ok)
	}
	if ev.Err != nil {
		t.Errorf("expected normal closure, got %v", ev.Err)
	}
	if _, ok := nextEvent(t, tr); ok {
		t.Error("expected events channel to be closed")
	}
	if tr.Ready() {
		t.Error("expected not ready after close")
	}
	if err := tr.Send("late"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady after close, got %v", err)
	}
}

func TestOpenDialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr := New(wsURL(srv.URL))
	if err := tr.Open(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	ev, ok := nextEvent(t, tr)
	if !ok || ev.Kind != Closed || ev.Err == nil {
		t.Errorf("expected closed event with error, got %+v ok=%v", ev, ok)
	}
}

func TestLocalClose(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	tr := New(wsURL(srv.URL))
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	nextEvent(t, tr) // ready

	tr.Close()
	tr.Close()
	if tr.Ready() {
		t.Error("expected not ready after Close")
	}
	// The stream must terminate.
	for {
		_, ok := nextEvent(t, tr)
		if !ok {
			break
		}
	}
}
