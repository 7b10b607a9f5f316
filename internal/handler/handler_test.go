package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devaloi/lobbychat/internal/domain"
	"github.com/devaloi/lobbychat/internal/hub"
	"github.com/devaloi/lobbychat/internal/testutil"
)

func newServer(t *testing.T) (*hub.Hub, *testutil.MockMessageLog, *httptest.Server) {
	t.Helper()
	s := testutil.NewMockMessageLog()
	h := hub.New(s, hub.Options{TickInterval: time.Hour})
	go h.Run()
	t.Cleanup(h.Stop)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return h, s, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	Health()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected ok, got %s", body["status"])
	}
}

func TestListRoomsHasLobby(t *testing.T) {
	t.Parallel()
	_, _, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS header, got %q", got)
	}
	var rooms []domain.Room
	json.NewDecoder(resp.Body).Decode(&rooms)
	if len(rooms) != 1 || rooms[0].Name != domain.Lobby {
		t.Errorf("expected only the lobby, got %+v", rooms)
	}
}

func TestRoomInfoNotFound(t *testing.T) {
	t.Parallel()
	_, _, srv := newServer(t)

	for _, path := range []string{"/api/rooms/nonexistent", "/api/rooms/nonexistent/history"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestWSLoginAndChat(t *testing.T) {
	t.Parallel()
	h, s, srv := newServer(t)
	conn := dial(t, srv)

	conn.WriteMessage(websocket.TextMessage, []byte("__login__alice"))
	if got := readFrame(t, conn); got != "__login_ok__" {
		t.Fatalf("expected login ok, got %q", got)
	}
	if got := readFrame(t, conn); got != "__rooms__lobby" {
		t.Fatalf("expected room list, got %q", got)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("__join__lobby"))
	if got := readFrame(t, conn); !strings.HasPrefix(got, domain.PrefixLobbyTick) {
		t.Fatalf("expected lobby tick, got %q", got)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("alice:hello: world"))
	if got := readFrame(t, conn); got != "alice:hello: world" {
		t.Errorf("expected chat echo, got %q", got)
	}

	info := h.RoomInfo(domain.Lobby)
	if info == nil || info.UserCount != 1 {
		t.Errorf("expected 1 user in lobby, got %+v", info)
	}
	if recs, _ := s.History(domain.Lobby, 10); len(recs) != 1 {
		t.Errorf("expected 1 stored message, got %d", len(recs))
	}
}

func TestRoomHistoryEndpoint(t *testing.T) {
	t.Parallel()
	_, _, srv := newServer(t)
	conn := dial(t, srv)

	for _, f := range []string{"__login__bob", "__switch__games", "bob:first", "bob:second"} {
		conn.WriteMessage(websocket.TextMessage, []byte(f))
	}
	for {
		if readFrame(t, conn) == "bob:second" {
			break
		}
	}

	resp, err := http.Get(srv.URL + "/api/rooms/games/history")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var recs []domain.Record
	json.NewDecoder(resp.Body).Decode(&recs)
	if len(recs) != 2 || recs[0].Text != "first" || recs[1].Text != "second" {
		t.Errorf("unexpected history %+v", recs)
	}
}

func TestWSDisconnectLeavesRoom(t *testing.T) {
	t.Parallel()
	h, _, srv := newServer(t)
	conn := dial(t, srv)

	conn.WriteMessage(websocket.TextMessage, []byte("__login__carol"))
	conn.WriteMessage(websocket.TextMessage, []byte("__switch__temp"))
	for readFrame(t, conn) != "__clear__" {
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.RoomInfo("temp") == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected temp room to be removed after disconnect")
}
