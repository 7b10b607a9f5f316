package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devaloi/lobbychat/internal/client"
	"github.com/devaloi/lobbychat/internal/domain"
	"github.com/devaloi/lobbychat/internal/handler"
	"github.com/devaloi/lobbychat/internal/hub"
	"github.com/devaloi/lobbychat/internal/session"
	"github.com/devaloi/lobbychat/internal/store"
	"github.com/devaloi/lobbychat/internal/transport"
)

func setupServer(t *testing.T, opts hub.Options) (*httptest.Server, *hub.Hub) {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	h := hub.New(s, opts)
	go h.Run()
	t.Cleanup(h.Stop)

	server := httptest.NewServer(handler.NewRouter(h))
	t.Cleanup(server.Close)
	return server, h
}

type chatter struct {
	*client.Client
	done chan error
}

func connect(t *testing.T, server *httptest.Server, prefs client.Prefs) *chatter {
	t.Helper()
	url, err := transport.URLFor(server.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c := &chatter{Client: client.New(transport.New(url), prefs), done: make(chan error, 1)}
	go func() { c.done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-c.done
	})
	c.await(t, "ready", func(v client.View) bool { return v.Ready })
	return c
}

func (c *chatter) await(t *testing.T, what string, cond func(client.View) bool) client.View {
	t.Helper()
	views, cancel := c.Subscribe()
	defer cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-views:
			if !ok {
				t.Fatalf("client stopped while waiting for %s", what)
			}
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s; view %+v", what, c.View())
		}
	}
}

func (c *chatter) login(t *testing.T, name string) client.View {
	t.Helper()
	require.NoError(t, c.Login(name))
	return c.await(t, name+" logged in", func(v client.View) bool {
		return v.Authenticated && v.Room == domain.Lobby
	})
}

func hasMessage(v client.View, sender, text string) bool {
	return slices.Contains(v.Transcript, domain.ChatMessage{Sender: sender, Text: text})
}

func TestLoginLandsInLobby(t *testing.T) {
	t.Parallel()
	server, h := setupServer(t, hub.Options{LobbyReset: 125 * time.Second})

	alice := connect(t, server, nil)
	v := alice.login(t, "alice")

	assert.Equal(t, "alice", v.User)
	assert.Equal(t, []string{domain.Lobby}, v.Rooms)
	v = alice.await(t, "lobby timer", func(v client.View) bool { return v.Timer != "" })
	assert.Equal(t, "02:05", v.Timer)

	info := h.RoomInfo(domain.Lobby)
	require.NotNil(t, info)
	assert.Equal(t, 1, info.UserCount)
}

func TestChatBetweenClients(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{})

	alice := connect(t, server, nil)
	bob := connect(t, server, nil)
	alice.login(t, "alice")
	bob.login(t, "bob")

	require.NoError(t, alice.SendMessage("meet at 12:30: lobby"))

	bob.await(t, "alice's message", func(v client.View) bool {
		return hasMessage(v, "alice", "meet at 12:30: lobby")
	})
	alice.await(t, "own echo", func(v client.View) bool {
		return hasMessage(v, "alice", "meet at 12:30: lobby")
	})
}

func TestReservedPrefixesSurviveAsChat(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{})

	ghost := connect(t, server, nil)
	bob := connect(t, server, nil)
	ghost.login(t, "__ghost")
	bob.login(t, "bob")

	require.NoError(t, bob.SendMessage("__login__mallory"))
	require.NoError(t, ghost.SendMessage("boo"))

	v := bob.await(t, "both messages", func(v client.View) bool {
		return hasMessage(v, "bob", "__login__mallory") && hasMessage(v, "__ghost", "boo")
	})
	assert.True(t, v.Authenticated)
	assert.Equal(t, "bob", v.User)
}

func TestCreateRoomIsBroadcast(t *testing.T) {
	t.Parallel()
	server, h := setupServer(t, hub.Options{})

	alice := connect(t, server, nil)
	bob := connect(t, server, nil)
	alice.login(t, "alice")
	bob.login(t, "bob")

	require.NoError(t, alice.CreateRoom("games"))
	v := alice.View()
	assert.Equal(t, "games", v.Room, "switch is optimistic")
	assert.Empty(t, v.Transcript)
	assert.Empty(t, v.Timer)

	bob.await(t, "room list with games", func(v client.View) bool {
		return slices.Equal(v.Rooms, []string{domain.Lobby, "games"})
	})

	require.NoError(t, alice.SendMessage("anyone?"))
	alice.await(t, "echo in games", func(v client.View) bool { return hasMessage(v, "alice", "anyone?") })
	assert.False(t, hasMessage(bob.View(), "alice", "anyone?"), "chat leaked into the lobby")

	info := h.RoomInfo("games")
	require.NotNil(t, info)
	assert.Equal(t, 1, info.UserCount)
}

func TestSwitchReplaysRoomHistory(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{})

	alice := connect(t, server, nil)
	bob := connect(t, server, nil)
	alice.login(t, "alice")
	bob.login(t, "bob")

	require.NoError(t, alice.SwitchRoom("games"))
	require.NoError(t, alice.SendMessage("first"))
	alice.await(t, "echo", func(v client.View) bool { return hasMessage(v, "alice", "first") })

	require.NoError(t, bob.SwitchRoom("games"))
	bob.await(t, "history replay", func(v client.View) bool {
		return v.Room == "games" && hasMessage(v, "alice", "first")
	})

	require.NoError(t, bob.SwitchRoom(domain.Lobby))
	v := bob.await(t, "back in lobby", func(v client.View) bool { return v.Timer != "" })
	assert.False(t, hasMessage(v, "alice", "first"))
}

func TestLobbyResetClearsLobbyOnly(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{LobbyReset: 2 * time.Second, TickInterval: 100 * time.Millisecond})

	alice := connect(t, server, nil)
	bob := connect(t, server, nil)
	alice.login(t, "alice")
	bob.login(t, "bob")
	require.NoError(t, bob.SwitchRoom("games"))
	require.NoError(t, bob.SendMessage("still here"))
	bob.await(t, "games echo", func(v client.View) bool { return hasMessage(v, "bob", "still here") })

	require.NoError(t, alice.SendMessage("soon gone"))
	alice.await(t, "lobby echo", func(v client.View) bool { return hasMessage(v, "alice", "soon gone") })

	v := alice.await(t, "lobby reset", func(v client.View) bool { return len(v.Transcript) == 0 })
	assert.Equal(t, domain.Lobby, v.Room)

	v = bob.View()
	assert.True(t, hasMessage(v, "bob", "still here"), "reset must not touch other rooms")
	assert.Empty(t, v.Timer)
}

func TestIdentityPersistsAcrossSessions(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{})
	path := filepath.Join(t.TempDir(), "prefs.db")

	prefs, err := store.NewSQLite(path)
	require.NoError(t, err)
	first := connect(t, server, prefs)
	first.login(t, "alice")
	require.NoError(t, prefs.Close())

	reopened, err := store.OpenPrefs(store.BackendSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	second := connect(t, server, reopened)
	v := second.await(t, "auto login", func(v client.View) bool { return v.Authenticated })
	assert.Equal(t, "alice", v.User)
}

func TestPebbleIdentityAndLogout(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{})

	prefs, err := store.OpenPrefs(store.BackendPebble, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { prefs.Close() })

	c := connect(t, server, prefs)
	c.login(t, "carol")
	saved, ok, err := prefs.Get(session.IdentityKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "carol", saved)

	require.NoError(t, c.Logout())
	_, ok, err = prefs.Get(session.IdentityKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, c.View().Closed)
	assert.ErrorIs(t, c.SendMessage("hello?"), client.ErrStopped)
}

func TestRoomsAPI(t *testing.T) {
	t.Parallel()
	server, _ := setupServer(t, hub.Options{})

	alice := connect(t, server, nil)
	alice.login(t, "alice")
	require.NoError(t, alice.CreateRoom("games"))
	require.NoError(t, alice.SendMessage("hello api"))
	alice.await(t, "echo", func(v client.View) bool { return hasMessage(v, "alice", "hello api") })

	resp, err := http.Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rooms []domain.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []domain.Room{{Name: "lobby", UserCount: 0}, {Name: "games", UserCount: 1}}, rooms)

	resp2, err := http.Get(server.URL + "/api/rooms/games/history")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var recs []domain.Record
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "alice", recs[0].User)
	assert.Equal(t, "hello api", recs[0].Text)
}
