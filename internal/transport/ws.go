// Package transport owns the single persistent WebSocket connection between a
// chat client and the server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBufferSize  = 256
	eventBufferSize = 256
)

// ChatPath is the server endpoint that accepts chat connections.
const ChatPath = "/chat"

var (
	ErrNotReady   = errors.New("transport not ready")
	ErrBufferFull = errors.New("transport send buffer full")
)

// EventKind tells transport events apart.
type EventKind int

const (
	Ready EventKind = iota
	Frame
	Closed
)

func (k EventKind) String() string {
	switch k {
	case Ready:
		return "ready"
	case Frame:
		return "frame"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a lifecycle or data event reported by the transport.
type Event struct {
	Kind EventKind
	Text string // Frame only
	Err  error  // Closed only; nil for a normal closure
}

// URLFor derives the chat endpoint from the page the client is hosted on:
// a secure page gets wss, anything else ws.
func URLFor(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("page url %q has no host", pageURL)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: ChatPath}).String(), nil
}

// WS is a WebSocket transport. Events are delivered in the order frames were
// received. There is no reconnection: once Closed is reported the WS is spent.
type WS struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	ready  bool
	opened bool

	send      chan string
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a transport for the given ws:// or wss:// URL.
func New(rawURL string) *WS {
	return &WS{
		url:    rawURL,
		dialer: websocket.DefaultDialer,
		send:   make(chan string, sendBufferSize),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// Open dials the server and starts the read and write pumps. Ready is the
// first event delivered on success.
func (t *WS) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.opened {
		t.mu.Unlock()
		return errors.New("transport already opened")
	}
	t.opened = true
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.emitClosed(err)
		close(t.events)
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.ready = true
	t.mu.Unlock()

	t.events <- Event{Kind: Ready}
	log.Debug().Str("url", t.url).Msg("transport ready")

	go t.readPump()
	go t.writePump()
	return nil
}

// Events returns the event stream. It is closed after the Closed event.
func (t *WS) Events() <-chan Event {
	return t.events
}

// Ready reports whether frames can be sent.
func (t *WS) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Send queues a text frame for the write pump.
func (t *WS) Send(frame string) error {
	if !t.Ready() {
		return ErrNotReady
	}
	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return ErrNotReady
	default:
		return ErrBufferFull
	}
}

// Close performs a normal closure. It is safe to call more than once.
func (t *WS) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.ready = false
		t.mu.Unlock()
		close(t.done)
	})
	return nil
}

func (t *WS) readPump() {
	var cause error
	defer func() {
		t.mu.Lock()
		t.ready = false
		t.mu.Unlock()
		t.conn.Close()
		t.emitClosed(cause)
		close(t.events)
	}()

	t.conn.SetReadLimit(maxMessageSize)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					cause = err
					log.Warn().Err(err).Str("url", t.url).Msg("transport read error")
				}
			}
			return
		}
		select {
		case t.events <- Event{Kind: Frame, Text: string(data)}:
		case <-t.done:
			return
		}
	}
}

func (t *WS) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case frame := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				log.Warn().Err(err).Str("url", t.url).Msg("transport write error")
				return
			}
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// emitClosed never blocks; the event buffer only fills when nobody listens.
func (t *WS) emitClosed(err error) {
	select {
	case t.events <- Event{Kind: Closed, Err: err}:
	default:
	}
}
