// Package peer pumps frames between one server-side WebSocket and the hub.
package peer

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/devaloi/lobbychat/internal/hub"
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

	sendBuffer = 256
)

// Router receives what a peer reads off the wire. *hub.Hub implements it.
type Router interface {
	Register(p hub.Peer)
	Unregister(p hub.Peer)
	Receive(p hub.Peer, frame string)
}

// Peer is one WebSocket connection attached to the hub.
type Peer struct {
	id     string
	router Router
	conn   *websocket.Conn
	send   chan string
	done   chan struct{}
}

// New creates a new Peer.
func New(r Router, conn *websocket.Conn) *Peer {
	return &Peer{
		id:     uuid.NewString(),
		router: r,
		conn:   conn,
		send:   make(chan string, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (p *Peer) ID() string {
	return p.id
}

// Send queues a frame to be written to the socket.
func (p *Peer) Send(frame string) {
	select {
	case p.send <- frame:
	default:
		// Send buffer full, drop frame.
		log.Warn().Str("peer", p.id).Msg("send buffer full, dropping frame")
	}
}

// Serve registers the peer and runs both pumps. It returns once the read
// side ends.
func (p *Peer) Serve() {
	p.router.Register(p)
	go p.WritePump()
	p.ReadPump()
}

// ReadPump reads frames from the WebSocket connection and routes them to the hub.
func (p *Peer) ReadPump() {
	defer func() {
		p.router.Unregister(p)
		close(p.done)
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("peer", p.id).Msg("read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		p.router.Receive(p, string(data))
	}
}

// WritePump writes frames from the send channel to the WebSocket connection.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
