package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devaloi/lobbychat/internal/domain"
	"github.com/devaloi/lobbychat/internal/store"
)

// Defaults applied by New to zero Options fields.
const (
	DefaultMaxRooms     = 100
	DefaultMaxHistory   = 50
	DefaultLobbyReset   = 5 * time.Minute
	DefaultTickInterval = time.Second
)

// ErrMaxRooms is logged when a peer asks for a room beyond the cap.
var ErrMaxRooms = errors.New("max rooms reached")

// Options tunes a Hub.
type Options struct {
	MaxRooms   int
	MaxHistory int
	// LobbyReset is the countdown period, counted in whole seconds.
	LobbyReset time.Duration
	// TickInterval is how often the countdown loses one second. Tests shorten
	// it to run a full countdown quickly.
	TickInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRooms <= 0 {
		o.MaxRooms = DefaultMaxRooms
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	if o.LobbyReset < time.Second {
		o.LobbyReset = DefaultLobbyReset
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	return o
}

type member struct {
	peer Peer
	user string
	room string
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opFrame
)

// op is one queued peer event. Registration, frames and removal of a peer
// share one channel so they are handled in the order they happened.
type op struct {
	kind  opKind
	peer  Peer
	frame string
}

// Hub owns every room and connected peer. All state changes happen on the
// Run goroutine; the mutex only guards readers from other goroutines.
type Hub struct {
	opts    Options
	store   store.MessageLog
	rooms   map[string]*Room
	order   []string
	members map[string]*member
	mu      sync.RWMutex

	ops      chan op
	quit     chan struct{}
	stopOnce sync.Once

	remaining int
	lastReset time.Time
}

// New creates a new Hub. s may be nil to disable persistence.
func New(s store.MessageLog, opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		opts:      opts,
		store:     s,
		rooms:     make(map[string]*Room),
		members:   make(map[string]*member),
		ops:       make(chan op, 256),
		quit:      make(chan struct{}),
		remaining: int(opts.LobbyReset / time.Second),
		lastReset: time.Now().UTC(),
	}
	h.rooms[domain.Lobby] = NewRoom(domain.Lobby)
	h.order = []string{domain.Lobby}
	return h
}

// Run starts the hub's main event loop. Should be called as a goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case o := <-h.ops:
			switch o.kind {
			case opRegister:
				h.handleRegister(o.peer)
			case opUnregister:
				h.handleUnregister(o.peer)
			case opFrame:
				h.handleFrame(o.peer, o.frame)
			}
		case <-ticker.C:
			h.tick()
		case <-h.quit:
			return
		}
	}
}

// Stop signals the hub's event loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register queues a newly connected peer.
func (h *Hub) Register(p Peer) {
	h.enqueue(op{kind: opRegister, peer: p})
}

// Unregister queues removal of a disconnected peer.
func (h *Hub) Unregister(p Peer) {
	h.enqueue(op{kind: opUnregister, peer: p})
}

// Receive queues a frame read from p.
func (h *Hub) Receive(p Peer, frame string) {
	h.enqueue(op{kind: opFrame, peer: p, frame: frame})
}

func (h *Hub) enqueue(o op) {
	select {
	case h.ops <- o:
	case <-h.quit:
	}
}

// ListRooms returns info about all rooms, lobby first.
func (h *Hub) ListRooms() []domain.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]domain.Room, 0, len(h.order))
	for _, name := range h.order {
		rooms = append(rooms, domain.Room{
			Name:      name,
			UserCount: h.rooms[name].ClientCount(),
		})
	}
	return rooms
}

// RoomInfo returns details about a specific room, or nil if not found.
func (h *Hub) RoomInfo(name string) *domain.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[name]
	if !ok {
		return nil
	}
	return &domain.Room{
		Name:      r.Name(),
		UserCount: r.ClientCount(),
	}
}

// History returns the persisted messages of a room, oldest first. Lobby
// history only covers messages since the last reset.
func (h *Hub) History(room string) ([]domain.Record, error) {
	if h.store == nil {
		return []domain.Record{}, nil
	}
	recs, err := h.store.History(room, h.opts.MaxHistory)
	if err != nil {
		return nil, err
	}
	if room != domain.Lobby {
		return recs, nil
	}
	h.mu.RLock()
	since := h.lastReset
	h.mu.RUnlock()
	kept := recs[:0]
	for _, rec := range recs {
		if rec.Timestamp.After(since) {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

// Remaining returns the seconds left until the next lobby reset.
func (h *Hub) Remaining() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.remaining
}

func (h *Hub) handleRegister(p Peer) {
	h.mu.Lock()
	h.members[p.ID()] = &member{peer: p}
	h.mu.Unlock()
	log.Debug().Str("peer", p.ID()).Msg("peer registered")
}

func (h *Hub) handleUnregister(p Peer) {
	m, ok := h.members[p.ID()]
	if !ok {
		return
	}
	h.leave(m)
	h.mu.Lock()
	delete(h.members, p.ID())
	h.mu.Unlock()
	log.Debug().Str("peer", p.ID()).Str("user", m.user).Msg("peer unregistered")
}

func (h *Hub) handleFrame(p Peer, frame string) {
	m, ok := h.members[p.ID()]
	if !ok {
		return
	}
	cmd, err := domain.DecodeCommand(frame)
	if err != nil {
		log.Warn().Err(err).Str("peer", p.ID()).Msg("malformed frame")
	}
	switch c := cmd.(type) {
	case domain.Login:
		h.login(m, c.Name)
	case domain.Join:
		h.move(m, c.Room)
	case domain.Switch:
		h.move(m, c.Room)
	case domain.Create:
		h.create(m, c.Room)
	case domain.ChatMessage:
		h.chat(m, c.Text)
	}
}

func (h *Hub) login(m *member, name string) {
	if m.user != "" {
		log.Warn().Str("peer", m.peer.ID()).Str("user", m.user).Msg("duplicate login ignored")
		return
	}
	if err := domain.ValidateName(name); err != nil {
		log.Warn().Err(err).Str("peer", m.peer.ID()).Str("user", name).Msg("login rejected")
		return
	}
	m.user = name
	m.peer.Send(domain.EncodeLoginOK())
	m.peer.Send(domain.EncodeRooms(h.order))
	log.Info().Str("peer", m.peer.ID()).Str("user", name).Msg("login")
}

// move takes m out of its current room and into name, creating the room when
// needed. The peer then gets the frames that bring its transcript in line.
func (h *Hub) move(m *member, name string) {
	if m.user == "" {
		return
	}
	if err := domain.ValidateRoom(name); err != nil {
		log.Warn().Err(err).Str("user", m.user).Str("room", name).Msg("switch rejected")
		return
	}
	if m.room != name {
		h.leave(m)
	}

	r, ok := h.rooms[name]
	if !ok {
		var err error
		if r, err = h.addRoom(name); err != nil {
			log.Warn().Err(err).Str("user", m.user).Str("room", name).Msg("switch rejected")
			return
		}
	}
	h.mu.Lock()
	r.Join(m.peer)
	m.room = name
	h.mu.Unlock()

	if name == domain.Lobby {
		m.peer.Send(domain.EncodeTick(h.remaining))
	} else {
		m.peer.Send(domain.EncodeClear())
	}
	h.replay(m.peer, name)
	log.Debug().Str("user", m.user).Str("room", name).Msg("entered room")
}

func (h *Hub) leave(m *member) {
	if m.room == "" {
		return
	}
	r, ok := h.rooms[m.room]
	old := m.room
	if ok && !r.Has(m.peer) {
		log.Warn().Str("peer", m.peer.ID()).Str("room", old).Msg("peer missing from its room")
	}
	h.mu.Lock()
	m.room = ""
	if ok {
		r.Leave(m.peer)
	}
	h.mu.Unlock()
	if ok && old != domain.Lobby && r.ClientCount() == 0 {
		h.removeRoom(old)
	}
}

func (h *Hub) create(m *member, name string) {
	if m.user == "" {
		return
	}
	if err := domain.ValidateNewRoom(name); err != nil {
		log.Warn().Err(err).Str("user", m.user).Str("room", name).Msg("create rejected")
		return
	}
	if _, ok := h.rooms[name]; ok {
		return
	}
	if _, err := h.addRoom(name); err != nil {
		log.Warn().Err(err).Str("user", m.user).Str("room", name).Msg("create rejected")
	}
}

func (h *Hub) chat(m *member, text string) {
	if m.user == "" || m.room == "" {
		return
	}
	rec := domain.Record{Room: m.room, User: m.user, Text: text, Timestamp: time.Now().UTC()}
	if h.store != nil {
		if err := h.store.Save(rec); err != nil {
			log.Error().Err(err).Str("room", m.room).Msg("store save error")
		}
	}
	h.rooms[m.room].Broadcast(domain.EncodeChat(m.user, text))
}

func (h *Hub) addRoom(name string) (*Room, error) {
	if len(h.rooms) >= h.opts.MaxRooms {
		return nil, ErrMaxRooms
	}
	r := NewRoom(name)
	h.mu.Lock()
	h.rooms[name] = r
	h.order = append(h.order, name)
	h.mu.Unlock()
	log.Info().Str("room", name).Msg("room created")
	h.broadcastRooms()
	return r, nil
}

func (h *Hub) removeRoom(name string) {
	h.mu.Lock()
	delete(h.rooms, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	log.Info().Str("room", name).Msg("room deleted")
	h.broadcastRooms()
}

// broadcastRooms sends the authoritative room list to every logged-in peer.
func (h *Hub) broadcastRooms() {
	frame := domain.EncodeRooms(h.order)
	for _, m := range h.members {
		if m.user != "" {
			m.peer.Send(frame)
		}
	}
}

func (h *Hub) replay(p Peer, room string) {
	recs, err := h.History(room)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("load history")
		return
	}
	for _, rec := range recs {
		p.Send(domain.EncodeChat(rec.User, rec.Text))
	}
}

func (h *Hub) tick() {
	lobby := h.rooms[domain.Lobby]
	h.mu.Lock()
	h.remaining--
	reset := h.remaining <= 0
	if reset {
		h.remaining = int(h.opts.LobbyReset / time.Second)
		h.lastReset = time.Now().UTC()
	}
	remaining := h.remaining
	h.mu.Unlock()

	if reset {
		lobby.Broadcast(domain.EncodeReset())
		log.Info().Msg("lobby reset")
	}
	lobby.Broadcast(domain.EncodeTick(remaining))
}
