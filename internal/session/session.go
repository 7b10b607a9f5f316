// Package session holds the client-side state machine of a chat connection.
//
// A Session is driven by decoded server events (Apply) and by user intents
// (Login, Send, Switch, Create, Logout). It is not safe for concurrent use;
// callers serialize all access through a single event loop.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devaloi/lobbychat/internal/domain"
)

// IdentityKey is the preference key holding the last logged-in username.
const IdentityKey = "chatUser"

var (
	ErrClosed               = errors.New("session closed")
	ErrNotConnected         = errors.New("session not connected")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrEmptyMessage         = errors.New("message is empty")
)

// State is the connection-level state of a Session.
type State int

const (
	Disconnected State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Sender delivers outbound frames.
type Sender interface {
	Send(frame string) error
}

// Prefs persists the identity across restarts.
type Prefs interface {
	Set(key, value string) error
	Delete(key string) error
}

// Timer is the lobby countdown. Known is false while the value is hidden.
type Timer struct {
	Seconds int
	Known   bool
}

// Session is one connection's view of the chat.
type Session struct {
	id     uuid.UUID
	out    Sender
	prefs  Prefs
	logger zerolog.Logger

	state   State
	closed  bool
	pending string
	user    string
	room    string
	rooms   []string
	history []domain.ChatMessage
	timer   Timer
	rev     uint64
}

// New creates a disconnected session. prefs may be nil, in which case the
// identity is not persisted.
func New(out Sender, prefs Prefs) *Session {
	id := uuid.New()
	return &Session{
		id:     id,
		out:    out,
		prefs:  prefs,
		logger: log.With().Str("session", id.String()).Logger(),
		rooms:  []string{domain.Lobby},
	}
}

// Open marks the transport as opened.
func (s *Session) Open() error {
	if s.closed {
		return ErrClosed
	}
	if s.state != Disconnected {
		return nil
	}
	s.state = Unauthenticated
	s.changed()
	s.logger.Debug().Msg("session opened")
	return nil
}

// Close tears the session down after the transport closed. It is terminal.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.teardown()
	s.logger.Info().Msg("session closed")
}

// Logout erases the persisted identity and ends the session.
func (s *Session) Logout() error {
	if s.closed {
		return ErrClosed
	}
	var err error
	if s.prefs != nil {
		if derr := s.prefs.Delete(IdentityKey); derr != nil {
			err = fmt.Errorf("forget identity: %w", derr)
		}
	}
	s.logger.Info().Str("user", s.user).Msg("logged out")
	s.teardown()
	return err
}

func (s *Session) teardown() {
	s.closed = true
	s.state = Disconnected
	s.pending = ""
	s.room = ""
	s.rooms = []string{domain.Lobby}
	s.history = nil
	s.timer = Timer{}
	s.changed()
}

// Login asks the server to authenticate as name. The session does not change
// state until LoginAccepted is applied.
func (s *Session) Login(name string) error {
	if err := s.connected(); err != nil {
		return err
	}
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if s.state == Authenticated {
		return ErrAlreadyAuthenticated
	}
	if err := s.out.Send(domain.EncodeLogin(name)); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	s.pending = name
	return nil
}

// Send emits a chat message as the current user.
func (s *Session) Send(text string) error {
	if err := s.authenticated(); err != nil {
		return err
	}
	if text == "" {
		return ErrEmptyMessage
	}
	if err := s.out.Send(domain.EncodeChat(s.user, text)); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	return nil
}

// Switch moves to room without waiting for the server. The transcript of
// the room being left is discarded.
func (s *Session) Switch(room string) error {
	if err := s.authenticated(); err != nil {
		return err
	}
	if err := domain.ValidateRoom(room); err != nil {
		return err
	}
	s.enter(room)
	if err := s.out.Send(domain.EncodeSwitch(room)); err != nil {
		return fmt.Errorf("send switch: %w", err)
	}
	return nil
}

// Create requests a new room and switches to it. The room is added to the
// cached list until the next authoritative room list replaces it.
func (s *Session) Create(name string) error {
	if err := s.authenticated(); err != nil {
		return err
	}
	if err := domain.ValidateNewRoom(name); err != nil {
		return err
	}
	if err := s.out.Send(domain.EncodeCreate(name)); err != nil {
		return fmt.Errorf("send create: %w", err)
	}
	if !slices.Contains(s.rooms, name) {
		s.rooms = append(s.rooms, name)
	}
	return s.Switch(name)
}

// Apply transitions the session on a decoded server event.
func (s *Session) Apply(ev domain.Event) error {
	if err := s.connected(); err != nil {
		return err
	}
	switch ev := ev.(type) {
	case domain.LoginAccepted:
		return s.acceptLogin()
	case domain.RoomList:
		s.rooms = domain.EnsureLobby(ev.Rooms)
		s.changed()
	case domain.TimerTick:
		s.timer = Timer{Seconds: ev.Seconds, Known: true}
		if s.TimerVisible() {
			s.changed()
		}
	case domain.TimerReset:
		s.timer = Timer{}
		if s.state == Authenticated && s.room == domain.Lobby {
			s.history = nil
			s.changed()
		}
	case domain.RoomCleared:
		if s.state == Authenticated && s.room != domain.Lobby {
			s.history = nil
			s.changed()
		}
	case domain.ChatMessage:
		if s.state != Authenticated {
			s.logger.Debug().Str("sender", ev.Sender).Msg("chat before login dropped")
			return nil
		}
		s.history = append(s.history, ev)
		s.changed()
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
	return nil
}

func (s *Session) acceptLogin() error {
	if s.pending != "" {
		s.user = s.pending
		s.pending = ""
	}
	s.state = Authenticated
	if s.room != domain.Lobby {
		s.room = domain.Lobby
		s.history = nil
	}
	s.changed()
	s.logger.Info().Str("user", s.user).Msg("login accepted")

	var errs []error
	if err := s.out.Send(domain.EncodeJoin(domain.Lobby)); err != nil {
		errs = append(errs, fmt.Errorf("send join: %w", err))
	}
	if s.prefs != nil && s.user != "" {
		if err := s.prefs.Set(IdentityKey, s.user); err != nil {
			errs = append(errs, fmt.Errorf("persist identity: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) enter(room string) {
	s.history = nil
	s.room = room
	s.timer = Timer{}
	s.changed()
	s.logger.Debug().Str("room", room).Msg("room entered")
}

func (s *Session) connected() error {
	if s.closed {
		return ErrClosed
	}
	if s.state == Disconnected {
		return ErrNotConnected
	}
	return nil
}

func (s *Session) authenticated() error {
	if err := s.connected(); err != nil {
		return err
	}
	if s.state != Authenticated {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *Session) changed() { s.rev++ }

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id.String() }

// State returns the connection state.
func (s *Session) State() State { return s.state }

// Closed reports whether the session reached its terminal state.
func (s *Session) Closed() bool { return s.closed }

// User returns the authenticated username, or "" before login.
func (s *Session) User() string { return s.user }

// Room returns the active room, or "" when not authenticated.
func (s *Session) Room() string {
	if s.state != Authenticated {
		return ""
	}
	return s.room
}

// Rooms returns a copy of the cached room list. It always contains the lobby.
func (s *Session) Rooms() []string { return slices.Clone(s.rooms) }

// Transcript returns a copy of the active room's messages in arrival order.
func (s *Session) Transcript() []domain.ChatMessage { return slices.Clone(s.history) }

// Timer returns the recorded lobby countdown, visible or not.
func (s *Session) Timer() Timer { return s.timer }

// TimerVisible reports whether the countdown should be displayed.
func (s *Session) TimerVisible() bool {
	return s.timer.Known && s.state == Authenticated && s.room == domain.Lobby
}

// Revision increases on every change that affects what a UI displays.
func (s *Session) Revision() uint64 { return s.rev }
