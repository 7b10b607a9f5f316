// Package client is the API a chat UI binds to. It owns one transport and one
// session and serializes every transport event and user intent through a
// single event loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/devaloi/lobbychat/internal/domain"
	"github.com/devaloi/lobbychat/internal/session"
	"github.com/devaloi/lobbychat/internal/transport"
)

var (
	// ErrNotReady is returned for intents issued while the transport is not
	// ready. Nothing is sent; callers reissue the intent later.
	ErrNotReady = errors.New("not connected")
	// ErrStopped is returned once the event loop has exited.
	ErrStopped = errors.New("client stopped")
	// ErrEmptyInput is returned for intents whose trimmed input is empty.
	ErrEmptyInput = errors.New("input is empty")
	// ErrRunning is returned when Run is called a second time.
	ErrRunning = errors.New("client already started")
)

// Transport is the connection the client drives.
type Transport interface {
	Open(ctx context.Context) error
	Send(frame string) error
	Events() <-chan transport.Event
	Close() error
}

// Prefs stores the last logged-in username.
type Prefs interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// View is a snapshot of everything a UI renders.
type View struct {
	SessionID     string
	State         session.State
	User          string
	Room          string
	Rooms         []string
	Transcript    []domain.ChatMessage
	Timer         string // "" when hidden
	Authenticated bool
	Ready         bool
	// Closed is set once the session has ended for good.
	Closed bool
}

type intent struct {
	fn    func() error
	reply chan error
}

// Client is the chat facade.
type Client struct {
	tr    Transport
	prefs Prefs
	sess  *session.Session

	intents chan intent
	done    chan struct{}
	ready   bool

	mu      sync.Mutex
	view    View
	rev     uint64
	subs    map[int]chan View
	nextSub int
	started bool
	stopped bool
}

// New creates a client over tr. prefs may be nil to disable auto-login and
// identity persistence.
func New(tr Transport, prefs Prefs) *Client {
	c := &Client{
		tr:      tr,
		prefs:   prefs,
		intents: make(chan intent),
		done:    make(chan struct{}),
		subs:    make(map[int]chan View),
	}
	c.sess = session.New(tr, prefs)
	c.view = c.snapshot()
	c.rev = c.sess.Revision()
	return c
}

// Run opens the transport and processes events until the channel closes,
// the user logs out, or ctx is done. The transport dials in the background;
// intents issued meanwhile get ErrNotReady. A client runs at most once.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrRunning
	}
	c.started = true
	c.mu.Unlock()

	logger := log.With().Str("session", c.sess.ID()).Logger()
	defer c.stop()
	defer c.tr.Close()

	opened := make(chan error, 1)
	go func() { opened <- c.tr.Open(ctx) }()
	// openResult waits for Open once the event stream has ended, so a failed
	// dial is reported as Run's error.
	openResult := func() error {
		if opened == nil {
			return nil
		}
		return <-opened
	}

	events := c.tr.Events()
	for {
		select {
		case <-ctx.Done():
			c.sess.Close()
			c.ready = false
			c.publish()
			return ctx.Err()
		case err := <-opened:
			opened = nil
			if err != nil {
				logger.Error().Err(err).Msg("open transport")
				c.closed(nil)
				return err
			}
		case ev, ok := <-events:
			if !ok {
				c.closed(nil)
				return openResult()
			}
			c.handle(ev)
			if ev.Kind == transport.Closed {
				return openResult()
			}
		case in := <-c.intents:
			err := in.fn()
			c.publish()
			in.reply <- err
		}
		c.publish()
		if c.sess.Closed() {
			return nil
		}
	}
}

func (c *Client) handle(ev transport.Event) {
	switch ev.Kind {
	case transport.Ready:
		c.ready = true
		if err := c.sess.Open(); err != nil {
			log.Warn().Err(err).Msg("open session")
			return
		}
		c.autoLogin()
	case transport.Frame:
		msg, err := domain.Decode(ev.Text)
		if err != nil {
			log.Warn().Err(err).Str("session", c.sess.ID()).Msg("malformed frame")
		}
		if msg == nil {
			return
		}
		if err := c.sess.Apply(msg); err != nil {
			log.Warn().Err(err).Str("session", c.sess.ID()).Msgf("apply %T", msg)
		}
	case transport.Closed:
		c.closed(ev.Err)
	}
}

func (c *Client) closed(err error) {
	if err != nil {
		log.Warn().Err(err).Str("session", c.sess.ID()).Msg("connection lost")
	}
	c.ready = false
	c.sess.Close()
	c.publish()
}

func (c *Client) autoLogin() {
	if c.prefs == nil {
		return
	}
	user, ok, err := c.prefs.Get(session.IdentityKey)
	if err != nil {
		log.Warn().Err(err).Msg("read saved identity")
		return
	}
	if !ok || strings.TrimSpace(user) == "" {
		return
	}
	log.Info().Str("user", user).Msg("auto login")
	if err := c.sess.Login(strings.TrimSpace(user)); err != nil {
		log.Warn().Err(err).Msg("auto login")
	}
}

// do runs fn on the event loop and waits for its result.
func (c *Client) do(fn func() error) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return ErrNotReady
	}
	in := intent{fn: fn, reply: make(chan error, 1)}
	select {
	case c.intents <- in:
	case <-c.done:
		return ErrStopped
	}
	return <-in.reply
}

func (c *Client) whenReady(fn func() error) error {
	return c.do(func() error {
		if !c.ready {
			return ErrNotReady
		}
		return fn()
	})
}

// Login asks the server to authenticate as name. The intent is dropped when
// the transport is not ready yet.
func (c *Client) Login(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyInput
	}
	return c.whenReady(func() error { return c.sess.Login(name) })
}

// SendMessage sends text to the active room.
func (c *Client) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	return c.whenReady(func() error { return c.sess.Send(text) })
}

// SwitchRoom moves to room immediately and tells the server.
func (c *Client) SwitchRoom(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrEmptyInput
	}
	return c.whenReady(func() error { return c.sess.Switch(room) })
}

// CreateRoom creates name and switches to it.
func (c *Client) CreateRoom(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyInput
	}
	return c.whenReady(func() error { return c.sess.Create(name) })
}

// Logout forgets the saved identity and ends the session. The client cannot
// be used afterwards. The identity is forgotten even when the event loop is
// not running.
func (c *Client) Logout() error {
	err := c.do(func() error {
		err := c.sess.Logout()
		c.ready = false
		c.tr.Close()
		return err
	})
	if !errors.Is(err, ErrStopped) && !errors.Is(err, ErrNotReady) {
		return err
	}
	if c.prefs == nil {
		return nil
	}
	if err := c.prefs.Delete(session.IdentityKey); err != nil {
		return fmt.Errorf("forget identity: %w", err)
	}
	return nil
}

// View returns the latest snapshot.
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Subscribe returns a channel that receives the latest View after every
// change, starting with the current one. Slow readers only see the most
// recent snapshot. The channel is closed when the client stops or cancel is
// called.
func (c *Client) Subscribe() (<-chan View, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan View, 1)
	ch <- c.view
	if c.stopped {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Done is closed when the event loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) snapshot() View {
	v := View{
		SessionID:     c.sess.ID(),
		State:         c.sess.State(),
		User:          c.sess.User(),
		Room:          c.sess.Room(),
		Rooms:         c.sess.Rooms(),
		Transcript:    c.sess.Transcript(),
		Authenticated: c.sess.State() == session.Authenticated,
		Ready:         c.ready,
		Closed:        c.sess.Closed(),
	}
	if c.sess.TimerVisible() {
		v.Timer = domain.FormatTimer(c.sess.Timer().Seconds)
	}
	return v
}

// publish fans the current view out when something visible changed.
func (c *Client) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Revision() == c.rev && c.view.Ready == c.ready {
		return
	}
	c.rev = c.sess.Revision()
	c.view = c.snapshot()
	for _, ch := range c.subs {
		select {
		case ch <- c.view:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c.view
		}
	}
}

func (c *Client) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	close(c.done)
}
