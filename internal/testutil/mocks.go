package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/devaloi/lobbychat/internal/domain"
	"github.com/devaloi/lobbychat/internal/transport"
)

// MockPeer implements hub.Peer for testing.
type MockPeer struct {
	id     string
	frames []string
	mu     sync.Mutex
}

// NewMockPeer creates a new MockPeer.
func NewMockPeer() *MockPeer {
	return &MockPeer{id: uuid.NewString()}
}

// ID returns the peer's identifier.
func (m *MockPeer) ID() string { return m.id }

// Send records a frame sent to the peer.
func (m *MockPeer) Send(frame string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
}

// Frames returns a copy of all frames received by the peer.
func (m *MockPeer) Frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.frames))
	copy(cp, m.frames)
	return cp
}

// Reset forgets recorded frames.
func (m *MockPeer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// MockMessageLog implements store.MessageLog for testing.
type MockMessageLog struct {
	mu   sync.Mutex
	recs map[string][]domain.Record
}

// NewMockMessageLog creates a new MockMessageLog.
func NewMockMessageLog() *MockMessageLog {
	return &MockMessageLog{recs: make(map[string][]domain.Record)}
}

// Save persists a record in memory.
func (s *MockMessageLog) Save(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Room] = append(s.recs[rec.Room], rec)
	return nil
}

// History returns stored records for a room.
func (s *MockMessageLog) History(room string, limit int) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.recs[room]
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return append([]domain.Record(nil), recs...), nil
}

// Close is a no-op for the mock log.
func (s *MockMessageLog) Close() error { return nil }

// MemoryPrefs implements store.Prefs in memory.
type MemoryPrefs struct {
	mu   sync.Mutex
	vals map[string]string
	// Err, when set, is returned by Set and Delete.
	Err error
}

// NewMemoryPrefs creates a MemoryPrefs seeded with kv pairs.
func NewMemoryPrefs(kv ...string) *MemoryPrefs {
	p := &MemoryPrefs{vals: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		p.vals[kv[i]] = kv[i+1]
	}
	return p
}

// Get returns a stored value.
func (p *MemoryPrefs) Get(key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.vals[key]
	return v, ok, nil
}

// Set stores a value.
func (p *MemoryPrefs) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.vals[key] = value
	return nil
}

// Delete removes a value.
func (p *MemoryPrefs) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	delete(p.vals, key)
	return nil
}

// Close is a no-op.
func (p *MemoryPrefs) Close() error { return nil }

// RecordingSender captures outbound frames.
type RecordingSender struct {
	mu     sync.Mutex
	frames []string
	// Err, when set, is returned by Send and the frame is not recorded.
	Err error
}

// Send records frame.
func (r *RecordingSender) Send(frame string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.frames = append(r.frames, frame)
	return nil
}

// Frames returns a copy of the recorded frames.
func (r *RecordingSender) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// Reset forgets recorded frames.
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// FakeTransport implements client.Transport without a network. Tests drive
// it with Push and Drop.
type FakeTransport struct {
	RecordingSender

	events chan transport.Event
	mu     sync.Mutex
	ready  bool
	closed bool
	// OpenErr, when set, makes Open fail.
	OpenErr error
	// DeferReady holds back the Ready event until MarkReady is called.
	DeferReady bool
	// OpenGate, when set, makes Open block until it is closed or ctx ends,
	// like a dial in progress.
	OpenGate chan struct{}
}

// NewFakeTransport creates a FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{events: make(chan transport.Event, 64)}
}

// Open reports Ready, or fails with OpenErr. It waits for OpenGate first.
func (f *FakeTransport) Open(ctx context.Context) error {
	if f.OpenGate != nil {
		select {
		case <-f.OpenGate:
		case <-ctx.Done():
			f.Drop(ctx.Err())
			return ctx.Err()
		}
	}
	if f.OpenErr != nil {
		f.Drop(f.OpenErr)
		return f.OpenErr
	}
	if f.DeferReady {
		return nil
	}
	f.MarkReady()
	return nil
}

// MarkReady reports the channel as ready.
func (f *FakeTransport) MarkReady() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.ready = true
	f.events <- transport.Event{Kind: transport.Ready}
}

// Send records frame while ready.
func (f *FakeTransport) Send(frame string) error {
	f.mu.Lock()
	ready := f.ready
	f.mu.Unlock()
	if !ready {
		return transport.ErrNotReady
	}
	return f.RecordingSender.Send(frame)
}

// Events returns the event stream.
func (f *FakeTransport) Events() <-chan transport.Event { return f.events }

// Push delivers a server frame. Frames pushed after close are discarded.
func (f *FakeTransport) Push(frame string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- transport.Event{Kind: transport.Frame, Text: frame}
}

// Pushf delivers a formatted server frame.
func (f *FakeTransport) Pushf(format string, args ...any) {
	f.Push(fmt.Sprintf(format, args...))
}

// Drop simulates the server closing the channel.
func (f *FakeTransport) Drop(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.ready = false
	f.closed = true
	f.events <- transport.Event{Kind: transport.Closed, Err: err}
	close(f.events)
}

// Close closes the channel locally.
func (f *FakeTransport) Close() error {
	f.Drop(nil)
	return nil
}

// Closed reports whether the transport was closed.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
