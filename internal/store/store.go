package store

import (
	"errors"
	"fmt"

	"github.com/devaloi/lobbychat/internal/domain"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store closed")

// Prefs is a durable key-value store for client preferences.
type Prefs interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Close releases any resources held by the store.
	Close() error
}

// MessageLog persists chat messages on the server.
type MessageLog interface {
	// Save persists a message.
	Save(rec domain.Record) error
	// History returns the last `limit` messages for a room, oldest first.
	History(room string, limit int) ([]domain.Record, error)
	// Close releases any resources held by the store.
	Close() error
}

// Backend names accepted by OpenPrefs.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// OpenPrefs opens a Prefs store with the named backend at path.
func OpenPrefs(backend, path string) (Prefs, error) {
	switch backend {
	case "", BackendSQLite:
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPebble:
		p, err := NewPebble(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown prefs backend %q", backend)
}
