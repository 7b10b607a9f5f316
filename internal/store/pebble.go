package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

const prefsKeyPrefix = "prefs/"

// PebblePrefs implements Prefs on a PebbleDB key-value store.
type PebblePrefs struct {
	mu sync.Mutex
	db *pebble.DB
}

// NewPebble opens or creates a Pebble database in dir.
func NewPebble(dir string) (*PebblePrefs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebblePrefs{db: db}, nil
}

// Get returns a stored preference.
func (p *PebblePrefs) Get(key string) (string, bool, error) {
	db, err := p.handle()
	if err != nil {
		return "", false, err
	}
	val, closer, err := db.Get([]byte(prefsKeyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()
	return string(val), true, nil
}

// Set stores a preference and syncs it to disk.
func (p *PebblePrefs) Set(key, value string) error {
	db, err := p.handle()
	if err != nil {
		return err
	}
	return db.Set([]byte(prefsKeyPrefix+key), []byte(value), pebble.Sync)
}

// Delete removes a preference.
func (p *PebblePrefs) Delete(key string) error {
	db, err := p.handle()
	if err != nil {
		return err
	}
	return db.Delete([]byte(prefsKeyPrefix+key), pebble.Sync)
}

// Close closes the database. It is safe to call more than once.
func (p *PebblePrefs) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *PebblePrefs) handle() (*pebble.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil, ErrClosed
	}
	return p.db, nil
}
