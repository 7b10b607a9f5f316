package store

import (
	"errors"
	"testing"
)

func TestPebblePrefs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	p, err := NewPebble(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := p.Set("chatUser", "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p, err = NewPebble(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p.Close()

	v, ok, err := p.Get("chatUser")
	if err != nil || !ok || v != "alice" {
		t.Fatalf("get after reopen: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := p.Delete("chatUser"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := p.Get("chatUser"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestPebbleClosed(t *testing.T) {
	t.Parallel()
	p, err := NewPebble(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p.Close()
	if err := p.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, _, err := p.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestOpenPrefsUnknownBackend(t *testing.T) {
	t.Parallel()
	if _, err := OpenPrefs("redis", t.TempDir()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpenPrefsBackends(t *testing.T) {
	t.Parallel()
	for _, b := range []string{BackendSQLite, BackendPebble} {
		path := t.TempDir() + "/" + b
		p, err := OpenPrefs(b, path)
		if err != nil {
			t.Fatalf("%s: open: %v", b, err)
		}
		if err := p.Set("k", "v"); err != nil {
			t.Errorf("%s: set: %v", b, err)
		}
		p.Close()
	}
}
