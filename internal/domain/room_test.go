package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestEnsureLobby(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"a", "b", "c"}, []string{"lobby", "a", "b", "c"}},
		{[]string{"a", "lobby"}, []string{"a", "lobby"}},
		{nil, []string{"lobby"}},
	}
	for _, tt := range tests {
		if got := EnsureLobby(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("EnsureLobby(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEnsureLobbyDoesNotAlias(t *testing.T) {
	t.Parallel()
	in := []string{"lobby", "a"}
	out := EnsureLobby(in)
	out[1] = "changed"
	if in[1] != "a" {
		t.Error("EnsureLobby must return a copy")
	}
}

func TestValidateNewRoom(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want error
	}{
		{"games", nil},
		{"", ErrEmptyName},
		{"lobby", ErrReservedRoom},
		{"__add__", ErrInvalidRoom},
		{"a,b", ErrInvalidRoom},
	}
	for _, tt := range tests {
		if err := ValidateNewRoom(tt.name); !errors.Is(err, tt.want) {
			t.Errorf("ValidateNewRoom(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
	if err := ValidateRoom("lobby"); err != nil {
		t.Errorf("lobby is a valid switch target, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want error
	}{
		{"alice", nil},
		{"__ghost", nil},
		{"", ErrEmptyName},
		{"a:b", ErrInvalidName},
		{":", ErrInvalidName},
	}
	for _, tt := range tests {
		if err := ValidateName(tt.name); !errors.Is(err, tt.want) {
			t.Errorf("ValidateName(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestFormatTimer(t *testing.T) {
	t.Parallel()
	tests := map[int]string{
		125:  "02:05",
		0:    "00:00",
		59:   "00:59",
		600:  "10:00",
		-4:   "00:00",
		6001: "100:01",
	}
	for in, want := range tests {
		if got := FormatTimer(in); got != want {
			t.Errorf("FormatTimer(%d) = %q, want %q", in, got, want)
		}
	}
}
