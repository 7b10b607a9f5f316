package domain

import (
	"errors"
	"slices"
	"strings"
)

// Lobby is the reserved room every session starts in.
const Lobby = "lobby"

// AddRoomSentinel is the value a room picker uses for "new room". It is never
// a room name.
const AddRoomSentinel = "__add__"

var (
	ErrEmptyName    = errors.New("name is empty")
	ErrReservedRoom = errors.New("room name is reserved")
	ErrInvalidRoom  = errors.New("invalid room name")
	ErrInvalidName  = errors.New("invalid user name")
)

// Room describes a room on the server.
type Room struct {
	Name      string `json:"name"`
	UserCount int    `json:"user_count"`
}

// ValidateName checks a login name. A chat sender ends at the first
// Delimiter, so names cannot contain one.
func ValidateName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case strings.Contains(name, Delimiter):
		return ErrInvalidName
	}
	return nil
}

// ValidateRoom checks a switch or join target.
func ValidateRoom(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case name == AddRoomSentinel, strings.Contains(name, ","):
		return ErrInvalidRoom
	}
	return nil
}

// ValidateNewRoom checks a room name for creation. The lobby always exists
// and can never be created.
func ValidateNewRoom(name string) error {
	if err := ValidateRoom(name); err != nil {
		return err
	}
	if name == Lobby {
		return ErrReservedRoom
	}
	return nil
}

// SplitRooms parses the comma separated room list of a rooms frame.
func SplitRooms(csv string) []string {
	rooms := make([]string, 0)
	for _, r := range strings.Split(csv, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rooms = append(rooms, r)
		}
	}
	return rooms
}

// JoinRooms is the inverse of SplitRooms.
func JoinRooms(rooms []string) string {
	return strings.Join(rooms, ",")
}

// EnsureLobby returns a copy of rooms that contains the lobby, prepending it
// when missing.
func EnsureLobby(rooms []string) []string {
	out := make([]string, 0, len(rooms)+1)
	if !slices.Contains(rooms, Lobby) {
		out = append(out, Lobby)
	}
	return append(out, rooms...)
}
