package tui

import (
	"fmt"
	"strings"

	"github.com/devaloi/lobbychat/internal/client"
	"github.com/devaloi/lobbychat/internal/domain"
)

const addRoomLabel = "+ new room"

// RoomLines lists the rooms with the active one marked, followed by the
// entry that starts a new room.
func RoomLines(v client.View) []string {
	lines := make([]string, 0, len(v.Rooms)+1)
	for _, name := range v.Rooms {
		prefix := "  "
		if v.Authenticated && name == v.Room {
			prefix = "* "
		}
		lines = append(lines, prefix+name)
	}
	if v.Authenticated {
		lines = append(lines, addRoomLabel)
	}
	return lines
}

// RoomAt maps a line of RoomLines back to a room name, or to
// domain.AddRoomSentinel for the new-room entry.
func RoomAt(v client.View, line int) (string, bool) {
	switch {
	case line < 0:
		return "", false
	case line < len(v.Rooms):
		return v.Rooms[line], true
	case line == len(v.Rooms) && v.Authenticated:
		return domain.AddRoomSentinel, true
	}
	return "", false
}

// TranscriptLines formats the chat history of the active room.
func TranscriptLines(v client.View) []string {
	lines := make([]string, 0, len(v.Transcript))
	for _, m := range v.Transcript {
		if m.Sender == "" {
			lines = append(lines, m.Text)
			continue
		}
		lines = append(lines, m.Sender+": "+m.Text)
	}
	return lines
}

// Status is the one-line summary shown under the transcript.
func Status(v client.View) string {
	var parts []string
	switch {
	case v.Ready:
		parts = append(parts, "connected")
	case v.Closed:
		parts = append(parts, "disconnected")
	default:
		parts = append(parts, "connecting")
	}
	if v.Authenticated {
		parts = append(parts, "user: "+v.User, "room: "+v.Room)
	} else if v.Ready {
		parts = append(parts, "/login <name> to start")
	}
	if v.Timer != "" {
		parts = append(parts, fmt.Sprintf("lobby resets in %s", v.Timer))
	}
	return strings.Join(parts, " | ")
}
