package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reserved control frames and prefixes.
const (
	PrefixLogin     = "__login__"
	PrefixJoin      = "__join__"
	PrefixSwitch    = "__switch__"
	PrefixCreate    = "__create__"
	PrefixRooms     = "__rooms__"
	PrefixLobbyTick = "__lobby_tick__"

	FrameLoginOK    = "__login_ok__"
	FrameLobbyReset = "__lobby_reset__"
	FrameClear      = "__clear__"
)

const (
	// ReservedMarker opens every control frame.
	ReservedMarker = "__"

	// Delimiter separates sender from text in a chat frame. Only the first
	// occurrence counts.
	Delimiter = ":"

	escape = `\`
)

// ErrMalformedFrame is returned for frames that do not follow the wire format.
var ErrMalformedFrame = errors.New("malformed frame")

// Event is a decoded server-to-client frame.
type Event interface {
	event()
}

// LoginAccepted confirms a login command.
type LoginAccepted struct{}

// RoomList is the authoritative room set broadcast by the server.
type RoomList struct {
	Rooms []string
}

// TimerTick carries the seconds left until the lobby resets.
type TimerTick struct {
	Seconds int
}

// TimerReset signals that the lobby transcript was reset.
type TimerReset struct{}

// RoomCleared asks the client to clear a non-lobby transcript.
type RoomCleared struct{}

// ChatMessage is a chat payload. It travels in both directions.
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func (LoginAccepted) event() {}
func (RoomList) event()      {}
func (TimerTick) event()     {}
func (TimerReset) event()    {}
func (RoomCleared) event()   {}
func (ChatMessage) event()   {}

// Command is a decoded client-to-server frame.
type Command interface {
	command()
}

// Login identifies the connection as Name.
type Login struct{ Name string }

// Join enters a room right after authentication.
type Join struct{ Room string }

// Switch changes the active room.
type Switch struct{ Room string }

// Create requests a new room.
type Create struct{ Room string }

func (Login) command()       {}
func (Join) command()        {}
func (Switch) command()      {}
func (Create) command()      {}
func (ChatMessage) command() {}

// Decode classifies a server frame. A chat frame without a delimiter is
// returned as text with an empty sender alongside an error wrapping
// ErrMalformedFrame; callers may still use the message.
func Decode(frame string) (Event, error) {
	switch {
	case frame == FrameLoginOK:
		return LoginAccepted{}, nil
	case frame == FrameLobbyReset:
		return TimerReset{}, nil
	case frame == FrameClear:
		return RoomCleared{}, nil
	case strings.HasPrefix(frame, PrefixRooms):
		return RoomList{Rooms: SplitRooms(strings.TrimPrefix(frame, PrefixRooms))}, nil
	case strings.HasPrefix(frame, PrefixLobbyTick):
		arg := strings.TrimPrefix(frame, PrefixLobbyTick)
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: lobby tick %q", ErrMalformedFrame, arg)
		}
		return TimerTick{Seconds: n}, nil
	}
	msg, err := decodeChat(frame)
	return msg, err
}

// DecodeCommand classifies a client frame.
func DecodeCommand(frame string) (Command, error) {
	switch {
	case strings.HasPrefix(frame, PrefixLogin):
		return Login{Name: strings.TrimPrefix(frame, PrefixLogin)}, nil
	case strings.HasPrefix(frame, PrefixJoin):
		return Join{Room: strings.TrimPrefix(frame, PrefixJoin)}, nil
	case strings.HasPrefix(frame, PrefixSwitch):
		return Switch{Room: strings.TrimPrefix(frame, PrefixSwitch)}, nil
	case strings.HasPrefix(frame, PrefixCreate):
		return Create{Room: strings.TrimPrefix(frame, PrefixCreate)}, nil
	}
	msg, err := decodeChat(frame)
	return msg, err
}

func decodeChat(frame string) (ChatMessage, error) {
	payload := strings.TrimPrefix(frame, escape)
	sender, text, ok := strings.Cut(payload, Delimiter)
	if !ok {
		return ChatMessage{Text: payload}, fmt.Errorf("%w: missing %q in chat frame", ErrMalformedFrame, Delimiter)
	}
	return ChatMessage{Sender: sender, Text: text}, nil
}

// EncodeChat serializes a chat payload. Payloads that would start with the
// reserved marker or the escape byte get one escape byte prepended, so they
// never decode as control frames.
func EncodeChat(sender, text string) string {
	payload := sender + Delimiter + text
	if strings.HasPrefix(payload, ReservedMarker) || strings.HasPrefix(payload, escape) {
		return escape + payload
	}
	return payload
}

// EncodeLogin builds a login command.
func EncodeLogin(name string) string { return PrefixLogin + name }

// EncodeJoin builds a join command.
func EncodeJoin(room string) string { return PrefixJoin + room }

// EncodeSwitch builds a switch command.
func EncodeSwitch(room string) string { return PrefixSwitch + room }

// EncodeCreate builds a create command.
func EncodeCreate(room string) string { return PrefixCreate + room }

// EncodeLoginOK builds the login acknowledgement.
func EncodeLoginOK() string { return FrameLoginOK }

// EncodeRooms builds the authoritative room list broadcast.
func EncodeRooms(rooms []string) string { return PrefixRooms + JoinRooms(rooms) }

// EncodeTick builds a lobby countdown update.
func EncodeTick(seconds int) string { return PrefixLobbyTick + strconv.Itoa(seconds) }

// EncodeReset builds the lobby reset notice.
func EncodeReset() string { return FrameLobbyReset }

// EncodeClear builds the non-lobby clear notice.
func EncodeClear() string { return FrameClear }
