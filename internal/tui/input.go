// Package tui is a terminal front end for the chat client.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devaloi/lobbychat/internal/client"
)

// Kind names what a line of input asks for.
type Kind int

const (
	Say Kind = iota
	Login
	Join
	Create
	Rooms
	Logout
	Help
	Quit
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
)

// Action is one parsed line of input.
type Action struct {
	Kind Kind
	Arg  string
}

var commands = map[string]struct {
	kind   Kind
	argued bool
}{
	"/login":  {Login, true},
	"/join":   {Join, true},
	"/create": {Create, true},
	"/rooms":  {Rooms, false},
	"/logout": {Logout, false},
	"/help":   {Help, false},
	"/quit":   {Quit, false},
}

// ParseInput turns a line typed by the user into an Action. Lines that do not
// start with "/" are chat. "//" sends a literal leading slash.
func ParseInput(line string) (Action, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Action{Kind: Say, Arg: line}, nil
	}
	if strings.HasPrefix(line, "//") {
		return Action{Kind: Say, Arg: line[1:]}, nil
	}
	name, arg, _ := strings.Cut(line, " ")
	cmd, ok := commands[strings.ToLower(name)]
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	arg = strings.TrimSpace(arg)
	if cmd.argued && arg == "" {
		return Action{}, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return Action{Kind: cmd.kind, Arg: arg}, nil
}

// Chat is the part of the client facade the UI drives.
type Chat interface {
	Login(name string) error
	SendMessage(text string) error
	SwitchRoom(room string) error
	CreateRoom(name string) error
	Logout() error
	View() client.View
	Subscribe() (<-chan client.View, func())
	Done() <-chan struct{}
}

// Dispatch forwards a to c. Actions that only affect the UI are no-ops here.
func Dispatch(c Chat, a Action) error {
	switch a.Kind {
	case Say:
		return c.SendMessage(a.Arg)
	case Login:
		return c.Login(a.Arg)
	case Join:
		return c.SwitchRoom(a.Arg)
	case Create:
		return c.CreateRoom(a.Arg)
	case Logout:
		return c.Logout()
	}
	return nil
}
