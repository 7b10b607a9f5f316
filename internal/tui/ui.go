package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"
	"github.com/rs/zerolog/log"

	"github.com/devaloi/lobbychat/internal/client"
	"github.com/devaloi/lobbychat/internal/domain"
)

const (
	msgView    = "messages"
	roomView   = "rooms"
	statusView = "status"
	inputView  = "input"
	helpView   = "help"
)

const helpText = `Commands:
/login <name>   - Log in
/join <room>    - Switch to a room
/create <room>  - Create a room and switch to it
/rooms          - Pick a room from the list
/logout         - Forget your name and disconnect
/help           - Toggle this help
/quit           - Leave chat
//text          - Send text starting with a slash

Keybindings:
Ctrl-C          - Quit
Tab             - Switch between input and rooms
Enter           - Send / pick room`

// ChatUI renders a client View and forwards what the user types.
type ChatUI struct {
	gui      *gocui.Gui
	chat     Chat
	view     client.View
	notice   string
	showHelp bool
}

// New creates the terminal UI. Call Close when Run returns.
func New(chat Chat) (*ChatUI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}
	ui := &ChatUI{gui: g, chat: chat, view: chat.View()}
	g.Cursor = true
	g.SetManagerFunc(ui.layout)
	return ui, nil
}

// Run blocks until the user quits.
func (ui *ChatUI) Run() error {
	if err := ui.keybindings(); err != nil {
		return err
	}
	go ui.watch()
	if err := ui.gui.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

// Close restores the terminal.
func (ui *ChatUI) Close() {
	ui.gui.Close()
}

func (ui *ChatUI) watch() {
	views, cancel := ui.chat.Subscribe()
	defer cancel()
	for v := range views {
		ui.gui.Update(func(g *gocui.Gui) error {
			ui.view = v
			return ui.render(g)
		})
	}
	ui.gui.Update(func(g *gocui.Gui) error {
		ui.view = ui.chat.View()
		ui.notice = "session ended, /quit to exit"
		return ui.render(g)
	})
}

func (ui *ChatUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 22
	msgWidth := maxX - sidebarWidth - 1
	msgHeight := maxY - 7

	if v, err := g.SetView(msgView, 0, 0, msgWidth, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(roomView, msgWidth+1, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Rooms"
		v.Highlight = true
		v.SelBgColor = gocui.ColorGreen
		v.SelFgColor = gocui.ColorBlack
	}

	if v, err := g.SetView(statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
	}

	if v, err := g.SetView(inputView, 0, msgHeight+4, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Input"
		v.Editable = true
		v.Wrap = true
		if _, err := g.SetCurrentView(inputView); err != nil {
			return err
		}
		if err := ui.render(g); err != nil {
			return err
		}
	}

	if ui.showHelp {
		if v, err := g.SetView(helpView, maxX/6, maxY/6, maxX*5/6, maxY*5/6); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = "Help"
			fmt.Fprintln(v, helpText)
		}
	} else if err := g.DeleteView(helpView); err != nil && err != gocui.ErrUnknownView {
		return err
	}
	return nil
}

func (ui *ChatUI) render(g *gocui.Gui) error {
	v, err := g.View(msgView)
	if err != nil {
		return err
	}
	v.Clear()
	for _, line := range TranscriptLines(ui.view) {
		fmt.Fprintln(v, line)
	}

	if v, err = g.View(roomView); err != nil {
		return err
	}
	v.Clear()
	for _, line := range RoomLines(ui.view) {
		fmt.Fprintln(v, line)
	}

	if v, err = g.View(statusView); err != nil {
		return err
	}
	v.Clear()
	status := Status(ui.view)
	if ui.notice != "" {
		status += " | " + ui.notice
	}
	fmt.Fprint(v, status)
	return nil
}

func (ui *ChatUI) keybindings() error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding(inputView, gocui.KeyEnter, gocui.ModNone, ui.handleInput); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			next := roomView
			if v != nil && v.Name() == roomView {
				next = inputView
			}
			_, err := g.SetCurrentView(next)
			return err
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding(roomView, gocui.KeyArrowUp, gocui.ModNone, moveCursor(-1)); err != nil {
		return err
	}
	if err := ui.gui.SetKeybinding(roomView, gocui.KeyArrowDown, gocui.ModNone, moveCursor(1)); err != nil {
		return err
	}
	return ui.gui.SetKeybinding(roomView, gocui.KeyEnter, gocui.ModNone, ui.pickRoom)
}

func moveCursor(dy int) func(*gocui.Gui, *gocui.View) error {
	return func(_ *gocui.Gui, v *gocui.View) error {
		cx, cy := v.Cursor()
		if cy+dy < 0 || cy+dy >= len(v.BufferLines())-1 {
			return nil
		}
		return v.SetCursor(cx, cy+dy)
	}
}

func (ui *ChatUI) handleInput(g *gocui.Gui, v *gocui.View) error {
	line := strings.TrimSpace(v.Buffer())
	v.Clear()
	v.SetCursor(0, 0)
	if line == "" {
		return nil
	}

	action, err := ParseInput(line)
	if err != nil {
		return ui.report(g, err)
	}
	switch action.Kind {
	case Quit:
		return gocui.ErrQuit
	case Help:
		ui.showHelp = !ui.showHelp
		return nil
	case Rooms:
		_, err := g.SetCurrentView(roomView)
		return err
	}
	return ui.report(g, Dispatch(ui.chat, action))
}

func (ui *ChatUI) pickRoom(g *gocui.Gui, v *gocui.View) error {
	_, cy := v.Cursor()
	_, oy := v.Origin()
	room, ok := RoomAt(ui.view, cy+oy)
	if !ok {
		return nil
	}
	if room == domain.AddRoomSentinel {
		input, err := g.View(inputView)
		if err != nil {
			return err
		}
		input.Clear()
		fmt.Fprint(input, "/create ")
		input.SetCursor(len("/create "), 0)
		_, err = g.SetCurrentView(inputView)
		return err
	}
	if err := ui.report(g, ui.chat.SwitchRoom(room)); err != nil {
		return err
	}
	_, err := g.SetCurrentView(inputView)
	return err
}

// report shows err in the status line. It never fails the main loop.
func (ui *ChatUI) report(g *gocui.Gui, err error) error {
	ui.notice = ""
	if err != nil {
		log.Debug().Err(err).Msg("intent rejected")
		ui.notice = describe(err)
	}
	return ui.render(g)
}

func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrNotReady):
		return "not connected yet, try again"
	case errors.Is(err, client.ErrStopped):
		return "session ended"
	case errors.Is(err, domain.ErrReservedRoom):
		return "that room name is reserved"
	case errors.Is(err, domain.ErrInvalidName):
		return "names cannot contain " + domain.Delimiter
	}
	return err.Error()
}
