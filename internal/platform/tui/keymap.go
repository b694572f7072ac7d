package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/bomberboy/internal/input"
)

// Terminals report key presses and auto-repeat but never releases, so a
// press holds its control for a number of ticks. Movement outlasts the
// usual auto-repeat delay so a held key moves smoothly.
const (
	moveHoldTicks = 20
	fireHoldTicks = 2
	numControls   = int(input.ControlFire) + 1
)

// PlayerKeys are the bindings of one seat at the keyboard.
type PlayerKeys struct {
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding
	Fire  key.Binding
}

func (p PlayerKeys) bindings() [numControls]key.Binding {
	return [numControls]key.Binding{
		input.ControlUp:    p.Up,
		input.ControlDown:  p.Down,
		input.ControlLeft:  p.Left,
		input.ControlRight: p.Right,
		input.ControlFire:  p.Fire,
	}
}

// KeyMap binds keys to the controls of up to two seats.
type KeyMap struct {
	Seats []PlayerKeys
	Stop  key.Binding
	Back  key.Binding
	Quit  key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	out := make([]key.Binding, 0, len(k.Seats)+2)
	for _, s := range k.Seats {
		out = append(out, s.Fire)
	}
	return append(out, k.Back, k.Quit)
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	groups := make([][]key.Binding, 0, len(k.Seats)+1)
	for _, s := range k.Seats {
		groups = append(groups, []key.Binding{s.Up, s.Down, s.Left, s.Right, s.Fire})
	}
	return append(groups, []key.Binding{k.Stop, k.Back, k.Quit})
}

func wasdKeys() PlayerKeys {
	return PlayerKeys{
		Up:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "up")),
		Down:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "down")),
		Left:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "left")),
		Right: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "right")),
		Fire:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "P1 bomb")),
	}
}

func arrowKeys() PlayerKeys {
	return PlayerKeys{
		Up:    key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		Down:  key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		Left:  key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "left")),
		Right: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "right")),
		Fire:  key.NewBinding(key.WithKeys("enter", "/"), key.WithHelp("enter", "P2 bomb")),
	}
}

func commonKeys() KeyMap {
	return KeyMap{
		Stop: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Back: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "leave round")),
		Quit: key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

// HotSeatKeyMap gives two players one keyboard: WASD+space and arrows+enter.
func HotSeatKeyMap() KeyMap {
	k := commonKeys()
	k.Seats = []PlayerKeys{wasdKeys(), arrowKeys()}
	return k
}

// SoloKeyMap lets a single player use either scheme.
func SoloKeyMap() KeyMap {
	w, a := wasdKeys(), arrowKeys()
	join := func(x, y key.Binding, help string) key.Binding {
		return key.NewBinding(
			key.WithKeys(append(x.Keys(), y.Keys()...)...),
			key.WithHelp(x.Help().Key+"/"+y.Help().Key, help),
		)
	}
	k := commonKeys()
	k.Seats = []PlayerKeys{{
		Up:    join(w.Up, a.Up, "up"),
		Down:  join(w.Down, a.Down, "down"),
		Left:  join(w.Left, a.Left, "left"),
		Right: join(w.Right, a.Right, "right"),
		Fire:  join(w.Fire, a.Fire, "bomb"),
	}}
	return k
}

// Match finds the seat and control a key press belongs to.
func (k KeyMap) Match(msg tea.KeyMsg) (seat int, control input.Control, ok bool) {
	for i, s := range k.Seats {
		for c, b := range s.bindings() {
			if key.Matches(msg, b) {
				return i, input.Control(c), true
			}
		}
	}
	return 0, 0, false
}

// HeldControls tracks which controls are still held from recent presses.
// It implements input.ControlState.
type HeldControls struct {
	ticks [numControls]int
}

// Press holds c for the default duration. Pressing a direction releases
// the opposite one.
func (h *HeldControls) Press(c input.Control) {
	if c < 0 || int(c) >= numControls {
		return
	}
	switch c {
	case input.ControlFire:
		h.ticks[c] = fireHoldTicks
		return
	case input.ControlUp:
		h.ticks[input.ControlDown] = 0
	case input.ControlDown:
		h.ticks[input.ControlUp] = 0
	case input.ControlLeft:
		h.ticks[input.ControlRight] = 0
	case input.ControlRight:
		h.ticks[input.ControlLeft] = 0
	}
	h.ticks[c] = moveHoldTicks
}

// Pressed implements input.ControlState.
func (h *HeldControls) Pressed(c input.Control) bool {
	if c < 0 || int(c) >= numControls {
		return false
	}
	return h.ticks[c] > 0
}

// Release lets go of every movement control. Fire is left alone so a
// bomb press is not lost.
func (h *HeldControls) Release() {
	for c := range h.ticks {
		if input.Control(c) != input.ControlFire {
			h.ticks[c] = 0
		}
	}
}

// Tick ages every held control by one tick.
func (h *HeldControls) Tick() {
	for c := range h.ticks {
		if h.ticks[c] > 0 {
			h.ticks[c]--
		}
	}
}

// MenuAction represents a menu-specific action derived from input.
type MenuAction int

const (
	MenuActionNone MenuAction = iota
	MenuActionUp
	MenuActionDown
	MenuActionSelect
	MenuActionBack
	MenuActionQuit
)

// MapKeyToMenuAction translates a key to a menu action.
func MapKeyToMenuAction(msg tea.KeyMsg) MenuAction {
	switch msg.String() {
	case "ctrl+c", "q":
		return MenuActionQuit
	case "w", "up", "k":
		return MenuActionUp
	case "s", "down", "j":
		return MenuActionDown
	case "enter", " ":
		return MenuActionSelect
	case "b", "esc":
		return MenuActionBack
	}
	return MenuActionNone
}
