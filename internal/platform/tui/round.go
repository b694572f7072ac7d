package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

// hudLines is the number of rows below the arena.
const hudLines = 3

// RoundModel drives one session at its tick rate. Every tick it samples
// the held controls of each local participant and advances the manager.
type RoundModel struct {
	manager    *session.Manager
	session    *session.Session
	keys       KeyMap
	held       []*HeldControls
	collectors []*input.Collector
	canvas     *Canvas
	help       help.Model
	focus      sim.Handle
	fps        int

	last       session.FrameResult
	lastDiag   string
	notice     string
	desyncs    int
	skipped    int64
	err        error
	width      int
	height     int
	ended      bool
	standalone bool
	quitting   bool
	backToMenu bool
}

// NewRoundModel creates a round for a session the manager already started.
// With one local participant keys is normally SoloKeyMap; with two,
// HotSeatKeyMap. Seat i controls the i-th local handle.
func NewRoundModel(m *session.Manager, s *session.Session, keys KeyMap, fps, width, height int) RoundModel {
	locals := s.LocalHandles()
	r := RoundModel{
		manager: m,
		session: s,
		keys:    keys,
		canvas:  NewCanvas(width, max(height-hudLines, 1)),
		help:    help.New(),
		fps:     fps,
		width:   width,
		height:  height,
	}
	if len(locals) > 0 {
		r.focus = locals[0]
	}
	for _, h := range locals {
		held := &HeldControls{}
		r.held = append(r.held, held)
		r.collectors = append(r.collectors, input.NewCollector(h, held))
	}
	r.help.Width = width
	return r
}

// Init starts the tick loop.
func (m RoundModel) Init() tea.Cmd {
	return tickCmd(m.fps)
}

// Update handles messages.
func (m RoundModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.canvas.Resize(msg.Width, max(msg.Height-hudLines, 1))
		m.help.Width = msg.Width
		return m, nil
	case TickMsg:
		return m.handleTick()
	}
	return m, nil
}

func (m RoundModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.manager.Teardown()
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.manager.Teardown()
		m.backToMenu = true
		if m.standalone {
			return m, tea.Quit
		}
		return m, nil
	case key.Matches(msg, m.keys.Stop):
		for _, h := range m.held {
			h.Release()
		}
		return m, nil
	}

	if seat, control, ok := m.keys.Match(msg); ok && seat < len(m.held) {
		m.held[seat].Press(control)
	}
	return m, nil
}

// Sample collects this tick's input for every local participant and ages
// the held controls.
func (m RoundModel) Sample() map[sim.Handle]input.Bits {
	local := make(map[sim.Handle]input.Bits, len(m.collectors))
	for i, c := range m.collectors {
		local[c.Handle()] = c.Sample()
		m.held[i].Tick()
	}
	return local
}

func (m RoundModel) handleTick() (tea.Model, tea.Cmd) {
	if m.ended || m.quitting || m.backToMenu {
		return m, nil
	}

	res, err := m.manager.Advance(m.Sample())
	if err != nil {
		m.err = err
		m.ended = true
		return m, nil
	}

	m.last = res
	if res.Skipped {
		m.skipped++
	}
	for _, d := range res.Diagnostics {
		m.lastDiag = d.String()
		if _, ok := d.(session.DesyncDetected); ok {
			m.desyncs++
		}
	}
	return m, tickCmd(m.fps)
}

// Notice shows a one-line message under the HUD.
func (m *RoundModel) Notice(text string) {
	m.notice = text
}

// View renders the arena and the HUD.
func (m RoundModel) View() string {
	if m.quitting {
		return ""
	}

	DrawWorld(m.canvas, m.session.World(), m.focus)

	var b strings.Builder
	b.WriteString(m.canvas.Render())
	b.WriteString("\n")
	b.WriteString(m.hud())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(theme.Help.Render(m.help.View(m.keys)))
	return b.String()
}

func (m RoundModel) hud() string {
	field := func(label, value string) string {
		return theme.HUDLabel.Render(label+" ") + theme.HUDValue.Render(value)
	}
	sep := theme.HUDSep.Render("  │  ")

	st := m.Stats()
	parts := []string{
		field("tick", fmt.Sprintf("%d", m.last.Tick)),
		field("checksum", fmt.Sprintf("%016x", m.last.Checksum.Digest)),
		field("rollbacks", fmt.Sprintf("%d (%d ticks)", st.Rollbacks, st.Resimulated)),
	}
	if w := m.session.World(); w != nil {
		if p, ok := w.Player(m.focus); ok {
			parts = append(parts, field("bombs", fmt.Sprintf("%d/%d", p.Bag.Armed(), sim.BagCapacity)))
		}
	}
	desyncs := field("desyncs", fmt.Sprintf("%d", m.desyncs))
	if m.desyncs > 0 {
		desyncs = theme.HUDLabel.Render("desyncs ") + theme.HUDWarn.Render(fmt.Sprintf("%d", m.desyncs))
	}
	parts = append(parts, desyncs)
	if m.skipped > 0 {
		parts = append(parts, field("stalled", fmt.Sprintf("%d", m.skipped)))
	}
	return strings.Join(parts, sep)
}

func (m RoundModel) statusLine() string {
	switch {
	case m.err != nil:
		msg := m.err.Error()
		if errors.Is(m.err, session.ErrClosed) || errors.Is(m.err, session.ErrNoActiveSession) {
			msg = "session ended"
		}
		return theme.Error.Render(msg + " (esc to leave)")
	case m.notice != "":
		return theme.HUDWarn.Render(m.notice)
	case m.lastDiag != "":
		return theme.Description.Render(m.lastDiag)
	}
	return ""
}

// Stats returns the session statistics.
func (m RoundModel) Stats() session.Stats {
	return m.session.Stats()
}

// Ended reports whether the session stopped on an error.
func (m RoundModel) Ended() bool {
	return m.ended
}

// Err returns the error that ended the round, if any.
func (m RoundModel) Err() error {
	return m.err
}

// IsQuitting returns true if user requested to quit entirely.
func (m RoundModel) IsQuitting() bool {
	return m.quitting
}

// BackToMenu returns true if user left the round.
func (m RoundModel) BackToMenu() bool {
	return m.backToMenu
}

// RunRound runs a round as its own program until the player leaves.
func RunRound(m *session.Manager, s *session.Session, keys KeyMap, fps, width, height int) error {
	model := NewRoundModel(m, s, keys, fps, width, height)
	model.standalone = true

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	m.Teardown()
	if err != nil {
		return err
	}
	if r, ok := final.(RoundModel); ok && r.err != nil && !errors.Is(r.err, session.ErrClosed) {
		return r.err
	}
	return nil
}
