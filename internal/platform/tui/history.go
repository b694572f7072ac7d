package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/bomberboy/internal/checksum"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/storage"
)

// History layout constants
const (
	maxHistoryRows = 100
	historyTimeout = 5 * time.Second
)

// HistoryStore is the part of the store the history screen reads.
type HistoryStore interface {
	RecentSessions(ctx context.Context, limit int) ([]storage.SessionSummary, error)
	LoadRecord(ctx context.Context, id string) (*session.Record, error)
	RecentOnlineMatches(limit int) ([]storage.MatchResult, error)
}

type historyTab int

const (
	tabSessions historyTab = iota
	tabMatches
)

// HistoryKeyMap defines the key bindings for the history screen.
type HistoryKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Replay  key.Binding
	Refresh key.Binding
	NextTab key.Binding
	Back    key.Binding
	Quit    key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k HistoryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Replay, k.NextTab, k.Refresh, k.Back}
}

// FullHelp returns key bindings for the full help view.
func (k HistoryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Replay, k.NextTab},
		{k.Refresh, k.Back, k.Quit},
	}
}

// DefaultHistoryKeyMap returns default key bindings.
func DefaultHistoryKeyMap() HistoryKeyMap {
	return HistoryKeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "scroll up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "scroll down")),
		Replay:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "verify replay")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		NextTab: key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "sessions/matches")),
		Back:    key.NewBinding(key.WithKeys("esc", "b"), key.WithHelp("esc/b", "back")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// HistoryModel lists recorded sessions and lobby matches, and re-runs a
// session's recording to check it still reproduces its digests.
type HistoryModel struct {
	store      HistoryStore
	tab        historyTab
	sessions   []storage.SessionSummary
	matches    []storage.MatchResult
	table      table.Model
	help       help.Model
	keys       HistoryKeyMap
	verdict    string
	verdictErr bool
	err        error
	width      int
	height     int
	standalone bool
	quitting   bool
	goingBack  bool
}

// NewHistoryModel creates a history screen and loads the first page.
func NewHistoryModel(store HistoryStore, width, height int) HistoryModel {
	m := HistoryModel{
		store:  store,
		keys:   DefaultHistoryKeyMap(),
		help:   help.New(),
		width:  width,
		height: height,
	}
	m.load()
	return m
}

func (m *HistoryModel) columns() []table.Column {
	if m.tab == tabMatches {
		return []table.Column{
			{Title: "#", Width: 5},
			{Title: "Code", Width: 8},
			{Title: "Ticks", Width: 8},
			{Title: "Length", Width: 8},
			{Title: "Ended", Width: 11},
			{Title: "Date", Width: 14},
		}
	}
	return []table.Column{
		{Title: "Session", Width: 10},
		{Title: "Kind", Width: 7},
		{Title: "Ticks", Width: 8},
		{Title: "Final digest", Width: 18},
		{Title: "Desyncs", Width: 8},
		{Title: "Date", Width: 14},
	}
}

func (m *HistoryModel) createTable() table.Model {
	t := table.New(
		table.WithColumns(m.columns()),
		table.WithFocused(true),
		table.WithHeight(max(m.height-10, 3)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// load reads the current tab from the store and rebuilds the table.
func (m *HistoryModel) load() {
	m.err = nil
	m.sessions, m.matches = nil, nil
	if m.store != nil {
		switch m.tab {
		case tabSessions:
			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			m.sessions, m.err = m.store.RecentSessions(ctx, maxHistoryRows)
			cancel()
		case tabMatches:
			m.matches, m.err = m.store.RecentOnlineMatches(maxHistoryRows)
		}
	}
	m.table = m.createTable()
	m.table.SetRows(m.rows())
	m.table.GotoTop()
}

func (m *HistoryModel) rows() []table.Row {
	var rows []table.Row
	switch m.tab {
	case tabSessions:
		for _, s := range m.sessions {
			rows = append(rows, table.Row{
				shortID(s.ID),
				s.Kind.String(),
				fmt.Sprintf("%d", s.Ticks),
				fmt.Sprintf("%016x", s.FinalDigest),
				fmt.Sprintf("%d", s.Desyncs),
				s.StartedAt.Local().Format("Jan 02 15:04"),
			})
		}
	case tabMatches:
		for _, r := range m.matches {
			rows = append(rows, table.Row{
				fmt.Sprintf("%d", r.ID),
				r.Code,
				fmt.Sprintf("%d", r.Ticks),
				(time.Duration(r.Duration) * time.Second).String(),
				r.EndReason,
				r.CreatedAt.Local().Format("Jan 02 15:04"),
			})
		}
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Init initializes the history model.
func (m HistoryModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the history screen.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Back):
			m.goingBack = true
			if m.standalone {
				return m, tea.Quit
			}
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			m.verdict = ""
			m.load()
			return m, nil

		case key.Matches(msg, m.keys.NextTab):
			m.tab = 1 - m.tab
			m.verdict = ""
			m.load()
			return m, nil

		case key.Matches(msg, m.keys.Replay):
			if m.tab == tabSessions {
				m.verifySelected()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		cursor := m.table.Cursor()
		m.table = m.createTable()
		m.table.SetRows(m.rows())
		m.table.SetCursor(cursor)
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// verifySelected replays the highlighted session and records the verdict.
func (m *HistoryModel) verifySelected() {
	i := m.table.Cursor()
	if m.store == nil || i < 0 || i >= len(m.sessions) {
		return
	}
	id := m.sessions[i].ID

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	rec, err := m.store.LoadRecord(ctx, id)
	switch {
	case err != nil:
		m.verdict, m.verdictErr = fmt.Sprintf("load %s: %v", shortID(id), err), true
		return
	case rec == nil:
		m.verdict, m.verdictErr = fmt.Sprintf("session %s not found", shortID(id)), true
		return
	}

	m.verdict, m.verdictErr = ReplayVerdict(*rec)
}

// ReplayVerdict re-simulates a recording and describes the outcome.
// The bool is true when the recording failed to reproduce.
func ReplayVerdict(rec session.Record) (string, bool) {
	last, err := session.Replay(rec)
	var mismatch *checksum.Mismatch
	switch {
	case errors.As(err, &mismatch):
		return fmt.Sprintf("%s: diverged at tick %d (%016x, recorded %016x)",
			shortID(rec.ID), mismatch.Tick, mismatch.Local, mismatch.Remote), true
	case err != nil:
		return fmt.Sprintf("%s: %v", shortID(rec.ID), err), true
	case last.Tick < 0:
		return fmt.Sprintf("%s: nothing recorded", shortID(rec.ID)), false
	}
	return fmt.Sprintf("%s: %d ticks reproduced, final digest %016x",
		shortID(rec.ID), last.Tick+1, last.Digest), false
}

// View renders the history screen.
func (m HistoryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := "SESSIONS"
	if m.tab == tabMatches {
		title = "ONLINE MATCHES"
	}
	b.WriteString(centerText(theme.Title.Render(title), m.width))
	b.WriteString("\n\n")

	tableStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	b.WriteString(centerText(tableStyle.Render(m.renderTableContent()), m.width))
	b.WriteString("\n")

	if m.verdict != "" {
		style := theme.Description
		if m.verdictErr {
			style = theme.Error
		}
		b.WriteString(centerText(style.Render(m.verdict), m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(theme.Help.Render(m.help.View(m.keys)))
	return b.String()
}

func (m HistoryModel) renderTableContent() string {
	if m.err != nil {
		return theme.Error.Render(fmt.Sprintf("Could not read history: %v", m.err))
	}
	if len(m.table.Rows()) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			Padding(2, 4)
		if m.tab == tabMatches {
			return emptyStyle.Render("No online matches yet.\nHost a lobby to play one!")
		}
		return emptyStyle.Render("No sessions recorded yet.\nPlay a round to record one!")
	}
	return m.table.View()
}

// Verdict returns the last replay verdict.
func (m HistoryModel) Verdict() string {
	return m.verdict
}

// IsGoingBack returns true if user wants to go back to menu.
func (m HistoryModel) IsGoingBack() bool {
	return m.goingBack
}

// IsQuitting returns true if user wants to quit entirely.
func (m HistoryModel) IsQuitting() bool {
	return m.quitting
}

// RunHistory runs the history screen as its own program.
func RunHistory(store HistoryStore, width, height int) error {
	model := NewHistoryModel(store, width, height)
	model.standalone = true
	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
