package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// MenuChoice identifies a menu entry.
type MenuChoice int

const (
	ChoiceNone MenuChoice = iota
	ChoiceHotSeat
	ChoiceSolo
	ChoiceOnline
	ChoiceHistory
	ChoiceQuit
)

// MenuItem represents a selectable entry in the menu.
type MenuItem struct {
	Choice      MenuChoice
	Title       string
	Description string
}

// DefaultMenuItems returns the entries of the main menu. Online play is
// only offered when a lobby coordinator is available.
func DefaultMenuItems(online bool) []MenuItem {
	items := []MenuItem{
		{ChoiceHotSeat, "Hot seat", "Two players, one keyboard"},
		{ChoiceSolo, "Solo", "Wander the arena alone"},
	}
	if online {
		items = append(items, MenuItem{ChoiceOnline, "Online", "Host or join a lobby with a code"})
	}
	return append(items,
		MenuItem{ChoiceHistory, "History", "Recorded sessions and replays"},
		MenuItem{ChoiceQuit, "Quit", ""},
	)
}

// MenuModel is the Bubble Tea model for the main menu.
type MenuModel struct {
	items      []MenuItem
	cursor     int
	width      int
	height     int
	standalone bool
	quitting   bool
	selected   MenuChoice
}

// NewMenuModel creates a new menu model.
func NewMenuModel(items []MenuItem, width, height int) MenuModel {
	return MenuModel{
		items:  items,
		width:  width,
		height: height,
	}
}

// Init initializes the menu model.
func (m MenuModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the menu.
func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	return m, nil
}

func (m MenuModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch MapKeyToMenuAction(msg) {
	case MenuActionQuit:
		m.quitting = true
		return m, tea.Quit

	case MenuActionUp:
		if m.cursor > 0 {
			m.cursor--
		}

	case MenuActionDown:
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case MenuActionSelect:
		if len(m.items) == 0 {
			return m, nil
		}
		m.selected = m.items[m.cursor].Choice
		if m.selected == ChoiceQuit {
			m.quitting = true
			return m, tea.Quit
		}
		if m.standalone {
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the menu.
func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(centerText(theme.Title.Render("  B O M B E R B O Y  "), m.width))
	b.WriteString("\n\n")
	b.WriteString(centerText(theme.Subtitle.Render("Rollback arena"), m.width))
	b.WriteString("\n\n")

	for i, item := range m.items {
		style := theme.ItemNormal
		cursor := "  "
		if i == m.cursor {
			style = theme.ItemActive
			cursor = "> "
		}
		b.WriteString(centerText(style.Render(fmt.Sprintf("%s%-10s", cursor, item.Title)), m.width))
		b.WriteString("\n")
	}

	if len(m.items) > 0 && m.items[m.cursor].Description != "" {
		b.WriteString("\n")
		b.WriteString(centerText(theme.Description.Render(m.items[m.cursor].Description), m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(centerText(theme.Help.Render("Up/Down: Navigate  |  Enter: Select  |  Q: Quit"), m.width))
	b.WriteString("\n")

	return b.String()
}

// Selected returns the chosen entry, or ChoiceNone.
func (m MenuModel) Selected() MenuChoice {
	return m.selected
}

// IsQuitting returns true if user requested to quit.
func (m MenuModel) IsQuitting() bool {
	return m.quitting
}

// RunMenu runs the menu as its own program and returns the selection.
func RunMenu(items []MenuItem, width, height int) (MenuChoice, error) {
	model := NewMenuModel(items, width, height)
	model.standalone = true

	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return ChoiceNone, err
	}
	m, ok := final.(MenuModel)
	if !ok || m.IsQuitting() {
		return ChoiceQuit, nil
	}
	return m.Selected(), nil
}
