package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/bomberboy/internal/config"
	"github.com/vovakirdan/bomberboy/internal/multiplayer"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

const (
	joinCodeLength = 6
	connectTimeout = 10 * time.Second
)

// LobbyState represents the current state of the online flow.
type LobbyState int

const (
	LobbyStateChooseMode    LobbyState = iota // Choose Host or Join
	LobbyStateHostWaiting                     // Hosting, waiting for joiner
	LobbyStateJoinEnterCode                   // Entering join code
	LobbyStateJoinWaiting                     // Waiting for the coordinator
	LobbyStateConnecting                      // Handshaking with the opponent
	LobbyStateInRound                         // Playing
)

// LobbyCoordinator receives lobby requests.
type LobbyCoordinator interface {
	Send(msg multiplayer.CoordinatorMessage)
}

// roundStartedMsg carries the outcome of the online handshake.
type roundStartedMsg struct {
	matchID multiplayer.MatchID
	session *session.Session
	err     error
}

// LobbyModel handles hosting or joining a lobby and then plays the match.
// Coordinator events are fed in by the parent model; see WaitForEvent.
type LobbyModel struct {
	state       LobbyState
	width       int
	height      int
	sessionID   multiplayer.SessionID
	coordinator LobbyCoordinator
	manager     *session.Manager
	cfg         config.Config

	// Host state
	lobbyCode string

	// Join state
	codeInput string
	lobbyErr  string

	// Match state
	matchID multiplayer.MatchID
	handle  sim.Handle
	round   RoundModel
	notice  string

	backToMenu bool
	quitting   bool
}

// NewLobbyModel creates a lobby for one terminal session.
func NewLobbyModel(
	sessionID multiplayer.SessionID,
	coordinator LobbyCoordinator,
	manager *session.Manager,
	cfg config.Config,
	width, height int,
) LobbyModel {
	return LobbyModel{
		state:       LobbyStateChooseMode,
		width:       width,
		height:      height,
		sessionID:   sessionID,
		coordinator: coordinator,
		manager:     manager,
		cfg:         cfg,
	}
}

// WaitForEvent returns a command that waits for the next coordinator event.
// Issue it again after every event to keep listening.
func WaitForEvent(events <-chan multiplayer.SessionEvent) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		evt, ok := <-events
		if !ok {
			return nil
		}
		return evt
	}
}

// Init initializes the lobby model.
func (m LobbyModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m LobbyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == LobbyStateInRound {
			return m.updateRound(msg)
		}
		return m, nil

	case multiplayer.LobbyCreatedEvent:
		m.lobbyCode = msg.Code
		m.lobbyErr = ""
		m.state = LobbyStateHostWaiting
		return m, nil

	case multiplayer.LobbyErrorEvent:
		m.lobbyErr = msg.Message
		switch m.state {
		case LobbyStateJoinWaiting:
			m.state = LobbyStateJoinEnterCode
		case LobbyStateHostWaiting:
			m.state = LobbyStateChooseMode
		}
		return m, nil

	case multiplayer.MatchStartedEvent:
		m.matchID = msg.MatchID
		m.handle = msg.Handle
		m.lobbyErr = ""
		m.state = LobbyStateConnecting
		return m, m.startRound(msg)

	case multiplayer.MatchEndedEvent:
		if msg.MatchID != m.matchID {
			return m, nil
		}
		if m.state == LobbyStateInRound {
			m.round.Notice(fmt.Sprintf("Opponent gone (%s). Esc to leave.", msg.Reason))
		} else {
			m.notice = fmt.Sprintf("Match ended: %s", msg.Reason)
		}
		return m, nil

	case roundStartedMsg:
		if msg.matchID != m.matchID {
			if msg.session != nil {
				m.manager.Teardown()
			}
			return m, nil
		}
		if msg.err != nil {
			m.coordinator.Send(multiplayer.LeaveMatchMsg{SessionID: m.sessionID, MatchID: m.matchID})
			m.lobbyErr = fmt.Sprintf("Could not reach opponent: %v", msg.err)
			m.state = LobbyStateChooseMode
			return m, nil
		}
		m.round = NewRoundModel(m.manager, msg.session, SoloKeyMap(), m.cfg.Session.FPS, m.width, m.height)
		m.state = LobbyStateInRound
		return m, m.round.Init()

	case tea.KeyMsg:
		if m.state == LobbyStateInRound {
			return m.updateRound(msg)
		}
		return m.handleKey(msg)

	case TickMsg:
		if m.state == LobbyStateInRound {
			return m.updateRound(msg)
		}
	}
	return m, nil
}

// startRound handshakes with the opponent over the match transport.
func (m LobbyModel) startRound(ev multiplayer.MatchStartedEvent) tea.Cmd {
	peers := make([]string, 2)
	peers[ev.Handle] = string(m.sessionID)
	peers[1-ev.Handle] = ev.Opponent
	cfg := m.cfg.Online(session.PeerRoster(ev.Handle, peers))
	manager := m.manager

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		s, err := manager.StartOnline(ctx, cfg, ev.Transport)
		return roundStartedMsg{matchID: ev.MatchID, session: s, err: err}
	}
}

func (m LobbyModel) updateRound(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.round.Update(msg)
	m.round = updated.(RoundModel)

	if !m.round.BackToMenu() && !m.round.IsQuitting() {
		return m, cmd
	}

	ticks := m.round.Stats().Ticks
	m.coordinator.Send(multiplayer.LeaveMatchMsg{SessionID: m.sessionID, MatchID: m.matchID, Ticks: ticks})
	m.notice = fmt.Sprintf("Left match after %d ticks", ticks)
	m.state = LobbyStateChooseMode
	if m.round.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m LobbyModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.leaveLobby()
		m.quitting = true
		return m, tea.Quit
	}

	switch m.state {
	case LobbyStateChooseMode:
		return m.handleChooseModeKey(msg)
	case LobbyStateHostWaiting:
		return m.handleHostWaitingKey(msg)
	case LobbyStateJoinEnterCode:
		return m.handleJoinCodeKey(msg)
	}
	return m, nil
}

func (m *LobbyModel) leaveLobby() {
	if m.state == LobbyStateHostWaiting {
		m.coordinator.Send(multiplayer.CancelLobbyMsg{SessionID: m.sessionID, Code: m.lobbyCode})
	}
}

func (m LobbyModel) handleChooseModeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "h", "H", "1":
		m.notice = ""
		m.lobbyErr = ""
		m.coordinator.Send(multiplayer.CreateLobbyMsg{SessionID: m.sessionID})
	case "j", "J", "2":
		m.state = LobbyStateJoinEnterCode
		m.notice = ""
		m.codeInput = ""
		m.lobbyErr = ""
	case "esc", "b":
		m.backToMenu = true
	case "q":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m LobbyModel) handleHostWaitingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "b":
		m.leaveLobby()
		m.state = LobbyStateChooseMode
	case "q":
		m.leaveLobby()
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m LobbyModel) handleJoinCodeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()

	switch k {
	case "esc":
		m.state = LobbyStateChooseMode
		return m, nil
	case "enter":
		if m.codeInput != "" {
			m.state = LobbyStateJoinWaiting
			m.lobbyErr = ""
			m.coordinator.Send(multiplayer.JoinLobbyMsg{SessionID: m.sessionID, Code: m.codeInput})
		}
		return m, nil
	case "backspace":
		if m.codeInput != "" {
			m.codeInput = m.codeInput[:len(m.codeInput)-1]
		}
		return m, nil
	}

	if len(k) == 1 && len(m.codeInput) < joinCodeLength {
		c := strings.ToUpper(k)
		if (c[0] >= 'A' && c[0] <= 'Z') || (c[0] >= '0' && c[0] <= '9') {
			m.codeInput += c
		}
	}
	return m, nil
}

// View renders the current state.
func (m LobbyModel) View() string {
	if m.quitting {
		return ""
	}

	var body []string
	switch m.state {
	case LobbyStateInRound:
		return m.round.View()
	case LobbyStateChooseMode:
		body = []string{
			theme.Title.Render("ONLINE"),
			"",
			theme.ItemNormal.Render("[H] Host a lobby"),
			theme.ItemNormal.Render("[J] Join a lobby"),
		}
	case LobbyStateHostWaiting:
		body = []string{
			theme.Title.Render("HOSTING"),
			"",
			theme.Subtitle.Render("Share this code with your opponent:"),
			"",
			theme.Code.Render(m.lobbyCode),
			"",
			theme.Description.Render("Waiting for player to join..."),
		}
	case LobbyStateJoinEnterCode:
		code := m.codeInput
		if len(code) < joinCodeLength {
			code += "_" + strings.Repeat(" ", joinCodeLength-1-len(m.codeInput))
		}
		body = []string{
			theme.Title.Render("JOIN"),
			"",
			theme.Subtitle.Render("Enter the lobby code:"),
			"",
			theme.Code.Render(code),
		}
	case LobbyStateJoinWaiting:
		body = []string{
			theme.Title.Render("JOINING"),
			"",
			theme.Description.Render(fmt.Sprintf("Looking for lobby %s...", m.codeInput)),
		}
	case LobbyStateConnecting:
		body = []string{
			theme.Title.Render("CONNECTING"),
			"",
			theme.Subtitle.Render(fmt.Sprintf("You are player %d", m.handle+1)),
			theme.Description.Render("Exchanging handshakes..."),
		}
	}

	if m.lobbyErr != "" {
		body = append(body, "", theme.Error.Render("Error: "+m.lobbyErr))
	}
	if m.notice != "" {
		body = append(body, "", theme.Description.Render(m.notice))
	}
	body = append(body, "", theme.Help.Render(m.helpLine()))

	var b strings.Builder
	b.WriteString("\n")
	for _, line := range body {
		b.WriteString(centerText(line, m.width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m LobbyModel) helpLine() string {
	switch m.state {
	case LobbyStateHostWaiting:
		return "Esc: Cancel  |  Q: Quit"
	case LobbyStateJoinEnterCode:
		return "Enter: Join  |  Esc: Back"
	case LobbyStateJoinWaiting, LobbyStateConnecting:
		return "Ctrl+C: Quit"
	}
	return "Esc: Back  |  Q: Quit"
}

// State returns the current lobby state.
func (m LobbyModel) State() LobbyState {
	return m.state
}

// LobbyCode returns the code of the hosted lobby.
func (m LobbyModel) LobbyCode() string {
	return m.lobbyCode
}

// MatchID returns the current or last match.
func (m LobbyModel) MatchID() multiplayer.MatchID {
	return m.matchID
}

// BackToMenu returns true if user wants to go back to menu.
func (m LobbyModel) BackToMenu() bool {
	return m.backToMenu
}

// IsQuitting returns true if user wants to quit entirely.
func (m LobbyModel) IsQuitting() bool {
	return m.quitting
}
