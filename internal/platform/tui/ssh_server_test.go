package tui

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/bomberboy/internal/config"
	"github.com/vovakirdan/bomberboy/internal/multiplayer"
	"github.com/vovakirdan/bomberboy/internal/session"
)

func sessionUpdate(t *testing.T, m SessionModel, msgs ...tea.Msg) SessionModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(SessionModel)
	}
	return m
}

func TestSessionModelRoutes(t *testing.T) {
	manager := session.NewManager()
	t.Cleanup(manager.Teardown)
	m := NewSessionModel(SessionDeps{
		ID:      "tester",
		Config:  config.Default(),
		Manager: manager,
	}, 80, 24)

	// Hot seat is the first entry.
	m = sessionUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.screen != screenRound {
		t.Fatalf("screen = %d, expected round", m.screen)
	}
	s := manager.Session()
	if s == nil || len(s.LocalHandles()) != 2 {
		t.Fatal("hot seat should start a two-player local session")
	}

	m = sessionUpdate(t, m, TickMsg{}, tea.KeyMsg{Type: tea.KeyEsc})
	if m.screen != screenMenu || manager.Session() != nil {
		t.Fatal("leaving the round should return to the menu")
	}

	// Solo, then history.
	m = sessionUpdate(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	if s := manager.Session(); m.screen != screenRound || s == nil || len(s.LocalHandles()) != 1 {
		t.Fatal("solo should start a one-player local session")
	}
	m = sessionUpdate(t, m, tea.KeyMsg{Type: tea.KeyEsc}, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	if m.screen != screenHistory {
		t.Fatalf("screen = %d, expected history", m.screen)
	}
	m = sessionUpdate(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.screen != screenMenu {
		t.Fatalf("screen = %d after leaving history", m.screen)
	}

	next, cmd := m.Update(runeKey('q'))
	if !next.(SessionModel).quitting || cmd == nil {
		t.Error("q on the menu should quit")
	}
}

func TestSessionModelOnline(t *testing.T) {
	manager := session.NewManager()
	coord := &recordingCoordinator{}
	events := make(chan multiplayer.SessionEvent, 1)
	m := NewSessionModel(SessionDeps{
		ID:          "tester",
		Config:      config.Default(),
		Manager:     manager,
		Coordinator: coord,
		Events:      events,
	}, 80, 24)

	m = sessionUpdate(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	if m.screen != screenLobby {
		t.Fatalf("screen = %d, expected lobby", m.screen)
	}

	m = sessionUpdate(t, m, runeKey('h'))
	events <- multiplayer.LobbyCreatedEvent{Code: "QWERTY"}
	evt := m.Init()()
	next, cmd := m.Update(evt)
	m = next.(SessionModel)
	if cmd == nil {
		t.Error("the session should keep listening for lobby events")
	}
	if !strings.Contains(m.View(), "QWERTY") {
		t.Error("lobby event did not reach the lobby screen")
	}

	// A handshake that completes after leaving is undone.
	m = sessionUpdate(t, m, tea.KeyMsg{Type: tea.KeyEsc}, tea.KeyMsg{Type: tea.KeyEsc})
	if m.screen != screenMenu {
		t.Fatalf("screen = %d, expected menu", m.screen)
	}
	m = sessionUpdate(t, m, roundStartedMsg{matchID: "late", err: session.ErrClosed})
	if leave, ok := coord.last().(multiplayer.LeaveMatchMsg); !ok || leave.MatchID != "late" {
		t.Errorf("late handshake sent %+v, expected LeaveMatchMsg", coord.last())
	}
}

func TestNewSSHServer(t *testing.T) {
	cfg := config.Default()
	cfg.SSH.Host = "127.0.0.1"
	cfg.SSH.Port = 2299
	cfg.SSH.HostKeyPath = filepath.Join(t.TempDir(), "keys", "host_ed25519")

	srv, err := NewSSHServer(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewSSHServer() failed: %v", err)
	}
	if srv.Addr() != "127.0.0.1:2299" {
		t.Errorf("Addr() = %q", srv.Addr())
	}
}
