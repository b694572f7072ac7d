package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/google/uuid"

	"github.com/vovakirdan/bomberboy/internal/config"
	"github.com/vovakirdan/bomberboy/internal/multiplayer"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/storage"
)

const sshIdleTimeout = 30 * time.Minute

// SSHServer serves the game to SSH clients via Wish. Every connection gets
// its own session manager; lobbies pair connections through a shared
// coordinator.
type SSHServer struct {
	cfg         config.Config
	addr        string
	server      *ssh.Server
	store       *storage.Store
	coordinator *multiplayer.Coordinator
	sessions    *multiplayer.SessionRegistry
	logger      *log.Logger
}

// NewSSHServer creates an SSH server. store may be nil, in which case
// nothing is recorded and the history screen stays empty.
func NewSSHServer(cfg config.Config, store *storage.Store, logger *log.Logger) (*SSHServer, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	sessions := multiplayer.NewSessionRegistry()
	coordinator := multiplayer.NewCoordinator(multiplayer.CoordinatorConfig{
		LobbyTimeout:  time.Duration(cfg.SSH.LobbyTimeoutSecs) * time.Second,
		CleanupPeriod: multiplayer.DefaultCoordinatorConfig().CleanupPeriod,
	}, sessions)
	coordinator.SetLogger(logger.WithPrefix("lobby"))
	if store != nil {
		coordinator.SetResultSaver(store)
	}

	srv := &SSHServer{
		cfg:         cfg,
		addr:        net.JoinHostPort(cfg.SSH.Host, strconv.Itoa(cfg.SSH.Port)),
		store:       store,
		coordinator: coordinator,
		sessions:    sessions,
		logger:      logger,
	}

	hostKeyPath, err := expandHome(cfg.SSH.HostKeyPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(hostKeyPath), 0o700); err != nil {
		return nil, fmt.Errorf("tui: cannot create host key directory: %w", err)
	}

	server, err := wish.NewServer(
		wish.WithAddress(srv.addr),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(sshIdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.loggingMiddleware,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tui: cannot create SSH server: %w", err)
	}
	srv.server = server
	return srv, nil
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tui: cannot get home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// teaHandler creates a Bubble Tea program for each SSH session.
func (s *SSHServer) teaHandler(sshSession ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, ok := sshSession.Pty()
	if !ok {
		s.logger.Warn("no PTY requested", "user", sshSession.User())
		return nil, nil
	}

	id := multiplayer.SessionID(fmt.Sprintf("%s-%s", sshSession.User(), uuid.NewString()[:8]))
	conn := multiplayer.NewChannelSession(id, 0)
	s.sessions.Register(conn)

	opts := []session.Option{session.WithLogger(s.logger.With("ssh_session", id))}
	if s.store != nil {
		opts = append(opts, session.WithRecorder(s.store))
	}
	manager := session.NewManager(opts...)

	go func() {
		<-sshSession.Context().Done()
		manager.Teardown()
		s.coordinator.Send(multiplayer.SessionDisconnectedMsg{SessionID: id})
		s.sessions.Unregister(id)
		conn.Close()
	}()

	var history HistoryStore
	if s.store != nil {
		history = s.store
	}
	model := NewSessionModel(SessionDeps{
		ID:          id,
		Config:      s.cfg,
		Manager:     manager,
		Coordinator: s.coordinator,
		Events:      conn.Events(),
		History:     history,
	}, pty.Window.Width, pty.Window.Height)

	return model, []tea.ProgramOption{tea.WithAltScreen()}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		s.logger.Info("session started",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
		next(sshSession)
		s.logger.Info("session ended",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
	}
}

// ListenAndServe starts the SSH server and blocks until ctx is done.
func (s *SSHServer) ListenAndServe(ctx context.Context) error {
	s.coordinator.Start()
	defer s.coordinator.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting SSH server", "address", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, ssh.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("tui: ssh: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.addr
}

// SessionDeps is what a terminal session needs from the server.
type SessionDeps struct {
	ID          multiplayer.SessionID
	Config      config.Config
	Manager     *session.Manager
	Coordinator LobbyCoordinator
	Events      <-chan multiplayer.SessionEvent
	History     HistoryStore
}

type screen int

const (
	screenMenu screen = iota
	screenRound
	screenLobby
	screenHistory
)

// SessionModel manages the flow of one terminal: menu, then a round, the
// lobby or the history screen, then back to the menu.
type SessionModel struct {
	deps     SessionDeps
	screen   screen
	menu     MenuModel
	round    RoundModel
	lobby    LobbyModel
	history  HistoryModel
	width    int
	height   int
	err      string
	quitting bool
}

// NewSessionModel creates a new session model.
func NewSessionModel(deps SessionDeps, width, height int) SessionModel {
	return SessionModel{
		deps:   deps,
		menu:   NewMenuModel(DefaultMenuItems(deps.Coordinator != nil), width, height),
		width:  width,
		height: height,
	}
}

// Init starts listening for lobby events.
func (m SessionModel) Init() tea.Cmd {
	return WaitForEvent(m.deps.Events)
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = wsm.Width, wsm.Height
	}

	if evt, ok := msg.(multiplayer.SessionEvent); ok {
		updated, cmd := m.lobby.Update(evt)
		m.lobby = updated.(LobbyModel)
		return m, tea.Batch(cmd, WaitForEvent(m.deps.Events))
	}

	// A handshake that finishes after the player left the lobby.
	if started, ok := msg.(roundStartedMsg); ok && m.screen != screenLobby {
		if started.err == nil {
			m.deps.Manager.Teardown()
		}
		m.deps.Coordinator.Send(multiplayer.LeaveMatchMsg{SessionID: m.deps.ID, MatchID: started.matchID})
		return m, nil
	}

	switch m.screen {
	case screenRound:
		return m.updateRound(msg)
	case screenLobby:
		return m.updateLobby(msg)
	case screenHistory:
		return m.updateHistory(msg)
	}
	return m.updateMenu(msg)
}

func (m SessionModel) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.menu.Update(msg)
	m.menu = updated.(MenuModel)

	if m.menu.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.menu.Selected() {
	case ChoiceHotSeat:
		return m.startLocal(2, HotSeatKeyMap())
	case ChoiceSolo:
		return m.startLocal(1, SoloKeyMap())
	case ChoiceOnline:
		if m.deps.Coordinator == nil {
			break
		}
		m.lobby = NewLobbyModel(m.deps.ID, m.deps.Coordinator, m.deps.Manager, m.deps.Config, m.width, m.height)
		m.screen = screenLobby
		return m, m.lobby.Init()
	case ChoiceHistory:
		m.history = NewHistoryModel(m.deps.History, m.width, m.height)
		m.screen = screenHistory
		return m, m.history.Init()
	}
	return m, cmd
}

func (m SessionModel) startLocal(participants int, keys KeyMap) (tea.Model, tea.Cmd) {
	cfg := m.deps.Config.Local()
	cfg.NumParticipants = participants

	s, err := m.deps.Manager.StartLocal(cfg)
	if err != nil {
		m.err = err.Error()
		return m.toMenu()
	}
	m.err = ""
	m.round = NewRoundModel(m.deps.Manager, s, keys, cfg.FPS, m.width, m.height)
	m.screen = screenRound
	return m, m.round.Init()
}

func (m SessionModel) toMenu() (tea.Model, tea.Cmd) {
	m.menu = NewMenuModel(DefaultMenuItems(m.deps.Coordinator != nil), m.width, m.height)
	m.screen = screenMenu
	return m, m.menu.Init()
}

func (m SessionModel) updateRound(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.round.Update(msg)
	m.round = updated.(RoundModel)

	switch {
	case m.round.IsQuitting():
		m.quitting = true
		return m, tea.Quit
	case m.round.BackToMenu():
		return m.toMenu()
	}
	return m, cmd
}

func (m SessionModel) updateLobby(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.lobby.Update(msg)
	m.lobby = updated.(LobbyModel)

	switch {
	case m.lobby.IsQuitting():
		m.quitting = true
		return m, tea.Quit
	case m.lobby.BackToMenu():
		return m.toMenu()
	}
	return m, cmd
}

func (m SessionModel) updateHistory(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.history.Update(msg)
	m.history = updated.(HistoryModel)

	switch {
	case m.history.IsQuitting():
		m.quitting = true
		return m, tea.Quit
	case m.history.IsGoingBack():
		return m.toMenu()
	}
	return m, cmd
}

// View renders the current screen.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}

	switch m.screen {
	case screenRound:
		return m.round.View()
	case screenLobby:
		return m.lobby.View()
	case screenHistory:
		return m.history.View()
	}

	view := m.menu.View()
	if m.err != "" {
		view += "\n" + centerText(theme.Error.Render(m.err), m.width)
	}
	return view
}

// RunSession runs the session flow on the local terminal.
func RunSession(deps SessionDeps, width, height int) error {
	p := tea.NewProgram(NewSessionModel(deps, width, height), tea.WithAltScreen())
	_, err := p.Run()
	deps.Manager.Teardown()
	return err
}
