package multiplayer

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/bomberboy/internal/transport"
)

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	LobbyTimeout  time.Duration // How long before an empty lobby expires
	CleanupPeriod time.Duration // How often to clean up expired lobbies
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		LobbyTimeout:  2 * time.Minute,
		CleanupPeriod: 30 * time.Second,
	}
}

// MatchResultSaver persists finished matches without the coordinator
// depending on the storage package.
type MatchResultSaver interface {
	SaveMatchResult(result MatchResultData) error
}

// MatchResultData is the persisted summary of a match.
type MatchResultData struct {
	MatchID      string
	Code         string
	HostSession  string
	GuestSession string
	EndReason    string
	Ticks        int64
	DurationSecs int
}

// Coordinator manages lobbies and active matches.
type Coordinator struct {
	config      CoordinatorConfig
	sessions    *SessionRegistry
	resultSaver MatchResultSaver // Optional, can be nil
	logger      *log.Logger

	mu      sync.RWMutex
	lobbies map[string]*Lobby  // code -> lobby
	matches map[MatchID]*Match // matchID -> match

	sessionLobby map[SessionID]string
	sessionMatch map[SessionID]MatchID

	msgChan  chan CoordinatorMessage
	done     chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(cfg CoordinatorConfig, sessions *SessionRegistry) *Coordinator {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = DefaultCoordinatorConfig().CleanupPeriod
	}
	return &Coordinator{
		config:       cfg,
		sessions:     sessions,
		logger:       log.New(io.Discard),
		lobbies:      make(map[string]*Lobby),
		matches:      make(map[MatchID]*Match),
		sessionLobby: make(map[SessionID]string),
		sessionMatch: make(map[SessionID]MatchID),
		msgChan:      make(chan CoordinatorMessage, 256),
		done:         make(chan struct{}),
	}
}

// SetResultSaver sets the optional match result saver.
func (c *Coordinator) SetResultSaver(saver MatchResultSaver) {
	c.resultSaver = saver
}

// SetLogger sets the coordinator logger.
func (c *Coordinator) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Start begins the coordinator's background processing.
func (c *Coordinator) Start() {
	go c.processMessages()
	go c.cleanupLoop()
}

// Stop shuts down the coordinator. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// Send sends a message to the coordinator for async processing.
func (c *Coordinator) Send(msg CoordinatorMessage) {
	select {
	case c.msgChan <- msg:
	case <-c.done:
	}
}

func (c *Coordinator) processMessages() {
	for {
		select {
		case msg := <-c.msgChan:
			c.handleMessage(msg)
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) handleMessage(msg CoordinatorMessage) {
	switch m := msg.(type) {
	case CreateLobbyMsg:
		c.handleCreateLobby(m)
	case JoinLobbyMsg:
		c.handleJoinLobby(m)
	case CancelLobbyMsg:
		c.handleCancelLobby(m)
	case LeaveMatchMsg:
		c.endMatch(m.SessionID, m.Ticks, MatchEndReasonLeft)
	case SessionDisconnectedMsg:
		c.handleSessionDisconnected(m)
	}
}

func (c *Coordinator) busyLocked(id SessionID) bool {
	_, inLobby := c.sessionLobby[id]
	_, inMatch := c.sessionMatch[id]
	return inLobby || inMatch
}

func (c *Coordinator) handleCreateLobby(msg CreateLobbyMsg) {
	session, ok := c.sessions.Get(msg.SessionID)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.busyLocked(msg.SessionID) {
		c.mu.Unlock()
		session.Send(LobbyErrorEvent{Message: "Already in a lobby"})
		return
	}

	code := c.generateUniqueCode()
	c.lobbies[code] = &Lobby{
		Code:      code,
		Host:      session,
		CreatedAt: time.Now(),
	}
	c.sessionLobby[msg.SessionID] = code
	c.mu.Unlock()

	c.logger.Info("lobby created", "code", code, "host", msg.SessionID)
	session.Send(LobbyCreatedEvent{Code: code})
}

func (c *Coordinator) handleJoinLobby(msg JoinLobbyMsg) {
	session, ok := c.sessions.Get(msg.SessionID)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busyLocked(msg.SessionID) {
		session.Send(LobbyErrorEvent{Message: "Already in a lobby"})
		return
	}

	code := strings.ToUpper(strings.TrimSpace(msg.Code))
	lobby, exists := c.lobbies[code]
	if !exists {
		session.Send(LobbyErrorEvent{Message: "Lobby not found"})
		return
	}
	if lobby.Host.ID() == msg.SessionID {
		session.Send(LobbyErrorEvent{Message: "Cannot join your own lobby"})
		return
	}

	c.startMatchLocked(lobby, session)
}

// startMatchLocked turns a lobby into a match. Each side gets its own
// endpoint on a fresh hub, named after its session.
func (c *Coordinator) startMatchLocked(lobby *Lobby, guest SessionHandle) {
	host := lobby.Host
	hub := transport.NewMemoryHub()
	hostEnd, err := hub.Endpoint(string(host.ID()))
	var guestEnd *transport.Memory
	if err == nil {
		guestEnd, err = hub.Endpoint(string(guest.ID()))
	}
	if err != nil {
		c.logger.Error("failed to wire match", "code", lobby.Code, "error", err)
		host.Send(LobbyErrorEvent{Message: "Failed to start match"})
		guest.Send(LobbyErrorEvent{Message: "Failed to start match"})
		return
	}

	match := &Match{
		ID:   MatchID(fmt.Sprintf("match-%s-%d", lobby.Code, time.Now().UnixNano())),
		Code: lobby.Code,
		Seats: [2]Seat{
			{Session: host, Handle: 0},
			{Session: guest, Handle: 1},
		},
		StartedAt: time.Now(),
	}

	c.matches[match.ID] = match
	delete(c.lobbies, lobby.Code)
	delete(c.sessionLobby, host.ID())
	c.sessionMatch[host.ID()] = match.ID
	c.sessionMatch[guest.ID()] = match.ID

	c.logger.Info("match started", "match", match.ID, "host", host.ID(), "guest", guest.ID())

	host.Send(MatchStartedEvent{
		MatchID:   match.ID,
		Code:      match.Code,
		Handle:    0,
		Opponent:  string(guest.ID()),
		Transport: hostEnd,
	})
	guest.Send(MatchStartedEvent{
		MatchID:   match.ID,
		Code:      match.Code,
		Handle:    1,
		Opponent:  string(host.ID()),
		Transport: guestEnd,
	})
}

// endMatch finishes whatever match id is in and tells the other side.
func (c *Coordinator) endMatch(id SessionID, ticks int64, reason MatchEndReason) {
	c.mu.Lock()
	matchID, ok := c.sessionMatch[id]
	match := c.matches[matchID]
	if !ok || match == nil {
		c.mu.Unlock()
		return
	}
	delete(c.matches, matchID)
	for _, seat := range match.Seats {
		delete(c.sessionMatch, seat.Session.ID())
	}
	c.mu.Unlock()

	c.logger.Info("match ended", "match", matchID, "by", id, "reason", reason)
	match.Other(id).Session.Send(MatchEndedEvent{MatchID: matchID, Reason: reason})

	if c.resultSaver == nil {
		return
	}
	result := MatchResultData{
		MatchID:      string(matchID),
		Code:         match.Code,
		HostSession:  string(match.Seats[0].Session.ID()),
		GuestSession: string(match.Seats[1].Session.ID()),
		EndReason:    reason.String(),
		Ticks:        ticks,
		DurationSecs: int(time.Since(match.StartedAt).Seconds()),
	}
	go func() {
		if err := c.resultSaver.SaveMatchResult(result); err != nil {
			c.logger.Warn("failed to save match result", "match", result.MatchID, "error", err)
		}
	}()
}

func (c *Coordinator) handleCancelLobby(msg CancelLobbyMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := strings.ToUpper(msg.Code)
	lobby, exists := c.lobbies[code]
	if !exists || lobby.Host.ID() != msg.SessionID {
		return
	}
	delete(c.lobbies, code)
	delete(c.sessionLobby, msg.SessionID)
}

func (c *Coordinator) handleSessionDisconnected(msg SessionDisconnectedMsg) {
	c.mu.Lock()
	if code, inLobby := c.sessionLobby[msg.SessionID]; inLobby {
		delete(c.lobbies, code)
		delete(c.sessionLobby, msg.SessionID)
	}
	c.mu.Unlock()

	c.endMatch(msg.SessionID, 0, MatchEndReasonDisconnect)
}

func (c *Coordinator) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpiredLobbies(time.Now())
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) cleanupExpiredLobbies(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for code, lobby := range c.lobbies {
		if now.Sub(lobby.CreatedAt) > c.config.LobbyTimeout {
			lobby.Host.Send(LobbyErrorEvent{Message: "Lobby expired"})
			delete(c.sessionLobby, lobby.Host.ID())
			delete(c.lobbies, code)
		}
	}
}

func (c *Coordinator) generateUniqueCode() string {
	for {
		code := generateJoinCode()
		if _, exists := c.lobbies[code]; !exists {
			return code
		}
	}
}

// generateJoinCode creates a 6-character uppercase alphanumeric code.
func generateJoinCode() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%06X", time.Now().UnixNano()&0xFFFFFF)
	}
	return base32.StdEncoding.EncodeToString(b)[:6]
}

// GetLobby returns a lobby by code.
func (c *Coordinator) GetLobby(code string) (*Lobby, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lobbies[strings.ToUpper(code)]
	return l, ok
}

// LobbyCount returns the number of open lobbies.
func (c *Coordinator) LobbyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lobbies)
}

// MatchCount returns the number of active matches.
func (c *Coordinator) MatchCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matches)
}
