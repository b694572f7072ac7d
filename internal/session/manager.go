package session

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/sim"
	"github.com/vovakirdan/bomberboy/internal/transport"
)

// Manager owns at most one active session.
type Manager struct {
	mu       sync.Mutex
	active   *Session
	logger   *log.Logger
	recorder Recorder

	// pending cancels the handshake of an online start in progress.
	pending context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger passed to sessions.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder saves every session when it is torn down.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager creates a manager with no active session.
func NewManager(opts ...Option) *Manager {
	m := &Manager{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// busyLocked reports whether a session is active or being started.
func (m *Manager) busyLocked() bool {
	return m.activeLocked() != nil || m.pending != nil
}

// activeLocked returns the live session, forgetting one that closed itself.
func (m *Manager) activeLocked() *Session {
	if m.active != nil && m.active.Closed() {
		m.active = nil
	}
	return m.active
}

// Session returns the active session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// StartLocal starts a sync-test session in which every participant is local.
func (m *Manager) StartLocal(cfg LocalConfig) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busyLocked() {
		return nil, ErrSessionActive
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	handles := make([]sim.Handle, cfg.NumParticipants)
	for i := range handles {
		handles[i] = sim.Handle(i)
	}
	v, err := newLocalVariant(cfg, handles)
	if err != nil {
		return nil, err
	}

	s := newSession(KindLocal, cfg.NumParticipants, cfg.FPS, handles, m.logger, m.recorder)
	s.variant = v
	m.active = s
	s.logger.Info("session started", "kind", KindLocal, "participants", cfg.NumParticipants,
		"check_distance", cfg.CheckDistance, "input_delay", cfg.InputDelay)
	return s, nil
}

// StartOnline starts a peer-to-peer session over tr. The session owns tr
// from here on: it is closed on failure and on teardown. Start blocks until
// every remote address has answered the handshake, ctx is done, Teardown is
// called, or the transport fails; the last three yield a *ConnectionError.
// The manager lock is not held while waiting for peers.
func (m *Manager) StartOnline(ctx context.Context, cfg OnlineConfig, tr transport.Transport) (*Session, error) {
	m.mu.Lock()
	if m.busyLocked() {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	var locals []sim.Handle
	for _, p := range cfg.Roster {
		if p.Kind == LocalParticipant {
			locals = append(locals, p.Handle)
		}
	}
	s := newSession(KindOnline, len(cfg.Roster), cfg.FPS, locals, m.logger, m.recorder)

	v, err := newOnlineVariant(cfg, tr, s.logger)
	if err != nil {
		m.mu.Unlock()
		tr.Close()
		return nil, err
	}
	s.locals = v.locals

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.pending = cancel
	m.mu.Unlock()

	err = v.handshake(hctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	torn := m.pending == nil
	m.pending = nil
	if err == nil && torn {
		err = &ConnectionError{Err: context.Canceled}
	}
	if err != nil {
		tr.Close()
		s.logger.Warn("handshake failed", "error", err)
		return nil, err
	}
	v.start()

	s.variant = v
	m.active = s
	s.logger.Info("session started", "kind", KindOnline, "local", tr.Local(), "peers", v.peers,
		"input_delay", cfg.InputDelay, "max_prediction_window", cfg.MaxPredictionWindow)
	return s, nil
}

// Advance runs one tick of the active session.
func (m *Manager) Advance(local map[sim.Handle]input.Bits) (FrameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.activeLocked()
	if s == nil {
		return FrameResult{}, ErrNoActiveSession
	}
	res, err := s.Advance(local)
	if s.Closed() {
		m.active = nil
	}
	return res, err
}

// Teardown ends the active session, if any, and cancels an online start
// that is still waiting for its peers. Safe to call multiple times.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		m.pending()
		m.pending = nil
	}

	if m.active != nil {
		m.active.Teardown()
		m.active = nil
	}
}
