// Package session owns the lifecycle of one rollback session.
//
// A session is either local (every participant on this machine, run as a
// sync test that re-simulates recent ticks and compares checksums) or
// online (some participants remote, reached over a transport.Transport).
// Both variants are advanced the same way: an external driver calls
// Advance once per tick with the local participants' input bits.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/bomberboy/internal/checksum"
	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

// Limits on session configuration.
const (
	MaxWindow     = 64 // upper bound for check distance and prediction window
	MaxInputDelay = 30
)

// Kind tells the two session variants apart.
type Kind int

const (
	KindLocal Kind = iota
	KindOnline
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "local":
		return KindLocal, nil
	case "online":
		return KindOnline, nil
	default:
		return 0, fmt.Errorf("session: unknown kind %q", s)
	}
}

// ParticipantKind says where a participant's input comes from.
type ParticipantKind int

const (
	LocalParticipant ParticipantKind = iota
	RemoteParticipant
)

// Participant is one roster entry. Address is an opaque transport address
// and is only meaningful for remote participants.
type Participant struct {
	Handle  sim.Handle
	Kind    ParticipantKind
	Address string
}

// PeerRoster builds a roster from peer addresses listed in handle order.
// The entry at local is the local participant; the rest are remote.
func PeerRoster(local sim.Handle, peers []string) []Participant {
	roster := make([]Participant, len(peers))
	for i, addr := range peers {
		h := sim.Handle(i)
		if h == local {
			roster[i] = Participant{Handle: h, Kind: LocalParticipant}
			continue
		}
		roster[i] = Participant{Handle: h, Kind: RemoteParticipant, Address: addr}
	}
	return roster
}

// LocalConfig configures a local sync-test session.
type LocalConfig struct {
	NumParticipants int
	InputDelay      int
	CheckDistance   int
	FPS             int
}

// DefaultLocalConfig returns the configuration used by the self test.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		NumParticipants: sim.MaxPlayers,
		InputDelay:      0,
		CheckDistance:   2,
		FPS:             sim.DefaultFPS,
	}
}

// Validate checks the configuration.
func (c LocalConfig) Validate() error {
	if c.FPS <= 0 {
		return invalid("fps", "must be positive, got %d", c.FPS)
	}
	if c.NumParticipants < 1 || c.NumParticipants > sim.MaxPlayers {
		return invalid("num_participants", "must be in [1, %d], got %d", sim.MaxPlayers, c.NumParticipants)
	}
	if c.CheckDistance < 1 || c.CheckDistance > MaxWindow {
		return invalid("check_distance", "must be in [1, %d], got %d", MaxWindow, c.CheckDistance)
	}
	if c.InputDelay < 0 || c.InputDelay > MaxInputDelay {
		return invalid("input_delay", "must be in [0, %d], got %d", MaxInputDelay, c.InputDelay)
	}
	return nil
}

// OnlineConfig configures a peer-to-peer session.
type OnlineConfig struct {
	// NumParticipants, when set, must match the roster size.
	NumParticipants     int
	Roster              []Participant
	InputDelay          int
	MaxPredictionWindow int
	FPS                 int
}

// Validate checks the configuration and the roster.
func (c OnlineConfig) Validate() error {
	if c.FPS <= 0 {
		return invalid("fps", "must be positive, got %d", c.FPS)
	}
	if c.MaxPredictionWindow < 1 || c.MaxPredictionWindow > MaxWindow {
		return invalid("max_prediction_window", "must be in [1, %d], got %d", MaxWindow, c.MaxPredictionWindow)
	}
	if c.InputDelay < 0 || c.InputDelay > MaxInputDelay {
		return invalid("input_delay", "must be in [0, %d], got %d", MaxInputDelay, c.InputDelay)
	}

	n := len(c.Roster)
	if n < 1 || n > sim.MaxPlayers {
		return invalid("roster", "must have between 1 and %d participants, got %d", sim.MaxPlayers, n)
	}
	if c.NumParticipants != 0 && c.NumParticipants != n {
		return invalid("num_participants", "declares %d participants but the roster has %d", c.NumParticipants, n)
	}

	seen := make([]bool, n)
	var locals, remotes int
	for _, p := range c.Roster {
		if p.Handle < 0 || int(p.Handle) >= n {
			return invalid("roster", "handle %d outside [0, %d)", p.Handle, n)
		}
		if seen[p.Handle] {
			return invalid("roster", "duplicate handle %d", p.Handle)
		}
		seen[p.Handle] = true

		switch p.Kind {
		case LocalParticipant:
			locals++
		case RemoteParticipant:
			if p.Address == "" {
				return invalid("roster", "remote handle %d has no address", p.Handle)
			}
			remotes++
		default:
			return invalid("roster", "handle %d has unknown kind %d", p.Handle, p.Kind)
		}
	}
	if locals == 0 {
		return invalid("roster", "no local participant")
	}
	if remotes == 0 {
		return invalid("roster", "no remote participant")
	}
	return nil
}

// ConfirmedFrame is a tick whose inputs are final for every participant,
// with the digest the tick produced.
type ConfirmedFrame struct {
	Tick   int64         `msgpack:"t"`
	Frames []input.Frame `msgpack:"f"`
	Digest uint64        `msgpack:"d"`
}

// FrameResult is the outcome of one Advance call.
type FrameResult struct {
	// Tick is the tick that was simulated, or the tick that was skipped.
	Tick int64
	// Skipped is set when the tick did not run because of a prediction stall.
	// The local input passed to that call is dropped.
	Skipped  bool
	Frames   []input.Frame
	Events   []sim.Event
	Checksum checksum.Snapshot
	// Confirmed lists the ticks that became final during this call.
	Confirmed   []ConfirmedFrame
	Diagnostics []Diagnostic
}

// variant is implemented by the local and online session kinds.
type variant interface {
	kind() Kind
	advance(local map[sim.Handle]input.Bits) (FrameResult, error)
	world() *sim.World
	stats() Stats
	shutdown()
}

// Stats are running counters of a session.
type Stats struct {
	Ticks       int64
	Skipped     int64
	Rollbacks   int
	Resimulated int
	Desyncs     int
}

// Session is one running session. Methods are safe for concurrent use
// but Advance is expected to be called from a single driver.
type Session struct {
	id      string
	logger  *log.Logger
	locals  []sim.Handle
	variant variant

	mu       sync.Mutex
	closed   bool
	record   Record
	recorder Recorder
	skipped  int64
	final    Stats
}

func newSession(kind Kind, participants, fps int, locals []sim.Handle, logger *log.Logger, recorder Recorder) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		logger:   logger.With("session", id[:8]),
		locals:   locals,
		recorder: recorder,
		record: Record{
			ID:           id,
			Kind:         kind,
			Participants: participants,
			FPS:          fps,
			StartedAt:    time.Now(),
		},
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Kind reports whether the session is local or online.
func (s *Session) Kind() Kind {
	return s.variant.kind()
}

// LocalHandles returns the handles whose input this peer provides.
func (s *Session) LocalHandles() []sim.Handle {
	return slices.Clone(s.locals)
}

// World returns the current simulation state, or nil after teardown.
// Callers must not mutate it.
func (s *Session) World() *sim.World {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.variant.world()
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.final
	if !s.closed {
		st = s.variant.stats()
	}
	st.Skipped = s.skipped
	st.Desyncs = len(s.record.Desyncs)
	return st
}

// Closed reports whether the session was torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Record returns a copy of what the session has recorded so far.
func (s *Session) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.clone()
}

// Advance runs one tick with the local participants' input. Handles not
// present in local are treated as neutral. A fatal error tears the session
// down before returning.
func (s *Session) Advance(local map[sim.Handle]input.Bits) (FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return FrameResult{}, ErrClosed
	}
	for h := range local {
		if !slices.Contains(s.locals, h) {
			return FrameResult{}, fmt.Errorf("%w: %d", ErrNotLocal, h)
		}
	}

	res, err := s.variant.advance(local)
	if err != nil {
		s.logger.Error("fatal session error", "error", err)
		s.teardownLocked("error: " + err.Error())
		return FrameResult{}, err
	}

	if res.Skipped {
		s.skipped++
	}
	s.record.Frames = append(s.record.Frames, res.Confirmed...)
	for _, d := range res.Diagnostics {
		switch d := d.(type) {
		case DesyncDetected:
			s.record.Desyncs = append(s.record.Desyncs, d)
			s.logger.Warn("desync detected", "tick", d.Tick, "peer", d.Peer,
				"local", fmt.Sprintf("%016x", d.Local), "remote", fmt.Sprintf("%016x", d.Remote))
		case ParticipantDisconnected:
			s.logger.Info("participant disconnected", "handle", d.Handle, "address", d.Address, "tick", d.Tick)
		case PredictionStalled:
			s.logger.Debug("prediction stalled", "tick", d.Tick, "handle", d.Handle)
		}
	}
	return res, nil
}

// Teardown releases the session. Safe to call multiple times.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked("teardown")
}

func (s *Session) teardownLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	st := s.variant.stats()
	s.final = st
	s.variant.shutdown()

	s.record.EndReason = reason
	s.record.EndedAt = time.Now()
	s.record.Ticks = st.Ticks
	if n := len(s.record.Frames); n > 0 {
		last := s.record.Frames[n-1]
		s.record.FinalTick = last.Tick
		s.record.FinalDigest = last.Digest
	} else {
		s.record.FinalTick = -1
	}
	s.logger.Info("session ended", "reason", reason, "ticks", st.Ticks, "rollbacks", st.Rollbacks, "desyncs", len(s.record.Desyncs))

	if s.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.SaveSession(ctx, s.record.clone()); err != nil {
			s.logger.Error("failed to save session", "error", err)
		}
	}
}

// delayLine holds local inputs until the tick they were scheduled for.
type delayLine struct {
	handles []sim.Handle
	queue   map[sim.Handle][]input.Bits
}

// newDelayLine starts every handle with delay neutral inputs.
func newDelayLine(handles []sim.Handle, delay int) *delayLine {
	d := &delayLine{
		handles: handles,
		queue:   make(map[sim.Handle][]input.Bits, len(handles)),
	}
	for _, h := range handles {
		d.queue[h] = make([]input.Bits, delay, delay+1)
	}
	return d
}

// push appends this call's input; missing handles get neutral.
func (d *delayLine) push(local map[sim.Handle]input.Bits) {
	for _, h := range d.handles {
		d.queue[h] = append(d.queue[h], local[h])
	}
}

// pop removes the oldest input of every handle.
func (d *delayLine) pop() map[sim.Handle]input.Bits {
	out := make(map[sim.Handle]input.Bits, len(d.handles))
	for _, h := range d.handles {
		q := d.queue[h]
		out[h] = q[0]
		d.queue[h] = q[1:]
	}
	return out
}
