// Package rollback implements the frame-advance engine: it resolves one
// input per participant each tick, runs the simulation, records the tick's
// checksum, and re-simulates from the earliest corrected tick when a past
// input changes.
package rollback

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vovakirdan/bomberboy/internal/checksum"
	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

var (
	// ErrCorrectionOutsideWindow is fatal for the session: the peer violated
	// the prediction window and the tick can no longer be re-simulated.
	ErrCorrectionOutsideWindow = errors.New("rollback: correction outside prediction window")

	// ErrNotSimulated is returned when correcting a tick that has not run yet.
	ErrNotSimulated = errors.New("rollback: tick not simulated yet")
)

// Config configures a Scheduler.
type Config struct {
	NumPlayers int
	Rules      sim.Rules
	// Window is how many ticks back a correction may reach.
	Window int
}

// Result describes one advanced tick.
type Result struct {
	Tick     int64
	Frames   []input.Frame
	Events   []sim.Event
	Snapshot checksum.Snapshot
	// Resimulated counts ticks replayed before this tick ran.
	Resimulated int
}

// Stats are running counters for diagnostics.
type Stats struct {
	Ticks       int64
	Rollbacks   int
	Resimulated int
}

// Scheduler owns the world and its rollback history.
// It is not safe for concurrent use; the session drives it from one goroutine.
type Scheduler struct {
	world    *sim.World
	states   *Window[*sim.World]     // world before tick t
	inputs   *Window[[]input.Frame]  // frames tick t ran with
	registry *checksum.Registry
	window   int
	dirty    int64 // earliest tick needing re-simulation, -1 if none
	stats    Stats
}

// New creates a scheduler at tick 0 with the round-start world.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Window < 1 {
		return nil, fmt.Errorf("rollback: window must be at least 1, got %d", cfg.Window)
	}
	w, err := sim.NewWorld(cfg.NumPlayers, cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	return &Scheduler{
		world:    w,
		states:   NewWindow[*sim.World](cfg.Window+1, 0),
		inputs:   NewWindow[[]input.Frame](cfg.Window+1, 0),
		registry: checksum.NewRegistry(cfg.Window + 1),
		window:   cfg.Window,
		dirty:    -1,
	}, nil
}

// Frame returns the next tick to simulate.
func (s *Scheduler) Frame() int64 {
	return s.world.Frame()
}

// World returns the current world. Callers must not mutate it.
func (s *Scheduler) World() *sim.World {
	return s.world
}

// Registry returns the checksum history.
func (s *Scheduler) Registry() *checksum.Registry {
	return s.registry
}

// Window returns the correction depth.
func (s *Scheduler) Window() int {
	return s.window
}

// Stats returns the running counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// Inputs returns the frames tick ran with, if still retained.
func (s *Scheduler) Inputs(tick int64) ([]input.Frame, bool) {
	frames, ok := s.inputs.Get(tick)
	if !ok {
		return nil, false
	}
	return slices.Clone(frames), true
}

// Dirty reports the earliest tick awaiting re-simulation.
func (s *Scheduler) Dirty() (int64, bool) {
	return s.dirty, s.dirty >= 0
}

// Advance re-simulates pending corrections, then simulates the next tick.
func (s *Scheduler) Advance(frames []input.Frame) (Result, error) {
	resimulated, err := s.Resimulate()
	if err != nil {
		return Result{}, err
	}

	tick := s.world.Frame()
	saved := s.world.Clone()
	events, err := sim.Step(s.world, frames)
	if err != nil {
		return Result{}, fmt.Errorf("rollback: tick %d: %w", tick, err)
	}

	row := sortedFrames(frames)
	s.states.Push(saved)
	s.inputs.Push(row)
	snap := s.capture(tick)
	s.stats.Ticks++

	return Result{
		Tick:        tick,
		Frames:      slices.Clone(row),
		Events:      events,
		Snapshot:    snap,
		Resimulated: resimulated,
	}, nil
}

// Correct replaces the input of one participant for an already simulated
// tick. The tick is marked for re-simulation only if the change can alter
// the world.
func (s *Scheduler) Correct(tick int64, f input.Frame) error {
	if err := s.checkCorrectable(tick); err != nil {
		return err
	}
	row, _ := s.inputs.Get(tick)
	if f.Handle < 0 || int(f.Handle) >= len(row) {
		return fmt.Errorf("rollback: correct tick %d: unknown handle %d", tick, f.Handle)
	}

	old := row[f.Handle]
	if old == f {
		return nil
	}
	row[f.Handle] = f
	if affectsWorld(old, f) {
		s.markDirty(tick)
	}
	return nil
}

// MarkDirty forces re-simulation from tick on the next Advance.
func (s *Scheduler) MarkDirty(tick int64) error {
	if err := s.checkCorrectable(tick); err != nil {
		return err
	}
	s.markDirty(tick)
	return nil
}

func (s *Scheduler) markDirty(tick int64) {
	if s.dirty < 0 || tick < s.dirty {
		s.dirty = tick
	}
}

func (s *Scheduler) checkCorrectable(tick int64) error {
	current := s.world.Frame()
	if tick >= current {
		return fmt.Errorf("%w: tick %d, current %d", ErrNotSimulated, tick, current)
	}
	if tick < current-int64(s.window) || !s.states.Contains(tick) {
		return fmt.Errorf("%w: tick %d, current %d, window %d",
			ErrCorrectionOutsideWindow, tick, current, s.window)
	}
	return nil
}

// Resimulate restores the world saved before the earliest dirty tick and
// replays every tick up to the present with the stored inputs, replacing
// their saved states and checksums. It returns the number of replayed ticks.
func (s *Scheduler) Resimulate() (int, error) {
	if s.dirty < 0 {
		return 0, nil
	}
	from := s.dirty
	s.dirty = -1

	current := s.world.Frame()
	saved, ok := s.states.Get(from)
	if !ok {
		return 0, fmt.Errorf("%w: tick %d", ErrCorrectionOutsideWindow, from)
	}
	s.world.CopyFrom(saved)

	for t := from; t < current; t++ {
		if t > from {
			s.states.Set(t, s.world.Clone())
		}
		frames, _ := s.inputs.Get(t)
		if _, err := sim.Step(s.world, frames); err != nil {
			return 0, fmt.Errorf("rollback: resimulate tick %d: %w", t, err)
		}
		s.capture(t)
	}

	n := int(current - from)
	s.stats.Rollbacks++
	s.stats.Resimulated += n
	return n, nil
}

// Reset drops all history and returns to the round-start world.
func (s *Scheduler) Reset() error {
	w, err := sim.NewWorld(s.world.NumPlayers(), s.world.Rules())
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	s.world = w
	s.states.Reset(0)
	s.inputs.Reset(0)
	s.registry.Reset()
	s.dirty = -1
	s.stats = Stats{}
	return nil
}

func (s *Scheduler) capture(tick int64) checksum.Snapshot {
	snap := checksum.Snapshot{Tick: tick, Digest: checksum.Compute(s.world)}
	s.registry.Record(snap)
	return snap
}

// affectsWorld reports whether replacing old with f can change the result
// of the tick. Status only matters to arming, which needs fire.
func affectsWorld(old, f input.Frame) bool {
	if old.Resolved() != f.Resolved() {
		return true
	}
	return old.Status != f.Status && f.Resolved()&input.Fire != 0
}

// sortedFrames copies frames ordered by handle.
func sortedFrames(frames []input.Frame) []input.Frame {
	row := slices.Clone(frames)
	slices.SortFunc(row, func(a, b input.Frame) int {
		return int(a.Handle) - int(b.Handle)
	})
	return row
}
