package sim

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/bomberboy/internal/input"
)

// ErrInputMismatch is returned when Step does not receive exactly one frame
// per participant.
var ErrInputMismatch = errors.New("sim: need exactly one input frame per participant")

// Event is emitted by systems for presentation. Events never feed back
// into simulation state.
type Event interface {
	simEvent()
}

// BombArmed is emitted when a slot transitions to armed.
type BombArmed struct {
	Tick  int64
	Bomb  EntityID
	Owner Handle
	Slot  int
	Pos   Vec2
}

func (BombArmed) simEvent() {}

// BombDetonated is emitted when a fuse reaches zero.
type BombDetonated struct {
	Tick  int64
	Bomb  EntityID
	Owner Handle
	Slot  int
	Pos   Vec2
}

func (BombDetonated) simEvent() {}

// ExplosionSpawned is emitted when an explosion entity is created.
type ExplosionSpawned struct {
	Tick      int64
	Explosion EntityID
	Pos       Vec2
}

func (ExplosionSpawned) simEvent() {}

// ExplosionFinished is emitted when an explosion is removed.
type ExplosionFinished struct {
	Tick      int64
	Explosion EntityID
}

func (ExplosionFinished) simEvent() {}

// Step simulates tick w.Frame() with one input frame per participant and
// advances the world to the next tick.
//
// Systems run in this order, always:
//
//	movement -> bomb arming -> fuse countdown -> explosion spawn -> explosion animation
//
// Entities created during a tick are not advanced by later systems in the
// same tick: a bomb armed at tick T is first decremented at T+1.
func Step(w *World, frames []input.Frame) ([]Event, error) {
	ordered, err := orderFrames(frames, len(w.players))
	if err != nil {
		return nil, err
	}

	var events []Event
	Movement(w, ordered)
	events = BombArming(w, ordered, events)
	var requests []ExplosionRequest
	requests, events = FuseCountdown(w, events)
	events = ExplosionSpawn(w, requests, events)
	events = ExplosionAnimation(w, events)

	w.frame++
	return events, nil
}

// orderFrames indexes frames by handle and checks that each handle
// appears exactly once.
func orderFrames(frames []input.Frame, n int) ([]input.Frame, error) {
	if len(frames) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputMismatch, len(frames), n)
	}
	ordered := make([]input.Frame, n)
	seen := make([]bool, n)
	for _, f := range frames {
		if f.Handle < 0 || int(f.Handle) >= n || seen[f.Handle] {
			return nil, fmt.Errorf("%w: bad handle %d", ErrInputMismatch, f.Handle)
		}
		seen[f.Handle] = true
		ordered[f.Handle] = f
	}
	return ordered, nil
}
