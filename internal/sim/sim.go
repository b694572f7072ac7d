// Package sim holds the deterministic bomber simulation.
//
// Every system here is a pure transition over a *World: no I/O, no clock
// reads, no randomness. The same inputs applied to the same world always
// produce the same world, which is what rollback depends on.
package sim

import (
	"time"

	"github.com/vovakirdan/bomberboy/internal/input"
)

// Handle is an alias to input.Handle for convenience.
type Handle = input.Handle

// EntityID addresses bombs and explosions in their arenas.
// IDs are allocated in increasing order and never reused within a world.
type EntityID uint32

// Simulation constants.
const (
	MaxPlayers  = 2
	BagCapacity = 9

	MoveSpeed       float32 = 0.13
	ArenaHalfExtent float32 = 5000.0/2 - 0.5

	FuseDuration           = 4 * time.Second
	ExplosionFrameDuration = 50 * time.Millisecond
	ExplosionFrames        = 16

	DefaultFPS = 60
)

// Rules are the fixed parameters a world is simulated under.
// They never change during a session.
type Rules struct {
	FPS int
}

// DefaultRules returns rules at the default tick rate.
func DefaultRules() Rules {
	return Rules{FPS: DefaultFPS}
}

// TickDelta is the simulated time advanced by one tick.
func (r Rules) TickDelta() time.Duration {
	if r.FPS <= 0 {
		return time.Second / DefaultFPS
	}
	return time.Second / time.Duration(r.FPS)
}

// FuseTicks is the fuse length in ticks (240 at 60 Hz).
func (r Rules) FuseTicks() uint32 {
	fps := r.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	return uint32(FuseDuration * time.Duration(fps) / time.Second) //nolint:gosec // fps is positive
}

// Vec2 is a position in arena units. Origin is the arena center, +Y is up.
type Vec2 struct {
	X, Y float32
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale returns v*s.
func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Clamp restricts both components to [-limit, limit].
func (v Vec2) Clamp(limit float32) Vec2 {
	return Vec2{X: clamp(v.X, -limit, limit), Y: clamp(v.Y, -limit, limit)}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// SlotKind tags the state of a bomb bag slot.
type SlotKind uint8

const (
	// SlotEmpty can be armed.
	SlotEmpty SlotKind = iota
	// SlotStocked is the round-start stock: occupied, no fuse, never detonates.
	SlotStocked
	// SlotArmed holds a live bomb with a running fuse.
	SlotArmed
)

// String returns a human-readable name for the slot kind.
func (k SlotKind) String() string {
	switch k {
	case SlotEmpty:
		return "empty"
	case SlotStocked:
		return "stocked"
	case SlotArmed:
		return "armed"
	default:
		return "unknown"
	}
}

// Slot is one bomb bag position.
// Bomb and Fuse are meaningful only when Kind is SlotArmed.
type Slot struct {
	Kind SlotKind
	Bomb EntityID
	Fuse uint32 // ticks remaining
}

// BombBag is a fixed-capacity ordered set of slots.
type BombBag [BagCapacity]Slot

// NewBombBag returns a bag with the first slot stocked.
func NewBombBag() BombBag {
	var b BombBag
	b[0] = Slot{Kind: SlotStocked}
	return b
}

// Occupied counts non-empty slots.
func (b BombBag) Occupied() int {
	n := 0
	for i := range b {
		if b[i].Kind != SlotEmpty {
			n++
		}
	}
	return n
}

// Armed counts slots holding a live bomb.
func (b BombBag) Armed() int {
	n := 0
	for i := range b {
		if b[i].Kind == SlotArmed {
			n++
		}
	}
	return n
}

// firstEmpty returns the index of the first empty slot, or -1.
func (b BombBag) firstEmpty() int {
	for i := range b {
		if b[i].Kind == SlotEmpty {
			return i
		}
	}
	return -1
}

// Player is the rollback-tracked state of one participant.
type Player struct {
	Handle Handle
	Pos    Vec2
	Bag    BombBag
	// FireHeld is the previous tick's resolved fire bit, for edge detection.
	FireHeld bool
}

// Bomb is a live bomb in the arena. Its fuse lives in the owner's slot.
type Bomb struct {
	ID      EntityID
	Owner   Handle
	Slot    uint8
	Pos     Vec2
	ArmedAt int64
}

// Explosion is a transient animated entity.
type Explosion struct {
	ID        EntityID
	Pos       Vec2
	Frame     uint8
	Elapsed   time.Duration // time accumulated toward the next frame
	SpawnedAt int64
}

// ExplosionRequest asks the spawn system for an explosion at Pos.
type ExplosionRequest struct {
	Pos   Vec2
	Owner Handle
}
