package sim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vovakirdan/bomberboy/internal/input"
)

// confirmed builds one confirmed frame per handle; missing handles are neutral.
func confirmed(n int, bits map[Handle]input.Bits) []input.Frame {
	frames := make([]input.Frame, n)
	for i := range frames {
		frames[i] = input.Frame{Handle: Handle(i), Bits: bits[Handle(i)], Status: input.Confirmed}
	}
	return frames
}

func mustWorld(t *testing.T, n int, rules Rules) *World {
	t.Helper()
	w, err := NewWorld(n, rules)
	if err != nil {
		t.Fatalf("NewWorld() failed: %v", err)
	}
	return w
}

func mustStep(t *testing.T, w *World, frames []input.Frame) []Event {
	t.Helper()
	events, err := Step(w, frames)
	if err != nil {
		t.Fatalf("Step() failed at tick %d: %v", w.Frame(), err)
	}
	return events
}

func TestNewWorld(t *testing.T) {
	w := mustWorld(t, 2, DefaultRules())

	if w.NumPlayers() != 2 {
		t.Fatalf("NumPlayers() = %d, expected 2", w.NumPlayers())
	}
	for _, p := range w.Players() {
		if p.Pos != (Vec2{}) {
			t.Errorf("player %d starts at %v, expected origin", p.Handle, p.Pos)
		}
		if p.Bag[0].Kind != SlotStocked {
			t.Errorf("player %d slot 0 = %v, expected stocked", p.Handle, p.Bag[0].Kind)
		}
		if p.Bag.Occupied() != 1 || p.Bag.Armed() != 0 {
			t.Errorf("player %d bag occupied=%d armed=%d", p.Handle, p.Bag.Occupied(), p.Bag.Armed())
		}
	}

	if _, err := NewWorld(0, DefaultRules()); err == nil {
		t.Error("NewWorld(0) should fail")
	}
	if _, err := NewWorld(MaxPlayers+1, DefaultRules()); err == nil {
		t.Error("NewWorld(MaxPlayers+1) should fail")
	}
}

func TestRulesFuseTicks(t *testing.T) {
	if got := DefaultRules().FuseTicks(); got != 240 {
		t.Errorf("FuseTicks() at 60 Hz = %d, expected 240", got)
	}
	if got := (Rules{FPS: 30}).FuseTicks(); got != 120 {
		t.Errorf("FuseTicks() at 30 Hz = %d, expected 120", got)
	}
}

func TestMovementNeverDiagonal(t *testing.T) {
	step := MoveSpeed
	tests := []struct {
		name string
		bits input.Bits
		want Vec2
	}{
		{"none", input.Neutral, Vec2{}},
		{"up", input.Up, Vec2{0, step}},
		{"down", input.Down, Vec2{0, -step}},
		{"left", input.Left, Vec2{-step, 0}},
		{"right", input.Right, Vec2{step, 0}},
		{"up right", input.Up | input.Right, Vec2{0, step}},
		{"down left", input.Down | input.Left, Vec2{0, -step}},
		{"up down cancel", input.Up | input.Down, Vec2{}},
		{"left right cancel", input.Left | input.Right, Vec2{}},
		{"up down right", input.Up | input.Down | input.Right, Vec2{step, 0}},
		{"all", input.Up | input.Down | input.Left | input.Right, Vec2{}},
		{"fire does not move", input.Fire, Vec2{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := mustWorld(t, 1, DefaultRules())
			mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: tt.bits}))
			p, _ := w.Player(0)
			if p.Pos != tt.want {
				t.Errorf("position = %v, expected %v", p.Pos, tt.want)
			}
			if p.Pos.X != 0 && p.Pos.Y != 0 {
				t.Errorf("diagonal move %v", p.Pos)
			}
		})
	}
}

func TestMovementStaysInBounds(t *testing.T) {
	starts := []Vec2{
		{ArenaHalfExtent - 0.05, 0},
		{-ArenaHalfExtent + 0.05, 0},
		{0, ArenaHalfExtent},
		{0, -ArenaHalfExtent},
		{ArenaHalfExtent, -ArenaHalfExtent},
	}

	for _, start := range starts {
		w := mustWorld(t, 1, DefaultRules())
		w.players[0].Pos = start
		for tick := 0; tick < 200; tick++ {
			bits := input.Bits(tick % 16)
			mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: bits}))
			p, _ := w.Player(0)
			if p.Pos.X < -ArenaHalfExtent || p.Pos.X > ArenaHalfExtent ||
				p.Pos.Y < -ArenaHalfExtent || p.Pos.Y > ArenaHalfExtent {
				t.Fatalf("start %v tick %d: position %v out of bounds", start, tick, p.Pos)
			}
		}
	}

	w := mustWorld(t, 1, DefaultRules())
	w.players[0].Pos = Vec2{ArenaHalfExtent - 0.05, 0}
	mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Right}))
	if p, _ := w.Player(0); p.Pos.X != ArenaHalfExtent {
		t.Errorf("X = %v, expected clamp to %v", p.Pos.X, ArenaHalfExtent)
	}
}

func TestDisconnectedNeverMoves(t *testing.T) {
	w := mustWorld(t, 2, DefaultRules())
	before, _ := w.Player(1)

	for tick := 0; tick < 500; tick++ {
		frames := []input.Frame{
			{Handle: 0, Bits: input.Up, Status: input.Confirmed},
			{Handle: 1, Bits: input.Bits(tick % 32), Status: input.Disconnected},
		}
		mustStep(t, w, frames)
	}

	after, _ := w.Player(1)
	if after.Pos != before.Pos {
		t.Errorf("disconnected player moved from %v to %v", before.Pos, after.Pos)
	}
	if after.Bag.Armed() != 0 {
		t.Errorf("disconnected player armed %d bombs", after.Bag.Armed())
	}
}

func TestBombLifecycle(t *testing.T) {
	w := mustWorld(t, 2, DefaultRules())

	events := mustStep(t, w, confirmed(2, map[Handle]input.Bits{0: input.Fire}))
	p, _ := w.Player(0)
	if p.Bag.Armed() != 1 {
		t.Fatalf("Armed() = %d after fire, expected 1", p.Bag.Armed())
	}
	if p.Bag[1].Kind != SlotArmed || p.Bag[1].Fuse != 240 {
		t.Fatalf("slot 1 = %+v, expected armed with fuse 240", p.Bag[1])
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event at tick 0, got %d", len(events))
	}
	if armed, ok := events[0].(BombArmed); !ok || armed.Tick != 0 || armed.Slot != 1 {
		t.Errorf("unexpected event %#v", events[0])
	}

	for tick := 1; tick < 240; tick++ {
		events = mustStep(t, w, confirmed(2, nil))
		if len(events) != 0 {
			t.Fatalf("unexpected events at tick %d: %v", tick, events)
		}
	}
	p, _ = w.Player(0)
	if p.Bag[1].Fuse != 1 {
		t.Errorf("fuse before tick 240 = %d, expected 1", p.Bag[1].Fuse)
	}
	if len(w.Bombs()) != 1 {
		t.Fatalf("bomb gone before tick 240")
	}

	events = mustStep(t, w, confirmed(2, nil))
	var detonated, spawned bool
	for _, e := range events {
		switch e := e.(type) {
		case BombDetonated:
			detonated = e.Tick == 240 && e.Slot == 1
		case ExplosionSpawned:
			spawned = e.Tick == 240
		}
	}
	if !detonated || !spawned {
		t.Errorf("tick 240 events = %v, expected detonation and spawn", events)
	}

	p, _ = w.Player(0)
	if p.Bag[1].Kind != SlotEmpty {
		t.Errorf("slot 1 = %v after detonation, expected empty", p.Bag[1].Kind)
	}
	if len(w.Bombs()) != 0 {
		t.Errorf("bombs = %d after detonation, expected 0", len(w.Bombs()))
	}
	if len(w.Explosions()) != 1 {
		t.Errorf("explosions = %d after detonation, expected 1", len(w.Explosions()))
	}
}

func TestExplosionAtBombPosition(t *testing.T) {
	w := mustWorld(t, 1, Rules{FPS: 4})
	w.players[0].Pos = Vec2{10, -3}

	mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Fire}))
	// Fuse is 16 ticks at 4 Hz; the explosion lives a few ticks after that.
	for i := 0; i < 17; i++ {
		mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Left}))
	}

	explosions := w.Explosions()
	if len(explosions) != 1 {
		t.Fatalf("explosions = %d, expected 1", len(explosions))
	}
	if explosions[0].Pos != (Vec2{10, -3}) {
		t.Errorf("explosion at %v, expected bomb position", explosions[0].Pos)
	}
}

func TestArmingEdgeTriggered(t *testing.T) {
	w := mustWorld(t, 1, DefaultRules())

	for i := 0; i < 10; i++ {
		mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Fire}))
	}
	if p, _ := w.Player(0); p.Bag.Armed() != 1 {
		t.Errorf("holding fire armed %d bombs, expected 1", p.Bag.Armed())
	}

	mustStep(t, w, confirmed(1, nil))
	mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Fire}))
	if p, _ := w.Player(0); p.Bag.Armed() != 2 {
		t.Errorf("second press armed %d bombs total, expected 2", p.Bag.Armed())
	}
}

func TestArmingRequiresConfirmed(t *testing.T) {
	w := mustWorld(t, 1, DefaultRules())

	mustStep(t, w, []input.Frame{{Handle: 0, Bits: input.Fire, Status: input.Predicted}})
	if p, _ := w.Player(0); p.Bag.Armed() != 0 {
		t.Errorf("predicted fire armed a bomb")
	}
}

func TestBagCapacity(t *testing.T) {
	w := mustWorld(t, 1, DefaultRules())

	for i := 0; i < 40; i++ {
		bits := input.Neutral
		if i%2 == 0 {
			bits = input.Fire
		}
		mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: bits}))
	}

	p, _ := w.Player(0)
	if p.Bag.Occupied() != BagCapacity {
		t.Errorf("Occupied() = %d, expected %d", p.Bag.Occupied(), BagCapacity)
	}
	if p.Bag.Armed() != BagCapacity-1 {
		t.Errorf("Armed() = %d, expected %d", p.Bag.Armed(), BagCapacity-1)
	}
	if len(w.Bombs()) != BagCapacity-1 {
		t.Errorf("bombs = %d, expected %d", len(w.Bombs()), BagCapacity-1)
	}
}

// spawnExplosion simulates a tick in which one explosion is spawned.
func spawnExplosion(w *World) {
	ExplosionSpawn(w, []ExplosionRequest{{Pos: Vec2{1, 1}}}, nil)
	ExplosionAnimation(w, nil)
	w.frame++
}

func TestExplosionAnimation(t *testing.T) {
	tests := []struct {
		name       string
		fps        int
		lifetimeTk int // animation ticks until removal
	}{
		{"40 Hz quantum every 2 ticks", 40, 32},
		{"60 Hz accumulated remainder", 60, 49},
		{"20 Hz one frame per tick", 20, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := mustWorld(t, 1, Rules{FPS: tt.fps})
			spawnExplosion(w)

			if e := w.Explosions(); len(e) != 1 || e[0].Frame != 0 {
				t.Fatalf("spawn tick advanced the explosion: %+v", e)
			}

			for i := 1; i < tt.lifetimeTk; i++ {
				mustStep(t, w, confirmed(1, nil))
			}
			e := w.Explosions()
			if len(e) != 1 {
				t.Fatalf("explosion removed early")
			}
			if e[0].Frame != ExplosionFrames-1 {
				t.Errorf("Frame = %d before removal, expected %d", e[0].Frame, ExplosionFrames-1)
			}

			events := mustStep(t, w, confirmed(1, nil))
			if len(w.Explosions()) != 0 {
				t.Fatalf("explosion not removed after %d ticks", tt.lifetimeTk)
			}
			if len(events) != 1 {
				t.Fatalf("expected finish event, got %v", events)
			}
			if _, ok := events[0].(ExplosionFinished); !ok {
				t.Errorf("unexpected event %#v", events[0])
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	script := func(tick int) map[Handle]input.Bits {
		bits := map[Handle]input.Bits{
			0: input.Bits(tick*7) & (input.Up | input.Left),
			1: input.Bits(tick*3) & (input.Down | input.Right),
		}
		if tick%50 == 0 {
			bits[0] |= input.Fire
		}
		if tick%70 == 5 {
			bits[1] |= input.Fire
		}
		return bits
	}

	w1 := mustWorld(t, 2, DefaultRules())
	w2 := mustWorld(t, 2, DefaultRules())

	for tick := 0; tick < 600; tick++ {
		mustStep(t, w1, confirmed(2, script(tick)))
		mustStep(t, w2, confirmed(2, script(tick)))
		if !bytes.Equal(w1.AppendState(nil), w2.AppendState(nil)) {
			t.Fatalf("worlds diverged at tick %d", tick)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	w := mustWorld(t, 1, DefaultRules())
	mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Fire}))

	saved := w.Clone()
	want := saved.AppendState(nil)

	for i := 0; i < 300; i++ {
		mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Right}))
	}
	if !bytes.Equal(saved.AppendState(nil), want) {
		t.Fatal("stepping the original mutated its clone")
	}

	w.CopyFrom(saved)
	if !bytes.Equal(w.AppendState(nil), want) {
		t.Error("CopyFrom() did not restore the saved state")
	}
}

func TestStepRejectsBadFrames(t *testing.T) {
	w := mustWorld(t, 2, DefaultRules())

	tests := []struct {
		name   string
		frames []input.Frame
	}{
		{"too few", []input.Frame{{Handle: 0}}},
		{"duplicate", []input.Frame{{Handle: 0}, {Handle: 0}}},
		{"out of range", []input.Frame{{Handle: 0}, {Handle: 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Step(w, tt.frames); !errors.Is(err, ErrInputMismatch) {
				t.Errorf("Step() error = %v, expected ErrInputMismatch", err)
			}
		})
	}
	if w.Frame() != 0 {
		t.Errorf("rejected steps advanced the world to %d", w.Frame())
	}
}

func TestBombBagCounts(t *testing.T) {
	if got := NewBombBag().Occupied(); got != 1 {
		t.Errorf("new bag Occupied() = %d, expected 1", got)
	}
	if got := NewBombBag().Armed(); got != 0 {
		t.Errorf("new bag Armed() = %d, expected 0", got)
	}

	bag := NewBombBag()
	bag[3] = Slot{Kind: SlotArmed, Fuse: 10}
	if bag.Occupied() != 2 || bag.Armed() != 1 || bag.firstEmpty() != 1 {
		t.Errorf("bag occupied=%d armed=%d first empty=%d", bag.Occupied(), bag.Armed(), bag.firstEmpty())
	}

	w := mustWorld(t, 1, DefaultRules())
	mustStep(t, w, confirmed(1, map[Handle]input.Bits{0: input.Fire}))
	if got := w.Players()[0].Bag.Armed(); got != 1 {
		t.Errorf("Armed() through Players() = %d, expected 1", got)
	}
}
