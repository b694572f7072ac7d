package sim

import "github.com/vovakirdan/bomberboy/internal/input"

// direction resolves input bits into a unit step along a single axis.
// Opposing bits cancel. When both axes are set the larger magnitude wins
// and ties keep the vertical axis, so movement is never diagonal.
func direction(b input.Bits) Vec2 {
	var d Vec2
	if b&input.Up != 0 {
		d.Y++
	}
	if b&input.Down != 0 {
		d.Y--
	}
	if b&input.Right != 0 {
		d.X++
	}
	if b&input.Left != 0 {
		d.X--
	}
	if d.X != 0 && d.Y != 0 {
		if abs32(d.X) > abs32(d.Y) {
			d.Y = 0
		} else {
			d.X = 0
		}
	}
	return d
}

// Movement moves every player one step and clamps it into the arena.
func Movement(w *World, frames []input.Frame) {
	for i := range w.players {
		p := &w.players[i]
		d := direction(frames[i].Resolved())
		if d == (Vec2{}) {
			continue
		}
		p.Pos = p.Pos.Add(d.Scale(MoveSpeed)).Clamp(ArenaHalfExtent)
	}
}

// BombArming arms the first empty slot of every player whose confirmed
// input presses fire this tick. Holding fire does not re-arm.
func BombArming(w *World, frames []input.Frame, events []Event) []Event {
	for i := range w.players {
		p := &w.players[i]
		f := frames[i]

		fire := f.Resolved()&input.Fire != 0
		pressed := fire && !p.FireHeld
		p.FireHeld = fire

		if !pressed || f.Status != input.Confirmed {
			continue
		}
		slot := p.Bag.firstEmpty()
		if slot < 0 {
			continue
		}

		id := w.allocID()
		p.Bag[slot] = Slot{Kind: SlotArmed, Bomb: id, Fuse: w.rules.FuseTicks()}
		w.bombs = append(w.bombs, Bomb{
			ID:      id,
			Owner:   p.Handle,
			Slot:    uint8(slot), //nolint:gosec // slot < BagCapacity
			Pos:     p.Pos,
			ArmedAt: w.frame,
		})
		events = append(events, BombArmed{Tick: w.frame, Bomb: id, Owner: p.Handle, Slot: slot, Pos: p.Pos})
	}
	return events
}

// FuseCountdown decrements every bomb armed before this tick. A bomb whose
// fuse reaches zero is removed, its slot is released, and an explosion is
// requested at its position.
func FuseCountdown(w *World, events []Event) ([]ExplosionRequest, []Event) {
	var requests []ExplosionRequest
	kept := w.bombs[:0]
	for _, b := range w.bombs {
		if b.ArmedAt == w.frame {
			kept = append(kept, b)
			continue
		}
		slot := &w.players[b.Owner].Bag[b.Slot]
		if slot.Fuse > 0 {
			slot.Fuse--
		}
		if slot.Fuse > 0 {
			kept = append(kept, b)
			continue
		}

		*slot = Slot{}
		requests = append(requests, ExplosionRequest{Pos: b.Pos, Owner: b.Owner})
		events = append(events, BombDetonated{Tick: w.frame, Bomb: b.ID, Owner: b.Owner, Slot: int(b.Slot), Pos: b.Pos})
	}
	w.bombs = kept
	return requests, events
}

// ExplosionSpawn turns this tick's requests into explosion entities.
func ExplosionSpawn(w *World, requests []ExplosionRequest, events []Event) []Event {
	for _, r := range requests {
		id := w.allocID()
		w.explosions = append(w.explosions, Explosion{ID: id, Pos: r.Pos, SpawnedAt: w.frame})
		events = append(events, ExplosionSpawned{Tick: w.frame, Explosion: id, Pos: r.Pos})
	}
	return events
}

// ExplosionAnimation accumulates the tick delta on every explosion spawned
// before this tick and advances one frame per full quantum. An explosion
// reaching the last frame is removed.
func ExplosionAnimation(w *World, events []Event) []Event {
	delta := w.rules.TickDelta()
	kept := w.explosions[:0]
	for _, e := range w.explosions {
		if e.SpawnedAt == w.frame {
			kept = append(kept, e)
			continue
		}
		e.Elapsed += delta
		for e.Elapsed >= ExplosionFrameDuration && e.Frame < ExplosionFrames {
			e.Elapsed -= ExplosionFrameDuration
			e.Frame++
		}
		if e.Frame >= ExplosionFrames {
			events = append(events, ExplosionFinished{Tick: w.frame, Explosion: e.ID})
			continue
		}
		kept = append(kept, e)
	}
	w.explosions = kept
	return events
}
