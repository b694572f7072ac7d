package sim

import (
	"fmt"
	"slices"
)

// World is the complete rollback-tracked state of a round.
// It is owned by a single scheduler and passed explicitly into every system.
type World struct {
	rules      Rules
	frame      int64 // next tick to simulate
	nextID     EntityID
	players    []Player
	bombs      []Bomb      // ascending ID
	explosions []Explosion // ascending ID
}

// NewWorld creates the round-start state for n participants.
// Every player starts at the origin with one stocked slot.
func NewWorld(n int, rules Rules) (*World, error) {
	if n <= 0 || n > MaxPlayers {
		return nil, fmt.Errorf("sim: participant count %d out of range [1, %d]", n, MaxPlayers)
	}
	w := &World{
		rules:   rules,
		nextID:  1,
		players: make([]Player, n),
	}
	for i := range w.players {
		w.players[i] = Player{
			Handle: Handle(i),
			Bag:    NewBombBag(),
		}
	}
	return w, nil
}

// Rules returns the rules the world is simulated under.
func (w *World) Rules() Rules {
	return w.rules
}

// Frame returns the next tick to be simulated.
// After simulating tick t, Frame is t+1.
func (w *World) Frame() int64 {
	return w.frame
}

// NumPlayers returns the participant count.
func (w *World) NumPlayers() int {
	return len(w.players)
}

// Player returns a copy of the player with the given handle.
func (w *World) Player(h Handle) (Player, bool) {
	if h < 0 || int(h) >= len(w.players) {
		return Player{}, false
	}
	return w.players[h], true
}

// Players returns a copy of all players ordered by handle.
func (w *World) Players() []Player {
	return slices.Clone(w.players)
}

// Bombs returns a copy of the live bombs ordered by ID.
func (w *World) Bombs() []Bomb {
	return slices.Clone(w.bombs)
}

// Explosions returns a copy of the live explosions ordered by ID.
func (w *World) Explosions() []Explosion {
	return slices.Clone(w.explosions)
}

// Clone returns a deep copy suitable for saving in rollback history.
func (w *World) Clone() *World {
	c := *w
	c.players = slices.Clone(w.players)
	c.bombs = slices.Clone(w.bombs)
	c.explosions = slices.Clone(w.explosions)
	return &c
}

// CopyFrom overwrites w with the state of src, reusing w's storage.
func (w *World) CopyFrom(src *World) {
	w.rules = src.rules
	w.frame = src.frame
	w.nextID = src.nextID
	w.players = append(w.players[:0], src.players...)
	w.bombs = append(w.bombs[:0], src.bombs...)
	w.explosions = append(w.explosions[:0], src.explosions...)
}

func (w *World) allocID() EntityID {
	id := w.nextID
	w.nextID++
	return id
}
