package tui

import (
	"testing"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

func TestCameraProject(t *testing.T) {
	cam := Camera{Focus: sim.Vec2{X: 10, Y: -4}, Width: 40, Height: 20}

	tests := []struct {
		name     string
		pos      sim.Vec2
		col, row int
	}{
		{"focus", sim.Vec2{X: 10, Y: -4}, 20, 10},
		{"right", sim.Vec2{X: 11, Y: -4}, 22, 10},
		{"up", sim.Vec2{X: 10, Y: -1}, 20, 7},
		{"down left", sim.Vec2{X: 8, Y: -6}, 16, 12},
	}

	for _, tt := range tests {
		col, row := cam.Project(tt.pos)
		if col != tt.col || row != tt.row {
			t.Errorf("%s: Project(%v) = (%d, %d), expected (%d, %d)", tt.name, tt.pos, col, row, tt.col, tt.row)
		}
	}
}

func step(t *testing.T, w *sim.World, bits ...input.Bits) {
	t.Helper()
	frames := make([]input.Frame, len(bits))
	for i, b := range bits {
		frames[i] = input.Frame{Handle: input.Handle(i), Bits: b, Status: input.Confirmed}
	}
	if _, err := sim.Step(w, frames); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
}

func TestDrawWorld(t *testing.T) {
	w, err := sim.NewWorld(2, sim.DefaultRules())
	if err != nil {
		t.Fatalf("NewWorld() failed: %v", err)
	}
	step(t, w, input.Fire, input.Neutral)
	for range 10 {
		step(t, w, input.Right, input.Up)
	}

	c := NewCanvas(41, 21)
	DrawWorld(c, w, 0)
	cx, cy := 20, 10

	if got := c.Get(cx, cy); got.Rune != '@' || got.Color != ColorPlayer1 {
		t.Errorf("focus cell = %+v, expected player 1", got)
	}
	// The bomb stayed at the origin, 1.3 units left of player 1.
	if got := c.Get(cx-3, cy); got.Rune != '●' {
		t.Errorf("bomb cell = %q", got.Rune)
	}
	if got := c.Get(cx-3, cy-1); got.Rune != '@' || got.Color != ColorPlayer2 {
		t.Errorf("player 2 cell = %+v", got)
	}

	DrawWorld(c, nil, 0)
	if c.Get(cx, cy) != blank {
		t.Error("drawing a nil world should leave the canvas blank")
	}
}

func TestDrawFloorEdge(t *testing.T) {
	c := NewCanvas(10, 3)
	cam := Camera{Focus: sim.Vec2{X: sim.ArenaHalfExtent, Y: 0}, Width: 10, Height: 3}
	drawFloor(c, cam)

	if got := c.Get(9, 1); got.Rune != '░' {
		t.Errorf("cell past the edge = %q, expected wall", got.Rune)
	}
	if got := c.Get(0, 1); got.Rune == '░' {
		t.Error("cell inside the arena drawn as wall")
	}
}
