package tui

import (
	"math"

	"github.com/vovakirdan/bomberboy/internal/sim"
)

// Arena projection. Terminal cells are about twice as tall as wide, so a
// column covers half the distance of a row.
const (
	cellWidth  = 0.5
	cellHeight = 1.0
	gridStep   = 4.0
)

// Camera maps arena positions to canvas cells around a focus point.
type Camera struct {
	Focus  sim.Vec2
	Width  int
	Height int
}

// Project returns the canvas cell of an arena position.
func (cam Camera) Project(p sim.Vec2) (int, int) {
	cx, cy := cam.Width/2, cam.Height/2
	col := cx + int(math.Round(float64(p.X-cam.Focus.X)/cellWidth))
	row := cy - int(math.Round(float64(p.Y-cam.Focus.Y)/cellHeight))
	return col, row
}

// unproject returns the arena position at the center of a cell.
func (cam Camera) unproject(col, row int) (float64, float64) {
	cx, cy := cam.Width/2, cam.Height/2
	x := float64(cam.Focus.X) + float64(col-cx)*cellWidth
	y := float64(cam.Focus.Y) - float64(row-cy)*cellHeight
	return x, y
}

var playerColors = [sim.MaxPlayers]Color{ColorPlayer1, ColorPlayer2}

// DrawWorld renders the arena around the focus player onto c.
func DrawWorld(c *Canvas, w *sim.World, focus sim.Handle) {
	c.Clear()
	if w == nil {
		return
	}

	cam := Camera{Width: c.Width(), Height: c.Height()}
	if p, ok := w.Player(focus); ok {
		cam.Focus = p.Pos
	}

	drawFloor(c, cam)

	fps := w.Rules().FPS
	if fps <= 0 {
		fps = sim.DefaultFPS
	}
	for _, b := range w.Bombs() {
		col, row := cam.Project(b.Pos)
		fuse := uint32(0)
		if owner, ok := w.Player(b.Owner); ok && int(b.Slot) < len(owner.Bag) {
			fuse = owner.Bag[b.Slot].Fuse
		}
		color := ColorFuse
		if fuse <= uint32(fps) {
			color = ColorFuseLate
		}
		c.Set(col, row, '●', color)
		secs := (int(fuse) + fps - 1) / fps
		c.Set(col+1, row, rune('0'+min(secs, 9)), ColorDim)
	}

	for _, e := range w.Explosions() {
		drawExplosion(c, cam, e)
	}

	for _, p := range w.Players() {
		col, row := cam.Project(p.Pos)
		color := ColorDefault
		if int(p.Handle) < len(playerColors) {
			color = playerColors[p.Handle]
		}
		c.Set(col, row, '@', color)
	}
}

func drawFloor(c *Canvas, cam Camera) {
	edge := float64(sim.ArenaHalfExtent)
	for row := range c.Height() {
		for col := range c.Width() {
			x, y := cam.unproject(col, row)
			switch {
			case math.Abs(x) > edge || math.Abs(y) > edge:
				c.Set(col, row, '░', ColorBorder)
			case onGrid(x, cellWidth) && onGrid(y, cellHeight):
				c.Set(col, row, '·', ColorGrid)
			}
		}
	}
}

// onGrid reports whether the cell starting at v contains a grid line.
func onGrid(v, span float64) bool {
	m := math.Mod(v, gridStep)
	if m < 0 {
		m += gridStep
	}
	return m < span
}

// drawExplosion draws a cross that grows with the animation frame.
func drawExplosion(c *Canvas, cam Camera, e sim.Explosion) {
	col, row := cam.Project(e.Pos)
	color := ColorBlast
	if int(e.Frame) >= sim.ExplosionFrames*2/3 {
		color = ColorBlastFade
	}
	reach := 1 + int(e.Frame)/4
	for i := 1; i <= reach; i++ {
		c.Set(col-2*i, row, '─', color)
		c.Set(col+2*i, row, '─', color)
		c.Set(col, row-i, '│', color)
		c.Set(col, row+i, '│', color)
	}
	c.Set(col, row, '✶', color)
}
