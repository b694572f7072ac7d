package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color is a foreground color for a canvas cell.
type Color uint8

const (
	ColorDefault Color = iota
	ColorDim
	ColorGrid
	ColorBorder
	ColorPlayer1
	ColorPlayer2
	ColorFuse
	ColorFuseLate
	ColorBlast
	ColorBlastFade
)

// colorStyles maps canvas colors to lipgloss styles.
var colorStyles = map[Color]lipgloss.Style{
	ColorDefault:   lipgloss.NewStyle(),
	ColorDim:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	ColorGrid:      lipgloss.NewStyle().Foreground(lipgloss.Color("237")),
	ColorBorder:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	ColorPlayer1:   lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
	ColorPlayer2:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
	ColorFuse:      lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	ColorFuseLate:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	ColorBlast:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	ColorBlastFade: lipgloss.NewStyle().Foreground(lipgloss.Color("94")),
}

// Cell is one character of the canvas.
type Cell struct {
	Rune  rune
	Color Color
}

var blank = Cell{Rune: ' '}

// Canvas is a 2D buffer of colored cells. Drawing never touches the
// terminal; Render turns the buffer into a styled string.
type Canvas struct {
	width  int
	height int
	cells  []Cell
}

// NewCanvas creates a blank canvas.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.Resize(width, height)
	return c
}

func (c *Canvas) Width() int {
	return c.width
}

func (c *Canvas) Height() int {
	return c.height
}

// Resize changes the canvas dimensions and clears it.
func (c *Canvas) Resize(width, height int) {
	c.width = max(width, 0)
	c.height = max(height, 0)
	c.cells = make([]Cell, c.width*c.height)
	c.Clear()
}

// Clear fills the canvas with blanks.
func (c *Canvas) Clear() {
	for i := range c.cells {
		c.cells[i] = blank
	}
}

// Set places a rune at (x, y). Out-of-bounds coordinates are ignored.
func (c *Canvas) Set(x, y int, r rune, color Color) {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return
	}
	c.cells[y*c.width+x] = Cell{Rune: r, Color: color}
}

// Get returns the cell at (x, y), or a blank when out of bounds.
func (c *Canvas) Get(x, y int) Cell {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return blank
	}
	return c.cells[y*c.width+x]
}

// DrawText writes text horizontally starting at (x, y), clipped to the canvas.
func (c *Canvas) DrawText(x, y int, text string, color Color) {
	i := 0
	for _, r := range text {
		c.Set(x+i, y, r, color)
		i++
	}
}

// DrawBox outlines the rectangle with box-drawing characters.
func (c *Canvas) DrawBox(x, y, w, h int, color Color) {
	if w < 2 || h < 2 {
		return
	}
	right, bottom := x+w-1, y+h-1
	c.Set(x, y, '┌', color)
	c.Set(right, y, '┐', color)
	c.Set(x, bottom, '└', color)
	c.Set(right, bottom, '┘', color)
	for i := x + 1; i < right; i++ {
		c.Set(i, y, '─', color)
		c.Set(i, bottom, '─', color)
	}
	for j := y + 1; j < bottom; j++ {
		c.Set(x, j, '│', color)
		c.Set(right, j, '│', color)
	}
}

// String returns the canvas without styling, one line per row.
func (c *Canvas) String() string {
	var sb strings.Builder
	sb.Grow(c.width*c.height + c.height)
	for y := range c.height {
		if y > 0 {
			sb.WriteRune('\n')
		}
		for x := range c.width {
			sb.WriteRune(c.cells[y*c.width+x].Rune)
		}
	}
	return sb.String()
}

// Render converts the canvas to a styled string.
// Adjacent cells with the same color share one style run.
func (c *Canvas) Render() string {
	var sb strings.Builder
	sb.Grow(c.width*c.height*2 + c.height)

	for y := range c.height {
		if y > 0 {
			sb.WriteRune('\n')
		}

		x := 0
		for x < c.width {
			color := c.Get(x, y).Color

			var run strings.Builder
			for x < c.width {
				cell := c.Get(x, y)
				if cell.Color != color {
					break
				}
				run.WriteRune(cell.Rune)
				x++
			}

			style, ok := colorStyles[color]
			if !ok {
				style = colorStyles[ColorDefault]
			}
			sb.WriteString(style.Render(run.String()))
		}
	}
	return sb.String()
}
