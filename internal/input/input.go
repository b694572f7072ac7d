// Package input defines the per-tick input value exchanged between peers
// and the collector that samples local controls into it.
// It contains no external dependencies to keep the simulation pure.
package input

import "strings"

// Handle identifies a participant within a session.
// Handles are dense in [0, n) and stable for the session lifetime.
type Handle int

// Bits is the compact per-tick input of one participant.
// Direction and fire are independent bits; any combination is allowed.
type Bits uint8

const (
	Up Bits = 1 << iota
	Down
	Left
	Right
	Fire
)

// Neutral is the all-zero input.
const Neutral Bits = 0

// Has reports whether every bit of mask is set.
func (b Bits) Has(mask Bits) bool {
	return b&mask == mask && mask != 0
}

// String renders the set bits, e.g. "up+fire". Neutral input is "-".
func (b Bits) String() string {
	if b == Neutral {
		return "-"
	}
	names := make([]string, 0, 5)
	for _, n := range []struct {
		bit  Bits
		name string
	}{
		{Up, "up"},
		{Down, "down"},
		{Left, "left"},
		{Right, "right"},
		{Fire, "fire"},
	} {
		if b&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "+")
}

// Status describes how trustworthy a participant's input is for a tick.
type Status uint8

const (
	Confirmed    Status = iota // Actual input of the participant
	Predicted                  // Placeholder until the real input arrives
	Disconnected               // Participant left; input is neutral
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Predicted:
		return "predicted"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Frame is the input of one participant for one tick.
type Frame struct {
	Handle Handle
	Bits   Bits
	Status Status
}

// Resolved returns the bits the simulation acts on.
// Disconnected participants always resolve to neutral input.
func (f Frame) Resolved() Bits {
	if f.Status == Disconnected {
		return Neutral
	}
	return f.Bits
}
