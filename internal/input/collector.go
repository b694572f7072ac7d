package input

// Control is a physical-agnostic control a player can hold.
type Control int

const (
	ControlUp Control = iota
	ControlDown
	ControlLeft
	ControlRight
	ControlFire
	numControls
)

// controlBits maps each control to its input bit.
var controlBits = [numControls]Bits{
	ControlUp:    Up,
	ControlDown:  Down,
	ControlLeft:  Left,
	ControlRight: Right,
	ControlFire:  Fire,
}

// String returns a human-readable name for the control.
func (c Control) String() string {
	switch c {
	case ControlUp:
		return "Up"
	case ControlDown:
		return "Down"
	case ControlLeft:
		return "Left"
	case ControlRight:
		return "Right"
	case ControlFire:
		return "Fire"
	default:
		return "Unknown"
	}
}

// ControlState is the local device state the collector samples.
type ControlState interface {
	Pressed(c Control) bool
}

// Collect samples a control state into input bits.
func Collect(state ControlState) Bits {
	if state == nil {
		return Neutral
	}
	var b Bits
	for c := ControlUp; c < numControls; c++ {
		if state.Pressed(c) {
			b |= controlBits[c]
		}
	}
	return b
}

// Collector binds a local participant to its control source.
// Sample must be called exactly once per local tick.
type Collector struct {
	handle Handle
	source ControlState
}

// NewCollector creates a collector for the given handle.
func NewCollector(h Handle, source ControlState) *Collector {
	return &Collector{handle: h, source: source}
}

// Handle returns the participant the collector samples for.
func (c *Collector) Handle() Handle {
	return c.handle
}

// Sample reads the current control state.
func (c *Collector) Sample() Bits {
	return Collect(c.source)
}

// ControlSet is a fixed set of held controls.
// The zero value has nothing pressed.
type ControlSet [numControls]bool

// Press marks a control as held.
func (s *ControlSet) Press(c Control) {
	if c >= 0 && c < numControls {
		s[c] = true
	}
}

// Release marks a control as released.
func (s *ControlSet) Release(c Control) {
	if c >= 0 && c < numControls {
		s[c] = false
	}
}

// Reset releases every control.
func (s *ControlSet) Reset() {
	*s = ControlSet{}
}

// Pressed implements ControlState.
func (s *ControlSet) Pressed(c Control) bool {
	if c < 0 || c >= numControls {
		return false
	}
	return s[c]
}

// ControlFromBits is the inverse of Collect for a single bit.
// Returns false if b is not exactly one control bit.
func ControlFromBits(b Bits) (Control, bool) {
	for c, bit := range controlBits {
		if bit == b {
			return Control(c), true
		}
	}
	return 0, false
}
