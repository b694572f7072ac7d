package session

import (
	"fmt"

	"github.com/vovakirdan/bomberboy/internal/sim"
)

// Diagnostic is a non-fatal observation reported alongside a tick.
type Diagnostic interface {
	diagnostic()
	String() string
}

// SelfTestPeer is the Peer of desyncs found by a local session's sync test.
const SelfTestPeer = "self-test"

// DesyncDetected reports a tick whose digest differs between two
// computations. The local simulation keeps its own state.
type DesyncDetected struct {
	Tick   int64
	Local  uint64
	Remote uint64
	Peer   string
}

func (DesyncDetected) diagnostic() {}

func (d DesyncDetected) String() string {
	return fmt.Sprintf("desync at tick %d with %s: local %016x remote %016x", d.Tick, d.Peer, d.Local, d.Remote)
}

// PredictionStalled reports a skipped tick: simulating it would predict
// further ahead of Handle's last confirmed input than the window allows.
type PredictionStalled struct {
	Tick   int64
	Handle sim.Handle
}

func (PredictionStalled) diagnostic() {}

func (d PredictionStalled) String() string {
	return fmt.Sprintf("tick %d stalled waiting for handle %d", d.Tick, d.Handle)
}

// ParticipantDisconnected is reported once when a remote participant goes
// away. From Tick on its input resolves to neutral.
type ParticipantDisconnected struct {
	Tick    int64
	Handle  sim.Handle
	Address string
}

func (ParticipantDisconnected) diagnostic() {}

func (d ParticipantDisconnected) String() string {
	return fmt.Sprintf("handle %d (%s) disconnected from tick %d", d.Handle, d.Address, d.Tick)
}

// Resimulated reports a rollback performed before the tick ran.
type Resimulated struct {
	From  int64
	Ticks int
}

func (Resimulated) diagnostic() {}

func (d Resimulated) String() string {
	return fmt.Sprintf("rolled back to tick %d, replayed %d ticks", d.From, d.Ticks)
}
