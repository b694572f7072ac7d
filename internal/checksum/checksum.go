// Package checksum computes per-tick world digests and keeps a bounded
// history of them for comparison against remote peers.
package checksum

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/vovakirdan/bomberboy/internal/sim"
)

// Snapshot is the digest of the world after simulating Tick.
type Snapshot struct {
	Tick   int64
	Digest uint64
}

// String formats the snapshot for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf("%d:%016x", s.Tick, s.Digest)
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

// Compute hashes the canonical encoding of the world.
func Compute(w *sim.World) uint64 {
	bp := bufPool.Get().(*[]byte) //nolint:errcheck // pool only holds *[]byte
	buf := w.AppendState((*bp)[:0])
	sum := xxhash.Sum64(buf)
	*bp = buf
	bufPool.Put(bp)
	return sum
}

// Mismatch describes two digests that disagree for the same tick.
type Mismatch struct {
	Tick   int64
	Local  uint64
	Remote uint64
}

// Error implements error.
func (m *Mismatch) Error() string {
	return fmt.Sprintf("checksum: tick %d local %016x remote %016x", m.Tick, m.Local, m.Remote)
}

// Registry holds the most recent snapshots keyed by tick.
// Recording a tick again overwrites it, which is how re-simulation
// replaces stale digests. Not safe for concurrent use.
type Registry struct {
	ring   []Snapshot
	filled []bool
	latest int64
}

// NewRegistry creates a registry that remembers the last capacity ticks.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{
		ring:   make([]Snapshot, capacity),
		filled: make([]bool, capacity),
		latest: -1,
	}
}

// Capacity returns how many ticks are retained.
func (r *Registry) Capacity() int {
	return len(r.ring)
}

func (r *Registry) index(tick int64) int {
	return int(tick % int64(len(r.ring)))
}

// Record stores a snapshot, replacing any older tick in the same slot.
func (r *Registry) Record(s Snapshot) {
	if s.Tick < 0 {
		return
	}
	i := r.index(s.Tick)
	r.ring[i] = s
	r.filled[i] = true
	if s.Tick > r.latest {
		r.latest = s.Tick
	}
}

// Get returns the snapshot for tick if it is still retained.
func (r *Registry) Get(tick int64) (Snapshot, bool) {
	if tick < 0 {
		return Snapshot{}, false
	}
	i := r.index(tick)
	if !r.filled[i] || r.ring[i].Tick != tick {
		return Snapshot{}, false
	}
	return r.ring[i], true
}

// Latest returns the snapshot of the highest recorded tick.
func (r *Registry) Latest() (Snapshot, bool) {
	return r.Get(r.latest)
}

// Range returns the retained snapshots for ticks in [from, to], ascending.
func (r *Registry) Range(from, to int64) []Snapshot {
	var out []Snapshot
	for t := from; t <= to; t++ {
		if s, ok := r.Get(t); ok {
			out = append(out, s)
		}
	}
	return out
}

// Compare checks a remote snapshot against the local one for the same tick.
// It returns ok=false when the tick is no longer (or not yet) retained.
func (r *Registry) Compare(remote Snapshot) (mismatch *Mismatch, ok bool) {
	local, found := r.Get(remote.Tick)
	if !found {
		return nil, false
	}
	if local.Digest != remote.Digest {
		return &Mismatch{Tick: remote.Tick, Local: local.Digest, Remote: remote.Digest}, true
	}
	return nil, true
}

// Reset forgets every snapshot.
func (r *Registry) Reset() {
	clear(r.ring)
	clear(r.filled)
	r.latest = -1
}
