package checksum

import (
	"testing"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

func newWorld(t *testing.T) *sim.World {
	t.Helper()
	w, err := sim.NewWorld(2, sim.DefaultRules())
	if err != nil {
		t.Fatalf("NewWorld() failed: %v", err)
	}
	return w
}

func step(t *testing.T, w *sim.World, b0, b1 input.Bits) {
	t.Helper()
	frames := []input.Frame{
		{Handle: 0, Bits: b0, Status: input.Confirmed},
		{Handle: 1, Bits: b1, Status: input.Confirmed},
	}
	if _, err := sim.Step(w, frames); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
}

func TestComputeStable(t *testing.T) {
	a := newWorld(t)
	b := newWorld(t)

	if Compute(a) != Compute(b) {
		t.Fatal("fresh worlds hash differently")
	}

	step(t, a, input.Up, input.Fire)
	step(t, b, input.Up, input.Fire)
	if Compute(a) != Compute(b) {
		t.Fatal("identical steps hash differently")
	}

	c := a.Clone()
	step(t, a, input.Left, 0)
	step(t, c, input.Right, 0)
	if Compute(a) == Compute(c) {
		t.Error("different positions hash the same")
	}
}

func TestComputeCoversBagState(t *testing.T) {
	a := newWorld(t)
	b := newWorld(t)

	// Same positions, different bags.
	step(t, a, input.Fire, 0)
	step(t, b, 0, 0)
	if Compute(a) == Compute(b) {
		t.Error("armed slot does not affect digest")
	}
}

func TestRegistryRecordGet(t *testing.T) {
	r := NewRegistry(4)

	for tick := int64(0); tick < 6; tick++ {
		r.Record(Snapshot{Tick: tick, Digest: uint64(tick) * 10})
	}

	if _, ok := r.Get(1); ok {
		t.Error("tick 1 should have been evicted")
	}
	s, ok := r.Get(5)
	if !ok || s.Digest != 50 {
		t.Errorf("Get(5) = %v, %v", s, ok)
	}
	if latest, ok := r.Latest(); !ok || latest.Tick != 5 {
		t.Errorf("Latest() = %v, %v", latest, ok)
	}

	got := r.Range(0, 10)
	if len(got) != 4 || got[0].Tick != 2 || got[3].Tick != 5 {
		t.Errorf("Range() = %v, expected ticks 2..5", got)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	r := NewRegistry(8)
	r.Record(Snapshot{Tick: 3, Digest: 1})
	r.Record(Snapshot{Tick: 3, Digest: 2})

	if s, _ := r.Get(3); s.Digest != 2 {
		t.Errorf("re-recorded digest = %d, expected 2", s.Digest)
	}
}

func TestRegistryCompare(t *testing.T) {
	r := NewRegistry(8)
	r.Record(Snapshot{Tick: 7, Digest: 0xabc})

	tests := []struct {
		name     string
		remote   Snapshot
		wantOK   bool
		mismatch bool
	}{
		{"match", Snapshot{Tick: 7, Digest: 0xabc}, true, false},
		{"mismatch", Snapshot{Tick: 7, Digest: 0xdef}, true, true},
		{"unknown tick", Snapshot{Tick: 100, Digest: 0xabc}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.Compare(tt.remote)
			if ok != tt.wantOK {
				t.Errorf("Compare() ok = %v, expected %v", ok, tt.wantOK)
			}
			if (m != nil) != tt.mismatch {
				t.Errorf("Compare() mismatch = %v, expected %v", m, tt.mismatch)
			}
			if m != nil && (m.Local != 0xabc || m.Remote != 0xdef) {
				t.Errorf("mismatch digests = %x/%x", m.Local, m.Remote)
			}
		})
	}
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry(4)
	r.Record(Snapshot{Tick: 0, Digest: 1})
	r.Reset()

	if _, ok := r.Get(0); ok {
		t.Error("Reset() kept snapshots")
	}
	if _, ok := r.Latest(); ok {
		t.Error("Reset() kept latest")
	}
}
