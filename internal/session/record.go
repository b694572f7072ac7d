package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/vovakirdan/bomberboy/internal/checksum"
	"github.com/vovakirdan/bomberboy/internal/rollback"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

// Recorder persists finished sessions.
type Recorder interface {
	SaveSession(ctx context.Context, rec Record) error
}

// Record is the confirmed history of a session.
type Record struct {
	ID           string
	Kind         Kind
	Participants int
	FPS          int
	StartedAt    time.Time
	EndedAt      time.Time
	EndReason    string
	Ticks        int64
	FinalTick    int64
	FinalDigest  uint64
	Frames       []ConfirmedFrame
	Desyncs      []DesyncDetected
}

func (r Record) clone() Record {
	r.Frames = slices.Clone(r.Frames)
	r.Desyncs = slices.Clone(r.Desyncs)
	return r
}

// Replay re-simulates the recorded inputs from the round-start state and
// checks every tick's digest against the recording. It returns the last
// replayed snapshot. A digest that differs is reported as a
// *checksum.Mismatch.
func Replay(rec Record) (checksum.Snapshot, error) {
	if rec.FPS <= 0 {
		return checksum.Snapshot{}, invalid("fps", "must be positive, got %d", rec.FPS)
	}
	sched, err := rollback.New(rollback.Config{
		NumPlayers: rec.Participants,
		Rules:      sim.Rules{FPS: rec.FPS},
		Window:     1,
	})
	if err != nil {
		return checksum.Snapshot{}, fmt.Errorf("session: replay: %w", err)
	}

	last := checksum.Snapshot{Tick: -1}
	for _, cf := range rec.Frames {
		if cf.Tick != sched.Frame() {
			return last, fmt.Errorf("session: replay: recording jumps from tick %d to %d", sched.Frame(), cf.Tick)
		}
		res, err := sched.Advance(cf.Frames)
		if err != nil {
			return last, fmt.Errorf("session: replay: %w", err)
		}
		if res.Snapshot.Digest != cf.Digest {
			return last, fmt.Errorf("session: replay: %w", &checksum.Mismatch{
				Tick:   cf.Tick,
				Local:  res.Snapshot.Digest,
				Remote: cf.Digest,
			})
		}
		last = res.Snapshot
	}
	return last, nil
}
