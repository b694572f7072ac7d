package session

import (
	"fmt"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/rollback"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

// localVariant runs every participant on this machine. Each tick is
// confirmed as soon as it runs, then the last CheckDistance ticks are
// rolled back and re-simulated to prove they reproduce their checksums.
type localVariant struct {
	sched *rollback.Scheduler
	line  *delayLine
	n     int
	check int
}

func newLocalVariant(cfg LocalConfig, handles []sim.Handle) (*localVariant, error) {
	sched, err := rollback.New(rollback.Config{
		NumPlayers: cfg.NumParticipants,
		Rules:      sim.Rules{FPS: cfg.FPS},
		Window:     cfg.CheckDistance,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &localVariant{
		sched: sched,
		line:  newDelayLine(handles, cfg.InputDelay),
		n:     cfg.NumParticipants,
		check: cfg.CheckDistance,
	}, nil
}

func (v *localVariant) kind() Kind { return KindLocal }

func (v *localVariant) world() *sim.World { return v.sched.World() }

func (v *localVariant) stats() Stats {
	st := v.sched.Stats()
	return Stats{Ticks: st.Ticks, Rollbacks: st.Rollbacks, Resimulated: st.Resimulated}
}

func (v *localVariant) shutdown() {
	v.sched = nil
	v.line = nil
}

func (v *localVariant) advance(local map[sim.Handle]input.Bits) (FrameResult, error) {
	v.line.push(local)
	bits := v.line.pop()

	frames := make([]input.Frame, v.n)
	for h := range v.n {
		frames[h] = input.Frame{Handle: sim.Handle(h), Bits: bits[sim.Handle(h)], Status: input.Confirmed}
	}

	res, err := v.sched.Advance(frames)
	if err != nil {
		return FrameResult{}, err
	}
	diags, err := v.syncTest(res.Tick)
	if err != nil {
		return FrameResult{}, err
	}

	snap, _ := v.sched.Registry().Get(res.Tick)
	return FrameResult{
		Tick:        res.Tick,
		Frames:      res.Frames,
		Events:      res.Events,
		Checksum:    snap,
		Confirmed:   []ConfirmedFrame{{Tick: res.Tick, Frames: res.Frames, Digest: snap.Digest}},
		Diagnostics: diags,
	}, nil
}

// syncTest rewinds the last check ticks, replays them and compares each
// recomputed digest with the one recorded the first time through.
func (v *localVariant) syncTest(tick int64) ([]Diagnostic, error) {
	if tick < int64(v.check) {
		return nil, nil
	}
	from := tick + 1 - int64(v.check)
	reg := v.sched.Registry()
	first := reg.Range(from, tick)

	if err := v.sched.MarkDirty(from); err != nil {
		return nil, err
	}
	if _, err := v.sched.Resimulate(); err != nil {
		return nil, err
	}

	var diags []Diagnostic
	for _, snap := range first {
		mismatch, ok := reg.Compare(snap)
		if ok && mismatch != nil {
			diags = append(diags, DesyncDetected{
				Tick:   mismatch.Tick,
				Local:  mismatch.Local,
				Remote: mismatch.Remote,
				Peer:   SelfTestPeer,
			})
		}
	}
	return diags, nil
}
