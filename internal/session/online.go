package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/bomberboy/internal/checksum"
	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/rollback"
	"github.com/vovakirdan/bomberboy/internal/sim"
	"github.com/vovakirdan/bomberboy/internal/transport"
)

const (
	// confirmedHistory is how many confirmed digests are kept for
	// comparison with late checksum reports.
	confirmedHistory = 256

	// maxPendingChecks bounds checksum reports waiting for local confirmation.
	maxPendingChecks = 1024

	goodbyeTimeout = 250 * time.Millisecond
)

// remoteInput tracks one remote participant's input stream.
type remoteInput struct {
	handle  sim.Handle
	address string
	// bits holds confirmed inputs that are not yet simulated, and inputs
	// received ahead of a gap.
	bits map[int64]input.Bits
	// horizon is the last tick for which every input is confirmed.
	horizon int64
	last    input.Bits
	// disconnectedFrom is the first tick resolved as disconnected, -1 while connected.
	disconnectedFrom int64
}

func (r *remoteInput) connected() bool {
	return r.disconnectedFrom < 0
}

// frame resolves the input for tick, predicting past the horizon by
// repeating the last confirmed input.
func (r *remoteInput) frame(tick int64) input.Frame {
	switch {
	case !r.connected() && tick >= r.disconnectedFrom:
		return input.Frame{Handle: r.handle, Status: input.Disconnected}
	case tick <= r.horizon:
		return input.Frame{Handle: r.handle, Bits: r.bits[tick], Status: input.Confirmed}
	default:
		return input.Frame{Handle: r.handle, Bits: r.last, Status: input.Predicted}
	}
}

type remoteCheck struct {
	peer string
	snap checksum.Snapshot
}

// inbound is the queue filled by the peer goroutine and drained at tick
// boundaries. It is the only state shared between the two.
type inbound struct {
	mu      sync.Mutex
	items   []transport.Envelope
	linkErr error
}

func (q *inbound) push(env transport.Envelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()
}

func (q *inbound) fail(err error) {
	q.mu.Lock()
	q.linkErr = err
	q.mu.Unlock()
}

func (q *inbound) drain() ([]transport.Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	err := q.linkErr
	q.linkErr = nil
	return items, err
}

// onlineVariant mixes local and remote participants. Remote input that
// has not arrived is predicted; corrections roll the scheduler back.
type onlineVariant struct {
	sched  *rollback.Scheduler
	line   *delayLine
	tr     transport.Transport
	logger *log.Logger

	n       int
	delay   int
	window  int
	locals  []sim.Handle
	remotes []*remoteInput
	peers   []string // distinct remote addresses, roster order
	gone    map[string]bool

	confirmedThrough int64
	confirmed        *checksum.Registry
	checks           []remoteCheck

	in     *inbound
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newOnlineVariant(cfg OnlineConfig, tr transport.Transport, logger *log.Logger) (*onlineVariant, error) {
	n := len(cfg.Roster)
	sched, err := rollback.New(rollback.Config{
		NumPlayers: n,
		Rules:      sim.Rules{FPS: cfg.FPS},
		Window:     cfg.MaxPredictionWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	roster := slices.Clone(cfg.Roster)
	slices.SortFunc(roster, func(a, b Participant) int { return int(a.Handle) - int(b.Handle) })

	v := &onlineVariant{
		sched:            sched,
		tr:               tr,
		logger:           logger,
		n:                n,
		delay:            cfg.InputDelay,
		window:           cfg.MaxPredictionWindow,
		gone:             make(map[string]bool),
		confirmedThrough: -1,
		confirmed:        checksum.NewRegistry(confirmedHistory),
		in:               &inbound{},
	}
	for _, p := range roster {
		switch p.Kind {
		case LocalParticipant:
			v.locals = append(v.locals, p.Handle)
		case RemoteParticipant:
			v.remotes = append(v.remotes, &remoteInput{
				handle:           p.Handle,
				address:          p.Address,
				bits:             make(map[int64]input.Bits),
				horizon:          -1,
				disconnectedFrom: -1,
			})
			if !slices.Contains(v.peers, p.Address) {
				v.peers = append(v.peers, p.Address)
			}
		}
	}
	v.line = newDelayLine(v.locals, cfg.InputDelay)
	return v, nil
}

// handshake greets every remote address and waits for each to greet back.
// Traffic that arrives early is queued for the first tick.
func (v *onlineVariant) handshake(ctx context.Context) error {
	known := v.tr.Peers()
	for _, addr := range v.peers {
		if !slices.Contains(known, addr) {
			return &ConnectionError{Address: addr, Err: transport.ErrUnknownPeer}
		}
	}

	hello := transport.Message{Kind: transport.KindHello, Handle: int(v.locals[0])}
	for _, addr := range v.peers {
		if err := v.tr.Send(ctx, addr, hello); err != nil {
			return &ConnectionError{Address: addr, Err: err}
		}
	}

	waiting := slices.Clone(v.peers)
	for len(waiting) > 0 {
		env, err := v.tr.Recv(ctx)
		if err != nil {
			return &ConnectionError{Address: waiting[0], Err: err}
		}
		switch env.Msg.Kind {
		case transport.KindHello:
			i := slices.Index(waiting, env.From)
			if i < 0 {
				continue
			}
			if !v.ownsHandle(env.From, sim.Handle(env.Msg.Handle)) {
				return &ConnectionError{
					Address: env.From,
					Err:     fmt.Errorf("peer claims handle %d, roster disagrees", env.Msg.Handle),
				}
			}
			waiting = slices.Delete(waiting, i, i+1)
			v.logger.Debug("peer greeted", "address", env.From, "handle", env.Msg.Handle)
		case transport.KindGoodbye, transport.KindPeerLeft:
			if slices.Contains(v.peers, env.From) {
				return &ConnectionError{Address: env.From, Err: errors.New("peer left during handshake")}
			}
		default:
			v.in.push(env)
		}
	}

	// Ticks before the input delay has filled run on neutral input.
	for tick := range int64(v.delay) {
		v.broadcastInputs(tick, nil)
	}
	return nil
}

func (v *onlineVariant) ownsHandle(addr string, h sim.Handle) bool {
	for _, r := range v.remotes {
		if r.address == addr && r.handle == h {
			return true
		}
	}
	return false
}

// start launches the peer goroutine.
func (v *onlineVariant) start() {
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.wg.Add(1)
	go v.receive()
}

func (v *onlineVariant) receive() {
	defer v.wg.Done()
	for {
		env, err := v.tr.Recv(v.ctx)
		if err != nil {
			if v.ctx.Err() == nil {
				v.in.fail(err)
			}
			return
		}
		v.in.push(env)
	}
}

func (v *onlineVariant) kind() Kind { return KindOnline }

func (v *onlineVariant) world() *sim.World { return v.sched.World() }

func (v *onlineVariant) stats() Stats {
	st := v.sched.Stats()
	return Stats{Ticks: st.Ticks, Rollbacks: st.Rollbacks, Resimulated: st.Resimulated}
}

func (v *onlineVariant) shutdown() {
	if v.cancel != nil {
		v.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), goodbyeTimeout)
	for _, addr := range v.livePeers() {
		_ = v.tr.Send(ctx, addr, transport.Message{Kind: transport.KindGoodbye})
	}
	cancel()

	if err := v.tr.Close(); err != nil {
		v.logger.Debug("transport close failed", "error", err)
	}
	v.wg.Wait()

	v.in.drain()
	v.sched = nil
	v.line = nil
	v.remotes = nil
	v.checks = nil
	v.confirmed = nil
}

func (v *onlineVariant) livePeers() []string {
	var out []string
	for _, addr := range v.peers {
		if !v.gone[addr] {
			out = append(out, addr)
		}
	}
	return out
}

func (v *onlineVariant) advance(local map[sim.Handle]input.Bits) (FrameResult, error) {
	diags, err := v.apply(nil)
	if err != nil {
		return FrameResult{}, err
	}

	tick := v.sched.Frame()
	if stall, ok := v.stalled(tick); ok {
		diags = append(diags, stall)
		// Catch up on corrections so confirmation keeps flowing while stalled.
		from, _ := v.sched.Dirty()
		n, err := v.sched.Resimulate()
		if err != nil {
			return FrameResult{}, err
		}
		if n > 0 {
			diags = append(diags, Resimulated{From: from, Ticks: n})
		}
		confirmed := v.confirm()
		return FrameResult{
			Tick:        tick,
			Skipped:     true,
			Confirmed:   confirmed,
			Diagnostics: v.compareChecks(diags),
		}, nil
	}

	v.line.push(local)
	v.broadcastInputs(tick+int64(v.delay), local)
	bits := v.line.pop()

	frames := make([]input.Frame, 0, v.n)
	for _, h := range v.locals {
		frames = append(frames, input.Frame{Handle: h, Bits: bits[h], Status: input.Confirmed})
	}
	for _, r := range v.remotes {
		frames = append(frames, r.frame(tick))
	}

	from, dirty := v.sched.Dirty()
	res, err := v.sched.Advance(frames)
	if err != nil {
		return FrameResult{}, err
	}
	if dirty && res.Resimulated > 0 {
		diags = append(diags, Resimulated{From: from, Ticks: res.Resimulated})
	}
	v.forget(res.Tick)

	confirmed := v.confirm()
	return FrameResult{
		Tick:        res.Tick,
		Frames:      res.Frames,
		Events:      res.Events,
		Checksum:    res.Snapshot,
		Confirmed:   confirmed,
		Diagnostics: v.compareChecks(diags),
	}, nil
}

// apply consumes everything the peer goroutine queued since the last tick.
func (v *onlineVariant) apply(diags []Diagnostic) ([]Diagnostic, error) {
	items, linkErr := v.in.drain()
	for _, env := range items {
		var err error
		switch env.Msg.Kind {
		case transport.KindInput:
			err = v.receiveInput(env.From, sim.Handle(env.Msg.Handle), env.Msg.Tick, input.Bits(env.Msg.Bits))
		case transport.KindChecksum:
			v.receiveCheck(env.From, checksum.Snapshot{Tick: env.Msg.Tick, Digest: env.Msg.Digest})
		case transport.KindGoodbye, transport.KindPeerLeft:
			diags, err = v.disconnect(env.From, diags)
		case transport.KindHello:
		default:
			v.logger.Warn("unexpected message", "from", env.From, "kind", env.Msg.Kind)
		}
		if err != nil {
			return diags, err
		}
	}

	if linkErr != nil {
		v.logger.Warn("transport failed, dropping every remote participant", "error", linkErr)
		for _, addr := range v.livePeers() {
			var err error
			if diags, err = v.disconnect(addr, diags); err != nil {
				return diags, err
			}
		}
	}
	return diags, nil
}

func (v *onlineVariant) remote(addr string, h sim.Handle) *remoteInput {
	for _, r := range v.remotes {
		if r.address == addr && r.handle == h {
			return r
		}
	}
	return nil
}

// receiveInput stores a confirmed remote input and, once the confirmed
// run reaches ticks that already ran on a prediction, corrects them.
func (v *onlineVariant) receiveInput(addr string, h sim.Handle, tick int64, bits input.Bits) error {
	r := v.remote(addr, h)
	if r == nil {
		v.logger.Warn("input for a handle the peer does not own", "from", addr, "handle", h)
		return nil
	}
	if !r.connected() || tick <= r.horizon {
		return nil
	}
	if limit := v.inputLimit(); tick > limit {
		v.logger.Warn("dropping input too far ahead", "from", addr, "handle", h, "tick", tick, "limit", limit)
		return nil
	}
	r.bits[tick] = bits

	current := v.sched.Frame()
	for {
		next := r.horizon + 1
		b, ok := r.bits[next]
		if !ok {
			return nil
		}
		r.horizon = next
		r.last = b
		if next < current {
			delete(r.bits, next)
			if err := v.sched.Correct(next, input.Frame{Handle: h, Bits: b, Status: input.Confirmed}); err != nil {
				return fmt.Errorf("session: input from %s for tick %d: %w", addr, next, err)
			}
		}
	}
}

// inputLimit is the latest tick an honest peer can have sent input for: it
// runs at most a prediction window ahead of the inputs it has from us, which
// are themselves up to one input delay ahead of our frame.
func (v *onlineVariant) inputLimit() int64 {
	return v.sched.Frame() + int64(2*(v.window+v.delay)) + 1
}

// forget drops stored inputs for a tick that has now run confirmed.
func (v *onlineVariant) forget(tick int64) {
	for _, r := range v.remotes {
		if tick <= r.horizon {
			delete(r.bits, tick)
		}
	}
}

// disconnect resolves every handle at addr as disconnected from the tick
// after its last confirmed input, correcting ticks that ran predicted.
func (v *onlineVariant) disconnect(addr string, diags []Diagnostic) ([]Diagnostic, error) {
	if v.gone[addr] || !slices.Contains(v.peers, addr) {
		return diags, nil
	}
	v.gone[addr] = true

	current := v.sched.Frame()
	for _, r := range v.remotes {
		if r.address != addr || !r.connected() {
			continue
		}
		r.disconnectedFrom = r.horizon + 1
		clear(r.bits)
		for t := r.disconnectedFrom; t < current; t++ {
			if err := v.sched.Correct(t, input.Frame{Handle: r.handle, Status: input.Disconnected}); err != nil {
				return diags, fmt.Errorf("session: disconnect %s at tick %d: %w", addr, t, err)
			}
		}
		diags = append(diags, ParticipantDisconnected{Tick: r.disconnectedFrom, Handle: r.handle, Address: addr})
	}
	return diags, nil
}

// stalled reports whether running tick would predict a connected remote
// further ahead than the window.
func (v *onlineVariant) stalled(tick int64) (PredictionStalled, bool) {
	for _, r := range v.remotes {
		if r.connected() && tick-(r.horizon+1) >= int64(v.window) {
			return PredictionStalled{Tick: tick, Handle: r.handle}, true
		}
	}
	return PredictionStalled{}, false
}

func (v *onlineVariant) broadcastInputs(tick int64, local map[sim.Handle]input.Bits) {
	for _, addr := range v.livePeers() {
		for _, h := range v.locals {
			msg := transport.Message{Kind: transport.KindInput, Handle: int(h), Tick: tick, Bits: uint8(local[h])}
			if err := v.tr.Send(v.sendContext(), addr, msg); err != nil {
				v.logger.Warn("failed to send input", "to", addr, "tick", tick, "error", err)
			}
		}
	}
}

func (v *onlineVariant) sendContext() context.Context {
	if v.ctx != nil {
		return v.ctx
	}
	return context.Background()
}

// confirm emits every tick that became final and reports its digest to
// the peers.
func (v *onlineVariant) confirm() []ConfirmedFrame {
	through := v.sched.Frame() - 1
	for _, r := range v.remotes {
		if r.connected() && r.horizon < through {
			through = r.horizon
		}
	}

	var out []ConfirmedFrame
	for t := v.confirmedThrough + 1; t <= through; t++ {
		frames, ok := v.sched.Inputs(t)
		snap, found := v.sched.Registry().Get(t)
		if !ok || !found {
			v.logger.Error("confirmed tick left rollback history", "tick", t)
			continue
		}
		v.confirmed.Record(snap)
		out = append(out, ConfirmedFrame{Tick: t, Frames: frames, Digest: snap.Digest})

		msg := transport.Message{Kind: transport.KindChecksum, Tick: t, Digest: snap.Digest}
		for _, addr := range v.livePeers() {
			if err := v.tr.Send(v.sendContext(), addr, msg); err != nil {
				v.logger.Warn("failed to send checksum", "to", addr, "tick", t, "error", err)
			}
		}
	}
	if through > v.confirmedThrough {
		v.confirmedThrough = through
	}
	return out
}

func (v *onlineVariant) receiveCheck(addr string, snap checksum.Snapshot) {
	if len(v.checks) >= maxPendingChecks {
		v.checks = v.checks[1:]
	}
	v.checks = append(v.checks, remoteCheck{peer: addr, snap: snap})
}

// compareChecks matches pending remote digests against confirmed local ones.
func (v *onlineVariant) compareChecks(diags []Diagnostic) []Diagnostic {
	kept := v.checks[:0]
	for _, c := range v.checks {
		if c.snap.Tick > v.confirmedThrough {
			kept = append(kept, c)
			continue
		}
		mismatch, ok := v.confirmed.Compare(c.snap)
		if !ok {
			continue
		}
		if mismatch != nil {
			diags = append(diags, DesyncDetected{
				Tick:   mismatch.Tick,
				Local:  mismatch.Local,
				Remote: mismatch.Remote,
				Peer:   c.peer,
			})
		}
	}
	v.checks = kept
	return diags
}
