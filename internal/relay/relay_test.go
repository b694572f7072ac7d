package relay

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/sim"
	"github.com/vovakirdan/bomberboy/internal/transport"
)

func newRelay(t *testing.T) (*Server, string) {
	t.Helper()
	srv := New()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

// dialPair joins two clients to room and returns them in handle order.
func dialPair(t *testing.T, url string) (*transport.WebSocket, *transport.WebSocket) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		wg      sync.WaitGroup
		clients [2]*transport.WebSocket
		errs    [2]error
	)
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients[i], errs[i] = transport.DialWebSocket(ctx, url)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("DialWebSocket(%d) failed: %v", i, err)
		}
	}
	t.Cleanup(func() {
		clients[0].Close()
		clients[1].Close()
	})

	if clients[0].Welcome().Handle == 1 {
		clients[0], clients[1] = clients[1], clients[0]
	}
	return clients[0], clients[1]
}

func TestRoomWelcome(t *testing.T) {
	srv, url := newRelay(t)
	a, b := dialPair(t, url+"/lobby")

	wa, wb := a.Welcome(), b.Welcome()
	if wa.Handle != 0 || wb.Handle != 1 {
		t.Errorf("handles = %d, %d", wa.Handle, wb.Handle)
	}
	if !slices.Equal(wa.Peers, wb.Peers) || len(wa.Peers) != 2 {
		t.Errorf("peer lists differ: %v vs %v", wa.Peers, wb.Peers)
	}
	if wa.Peers[0] != wa.ID || wa.Peers[1] != wb.ID {
		t.Errorf("peers %v not in join order", wa.Peers)
	}
	if got := a.Peers(); !slices.Equal(got, []string{b.Local()}) {
		t.Errorf("a.Peers() = %v, expected [%s]", got, b.Local())
	}
	if srv.Waiting() != 0 {
		t.Errorf("Waiting() = %d after the room filled", srv.Waiting())
	}
}

func TestForwardAndLeave(t *testing.T) {
	_, url := newRelay(t)
	a, b := dialPair(t, url+"/fwd?next=2")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := transport.Message{Kind: transport.KindInput, Handle: 0, Tick: 9, Bits: uint8(input.Fire)}
	if err := a.Send(ctx, b.Local(), msg); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	env, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() failed: %v", err)
	}
	if env.From != a.Local() || env.Msg != msg {
		t.Errorf("Recv() = %+v", env)
	}

	if err := a.Send(ctx, "stranger", msg); !errors.Is(err, transport.ErrUnknownPeer) {
		t.Errorf("Send() to stranger = %v, expected ErrUnknownPeer", err)
	}

	a.Close()
	env, err = b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() failed: %v", err)
	}
	if env.From != a.Local() || env.Msg.Kind != transport.KindPeerLeft {
		t.Errorf("Recv() = %+v, expected peer-left from %s", env, a.Local())
	}
}

func TestRoomSizeMismatch(t *testing.T) {
	srv, url := newRelay(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := transport.DialWebSocket(ctx, url+"/mixed?next=2")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for srv.Waiting() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := transport.DialWebSocket(context.Background(), url+"/mixed?next=3"); err == nil {
		t.Error("joining a room with a different size should fail")
	}
	if err := <-done; err == nil {
		t.Error("the lone peer should time out waiting for the room")
	}
}

func TestBadRoom(t *testing.T) {
	_, url := newRelay(t)
	for _, path := range []string{"/", "/r?next=1", "/r?next=abc"} {
		if _, err := transport.DialWebSocket(context.Background(), url+path); err == nil {
			t.Errorf("DialWebSocket(%q) should fail", path)
		}
	}
}

func TestSessionOverRelay(t *testing.T) {
	_, url := newRelay(t)
	a, b := dialPair(t, url+"/match")

	roster := func(local sim.Handle, remote string) []session.Participant {
		r := make([]session.Participant, 2)
		r[local] = session.Participant{Handle: local, Kind: session.LocalParticipant}
		r[1-local] = session.Participant{Handle: 1 - local, Kind: session.RemoteParticipant, Address: remote}
		return r
	}
	cfg := func(local sim.Handle, remote string) session.OnlineConfig {
		return session.OnlineConfig{Roster: roster(local, remote), InputDelay: 1, MaxPredictionWindow: 8, FPS: 60}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ma, mb := session.NewManager(), session.NewManager()
	defer ma.Teardown()
	defer mb.Teardown()

	var wg sync.WaitGroup
	var errB error
	var sb *session.Session
	wg.Add(1)
	go func() {
		defer wg.Done()
		sb, errB = mb.StartOnline(ctx, cfg(1, a.Local()), b)
	}()
	sa, errA := ma.StartOnline(ctx, cfg(0, b.Local()), a)
	wg.Wait()
	if errA != nil || errB != nil {
		t.Fatalf("StartOnline() failed: %v, %v", errA, errB)
	}

	const ticks = 60
	moves := []input.Bits{input.Up, input.Left, input.Fire, input.Neutral, input.Right}
	for i := 0; i < 5000 && (sa.World().Frame() < ticks || sb.World().Frame() < ticks); i++ {
		if ta := sa.World().Frame(); ta < ticks {
			if _, err := ma.Advance(map[sim.Handle]input.Bits{0: moves[ta%5]}); err != nil {
				t.Fatalf("Advance(a) failed: %v", err)
			}
		}
		if tb := sb.World().Frame(); tb < ticks {
			if _, err := mb.Advance(map[sim.Handle]input.Bits{1: moves[(tb+2)%5]}); err != nil {
				t.Fatalf("Advance(b) failed: %v", err)
			}
		}
		time.Sleep(200 * time.Microsecond)
	}

	last := func(s *session.Session) int64 {
		frames := s.Record().Frames
		if len(frames) == 0 {
			return -1
		}
		return frames[len(frames)-1].Tick
	}
	for i := 0; i < 2000 && (last(sa) < ticks-1 || last(sb) < ticks-1); i++ {
		if _, err := ma.Advance(nil); err != nil {
			t.Fatalf("Advance(a) failed: %v", err)
		}
		if _, err := mb.Advance(nil); err != nil {
			t.Fatalf("Advance(b) failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	ra, rb := sa.Record(), sb.Record()
	if len(ra.Frames) < ticks || len(rb.Frames) < ticks {
		t.Fatalf("confirmed %d and %d ticks", len(ra.Frames), len(rb.Frames))
	}
	for tick := range ticks {
		if ra.Frames[tick].Digest != rb.Frames[tick].Digest {
			t.Fatalf("tick %d: peers disagree", tick)
		}
	}
	if sa.Stats().Desyncs != 0 || sb.Stats().Desyncs != 0 {
		t.Error("peers reported a desync over the relay")
	}
}

func TestDialJoinsRoom(t *testing.T) {
	_, url := newRelay(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		wg   sync.WaitGroup
		trs  [2]transport.Transport
		errs [2]error
	)
	for i := range trs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trs[i], errs[i] = transport.Dial(ctx, url+"/dialed", nil)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Dial(%d) failed: %v", i, err)
		}
		defer trs[i].Close()
	}

	for _, tr := range trs {
		member, ok := tr.(transport.RoomMember)
		if !ok {
			t.Fatalf("%T does not report its room", tr)
		}
		w := member.Welcome()
		roster := session.PeerRoster(sim.Handle(w.Handle), w.Peers)
		if roster[w.Handle].Kind != session.LocalParticipant {
			t.Errorf("handle %d is not local in its own roster", w.Handle)
		}
		other := roster[1-w.Handle]
		if other.Kind != session.RemoteParticipant || other.Address != tr.Peers()[0] {
			t.Errorf("remote participant = %+v, expected address %s", other, tr.Peers()[0])
		}
	}
}
