package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/bomberboy/internal/input"
	"github.com/vovakirdan/bomberboy/internal/multiplayer"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/sim"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// playLocal runs a short local session and returns what teardown recorded.
func playLocal(t *testing.T, ticks int) session.Record {
	t.Helper()
	var rec session.Record
	m := session.NewManager(session.WithRecorder(recorderFunc(func(r session.Record) { rec = r })))
	if _, err := m.StartLocal(session.DefaultLocalConfig()); err != nil {
		t.Fatalf("StartLocal() failed: %v", err)
	}
	for tick := range ticks {
		local := map[sim.Handle]input.Bits{0: input.Down, 1: input.Left}
		if tick == 3 {
			local[0] |= input.Fire
		}
		if _, err := m.Advance(local); err != nil {
			t.Fatalf("Advance() failed: %v", err)
		}
	}
	m.Teardown()
	return rec
}

type recorderFunc func(session.Record)

func (f recorderFunc) SaveSession(_ context.Context, r session.Record) error {
	f(r)
	return nil
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "dir", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := playLocal(t, 40)
	rec.Desyncs = []session.DesyncDetected{
		{Tick: 12, Local: 0xdeadbeefcafef00d, Remote: 1, Peer: session.SelfTestPeer},
	}
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession() failed: %v", err)
	}

	sum, err := store.SessionByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("SessionByID() failed: %v", err)
	}
	if sum == nil {
		t.Fatal("SessionByID() returned nil")
	}
	if sum.Kind != session.KindLocal || sum.Ticks != 40 || sum.FinalTick != 39 || sum.Desyncs != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.FinalDigest != rec.FinalDigest {
		t.Errorf("FinalDigest = %016x, expected %016x", sum.FinalDigest, rec.FinalDigest)
	}
	if !sum.StartedAt.Equal(rec.StartedAt.Truncate(time.Millisecond)) {
		t.Errorf("StartedAt = %v, expected %v", sum.StartedAt, rec.StartedAt)
	}

	loaded, err := store.LoadRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("LoadRecord() failed: %v", err)
	}
	if len(loaded.Frames) != len(rec.Frames) {
		t.Fatalf("loaded %d frames, expected %d", len(loaded.Frames), len(rec.Frames))
	}
	if got := loaded.Desyncs; len(got) != 1 || got[0] != rec.Desyncs[0] {
		t.Errorf("Desyncs = %+v", got)
	}

	last, err := session.Replay(*loaded)
	if err != nil {
		t.Fatalf("Replay() of a loaded record failed: %v", err)
	}
	if last.Digest != rec.FinalDigest {
		t.Errorf("replayed digest %016x, expected %016x", last.Digest, rec.FinalDigest)
	}
}

func TestSessionByIDMissing(t *testing.T) {
	store := openStore(t)

	sum, err := store.SessionByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("SessionByID() failed: %v", err)
	}
	if sum != nil {
		t.Errorf("expected nil for a missing session, got %+v", sum)
	}
	rec, err := store.LoadRecord(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Errorf("LoadRecord() = %v, %v", rec, err)
	}
}

func TestRecentSessions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		rec := session.Record{
			ID:           id,
			Kind:         session.KindOnline,
			Participants: 2,
			FPS:          60,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			EndedAt:      base.Add(time.Duration(i)*time.Minute + time.Second),
			EndReason:    "teardown",
			FinalTick:    -1,
		}
		if err := store.SaveSession(ctx, rec); err != nil {
			t.Fatalf("SaveSession(%s) failed: %v", id, err)
		}
	}

	got, err := store.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 sessions with limit, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("sessions not newest first: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Kind != session.KindOnline {
		t.Errorf("Kind = %v", got[0].Kind)
	}

	if err := store.SaveSession(ctx, session.Record{ID: "a", FPS: 60}); err == nil {
		t.Error("saving a duplicate session id should fail")
	}
}

func TestSaveMatchResult(t *testing.T) {
	store := openStore(t)

	for _, id := range []string{"m1", "m2"} {
		err := store.SaveMatchResult(multiplayer.MatchResultData{
			MatchID:      id,
			Code:         "ABC234",
			HostSession:  "host",
			GuestSession: "guest",
			EndReason:    "left",
			Ticks:        600,
			DurationSecs: 10,
		})
		if err != nil {
			t.Fatalf("SaveMatchResult() failed: %v", err)
		}
	}

	matches, err := store.RecentOnlineMatches(10)
	if err != nil {
		t.Fatalf("RecentOnlineMatches() failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].MatchID != "m2" || matches[0].Ticks != 600 || matches[0].Duration != 10 {
		t.Errorf("latest match = %+v", matches[0])
	}
}
