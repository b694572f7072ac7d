package rollback

import "testing"

func TestWindowPushEvicts(t *testing.T) {
	w := NewWindow[string](3, 10)

	if w.Len() != 0 || w.Start() != 10 || w.End() != 10 {
		t.Fatalf("empty window: len=%d start=%d end=%d", w.Len(), w.Start(), w.End())
	}

	for _, v := range []string{"a", "b", "c", "d"} {
		w.Push(v)
	}

	if w.Start() != 11 || w.End() != 14 {
		t.Errorf("window holds [%d, %d), expected [11, 14)", w.Start(), w.End())
	}
	if _, ok := w.Get(10); ok {
		t.Error("tick 10 should have been evicted")
	}
	for tick, want := range map[int64]string{11: "b", 12: "c", 13: "d"} {
		if got, ok := w.Get(tick); !ok || got != want {
			t.Errorf("Get(%d) = %q, %v; expected %q", tick, got, ok, want)
		}
	}
}

func TestWindowSet(t *testing.T) {
	w := NewWindow[int](4, 0)
	w.Push(1)
	w.Push(2)

	if !w.Set(1, 20) {
		t.Fatal("Set(1) failed on a held tick")
	}
	if got, _ := w.Get(1); got != 20 {
		t.Errorf("Get(1) = %d, expected 20", got)
	}
	if w.Set(2, 3) {
		t.Error("Set() on a tick past End() should fail")
	}
}

func TestWindowReset(t *testing.T) {
	w := NewWindow[int](2, 0)
	w.Push(1)
	w.Push(2)
	w.Push(3)

	w.Reset(100)
	if w.Len() != 0 || w.Start() != 100 {
		t.Errorf("after Reset: len=%d start=%d", w.Len(), w.Start())
	}
	w.Push(7)
	if got, ok := w.Get(100); !ok || got != 7 {
		t.Errorf("Get(100) = %d, %v", got, ok)
	}
}
