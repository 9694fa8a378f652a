package notify

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestRelay_MostRecentFirstAndUnread(t *testing.T) {
	r := NewRelay(WithDedupWindow(0))
	a := r.Info("", "first")
	b := r.Error("", "second")

	got := r.List()
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("expected most-recent-first order; got %+v", got)
	}
	if got[0].Read || got[1].Read {
		t.Fatalf("expected notifications to start unread")
	}
	if got[0].Severity != Error {
		t.Fatalf("expected error severity; got %q", got[0].Severity)
	}

	if !r.MarkAsRead(a.ID) {
		t.Fatalf("expected MarkAsRead to find %s", a.ID)
	}
	if r.MarkAsRead("missing") {
		t.Fatalf("expected MarkAsRead(missing)=false")
	}
	if n := r.UnreadCount(); n != 1 {
		t.Fatalf("expected 1 unread; got %d", n)
	}

	r.MarkAllAsRead()
	if n := r.UnreadCount(); n != 0 {
		t.Fatalf("expected 0 unread; got %d", n)
	}
	if len(r.Unread()) != 0 {
		t.Fatalf("expected empty unread list")
	}
}

func TestRelay_DedupWithinWindow(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 12, 8, 10, 0, 0, 0, time.UTC)}
	r := NewRelay(WithClock(clk.now), WithDedupWindow(2*time.Second))

	first := r.Error("Move failed", "server error")
	r.Info("", "other")
	clk.t = clk.t.Add(time.Second)
	again := r.Error("Move failed", "server error")

	if again.ID != first.ID {
		t.Fatalf("expected duplicate to collapse into %s; got %s", first.ID, again.ID)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications after dedup; got %d", len(list))
	}
	if list[0].ID != first.ID {
		t.Fatalf("expected collapsed notification to move to the front")
	}

	// Outside the window a new entry is created.
	clk.t = clk.t.Add(5 * time.Second)
	later := r.Error("Move failed", "server error")
	if later.ID == first.ID {
		t.Fatalf("expected a fresh notification outside the dedup window")
	}

	// Read entries never absorb new ones.
	r.MarkAllAsRead()
	fresh := r.Error("Move failed", "server error")
	if fresh.ID == later.ID {
		t.Fatalf("expected read notification not to be reused")
	}
}

func TestRelay_ChangedSignals(t *testing.T) {
	r := NewRelay()
	ch, stop := r.Changed()
	defer stop()

	r.Info("", "hello")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change signal")
	}

	stop()
	r.Info("", "after stop")
	select {
	case <-ch:
		t.Fatalf("unexpected signal after stop")
	default:
	}
}
