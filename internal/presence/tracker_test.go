package presence

import (
	"sort"
	"testing"
	"time"
)

func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestOnStatusBroadcast_ReplacesSet(t *testing.T) {
	tr := NewTracker()
	tr.OnStatusBroadcast([]string{"a", "b"})

	if !tr.IsOnline("a") || !tr.IsOnline("b") {
		t.Fatal("a and b should be online after first broadcast")
	}

	tr.OnStatusBroadcast([]string{"b", "c"})

	if tr.IsOnline("a") {
		t.Error("a should be offline after dropping out of the broadcast")
	}
	if !tr.IsOnline("b") || !tr.IsOnline("c") {
		t.Error("b and c should be online")
	}

	ids := tr.OnlineIDs()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("OnlineIDs = %v, want [b c]", ids)
	}
}

func TestOnStatusBroadcast_DroppedPeerGetsLastSeen(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = fixedNow(now)

	tr.OnStatusBroadcast([]string{"a"})
	tr.OnStatusBroadcast(nil)

	ts, ok := tr.LastSeen("a")
	if !ok || !ts.Equal(now) {
		t.Errorf("LastSeen(a) = %v %v, want %v true", ts, ok, now)
	}
}

func TestReset_ClearsEveryone(t *testing.T) {
	tr := NewTracker()
	tr.OnStatusBroadcast([]string{"a", "b"})
	tr.Reset()

	if tr.IsOnline("a") || tr.IsOnline("b") {
		t.Error("nobody should be online after Reset")
	}
	if _, ok := tr.LastSeen("a"); !ok {
		t.Error("reset should stamp last-seen for peers that were online")
	}
}

func TestSetLastSeen_NeverMovesBackward(t *testing.T) {
	tr := NewTracker()
	newer := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	tr.SetLastSeen("a", newer)
	tr.SetLastSeen("a", older)

	ts, _ := tr.LastSeen("a")
	if !ts.Equal(newer) {
		t.Errorf("LastSeen(a) = %v, want %v", ts, newer)
	}

	tr.SetLastSeen("b", time.Time{})
	if _, ok := tr.LastSeen("b"); ok {
		t.Error("zero timestamp must be ignored")
	}
}

func TestStatusText(t *testing.T) {
	now := time.Date(2025, time.March, 7, 15, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = fixedNow(now)

	tr.OnStatusBroadcast([]string{"online-peer"})
	tr.SetLastSeen("grace", now.Add(-5*time.Second))
	tr.SetLastSeen("seconds", now.Add(-42*time.Second))
	tr.SetLastSeen("minutes", now.Add(-17*time.Minute))
	tr.SetLastSeen("hours", now.Add(-5*time.Hour))
	tr.SetLastSeen("days", now.Add(-72*time.Hour))

	cases := []struct {
		peer string
		want string
	}{
		{"online-peer", "Online"},
		{"grace", "Online"},
		{"seconds", "Active 42s ago"},
		{"minutes", "Active 17m ago"},
		{"hours", "Active 5h ago"},
		{"days", "Active 3/4/2025"},
		{"stranger", ""},
	}
	for _, tc := range cases {
		if got := tr.StatusText(tc.peer); got != tc.want {
			t.Errorf("StatusText(%s) = %q, want %q", tc.peer, got, tc.want)
		}
	}
}
