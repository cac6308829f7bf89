package reconcile

import (
	"reflect"
	"testing"
	"time"

	"spotit/internal/domain/spot"
)

func TestMergeIsIdempotent(t *testing.T) {
	remote := []spot.Spot{
		makeSpot(t, "srv-1", "bob", t0, "alice"),
		makeSpot(t, "srv-2", "carol", t0.Add(time.Minute), "alice"),
	}
	p := NewPending()
	opt := makeSpot(t, "tmp-a", "alice", t0.Add(2*time.Minute))
	p.Creates[opt.ID] = PendingCreate{Spot: opt, State: InFlight}
	p.Deletes["srv-2"] = InFlight
	p.Replies["srv-1"] = []PendingReply{{Reply: spot.Reply{ID: "r1", UserID: "alice", Message: "hi"}, State: InFlight}}

	first := Merge(remote, p)
	second := Merge(remote, p)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Merge is not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
	if got := spotIDs(first); !reflect.DeepEqual(got, []string{"tmp-a", "srv-1"}) {
		t.Errorf("Merge() = %v, want [tmp-a srv-1]", got)
	}
}

func TestMergeConfirmedCreateReplacesOptimistic(t *testing.T) {
	opt := makeSpot(t, "tmp-1", "alice", t0)
	confirmed := opt.Clone()
	confirmed.ID = "srv-42"

	p := NewPending()
	p.Creates["tmp-1"] = PendingCreate{Spot: opt, ServerID: "srv-42", State: Acked}

	merged := Merge([]spot.Spot{confirmed}, p)
	if got := spotIDs(merged); !reflect.DeepEqual(got, []string{"srv-42"}) {
		t.Errorf("Merge() = %v, want exactly [srv-42]", got)
	}

	// A stale snapshot that predates the confirmation still shows one entry,
	// already under the server id
	merged = Merge(nil, p)
	if got := spotIDs(merged); !reflect.DeepEqual(got, []string{"srv-42"}) {
		t.Errorf("Merge() on stale snapshot = %v, want [srv-42]", got)
	}
}

func TestMergeKeepsUnconfirmedAlongsideRemote(t *testing.T) {
	remote := []spot.Spot{makeSpot(t, "srv-1", "bob", t0, "alice")}
	p := NewPending()
	p.Creates["tmp-1"] = PendingCreate{Spot: makeSpot(t, "tmp-1", "alice", t0.Add(time.Minute)), State: InFlight}

	merged := Merge(remote, p)
	if got := spotIDs(merged); !reflect.DeepEqual(got, []string{"tmp-1", "srv-1"}) {
		t.Errorf("Merge() = %v, want [tmp-1 srv-1]", got)
	}
}

func TestMergePendingDeleteHidesRemote(t *testing.T) {
	remote := []spot.Spot{
		makeSpot(t, "srv-1", "alice", t0),
		makeSpot(t, "srv-2", "alice", t0.Add(time.Minute)),
	}
	p := NewPending()
	p.Deletes["srv-1"] = Acked

	merged := Merge(remote, p)
	if got := spotIDs(merged); !reflect.DeepEqual(got, []string{"srv-2"}) {
		t.Errorf("Merge() = %v, want [srv-2]", got)
	}
}

func TestMergeRepliesDeduplicatedByID(t *testing.T) {
	s := makeSpot(t, "srv-1", "bob", t0, "alice")
	s.Replies = []spot.Reply{{ID: "r1", SpotID: "srv-1", UserID: "carol", Message: "first"}}

	p := NewPending()
	p.Replies["srv-1"] = []PendingReply{
		{Reply: spot.Reply{ID: "r1", UserID: "carol", Message: "first"}, State: Acked},
		{Reply: spot.Reply{ID: "r2", UserID: "alice", Message: "second"}, State: InFlight},
	}

	merged := Merge([]spot.Spot{s}, p)
	if len(merged) != 1 {
		t.Fatalf("Merge() returned %d spots, want 1", len(merged))
	}
	replies := merged[0].Replies
	if len(replies) != 2 || replies[0].ID != "r1" || replies[1].ID != "r2" {
		t.Fatalf("replies = %+v, want r1 then r2", replies)
	}
	if replies[1].SpotID != "srv-1" {
		t.Errorf("merged reply SpotID = %q, want srv-1", replies[1].SpotID)
	}
	if len(s.Replies) != 1 {
		t.Error("Merge must not mutate the remote snapshot")
	}
}

func TestMergeRepliesFollowConfirmedID(t *testing.T) {
	opt := makeSpot(t, "tmp-1", "alice", t0)
	p := NewPending()
	p.Creates["tmp-1"] = PendingCreate{Spot: opt, ServerID: "srv-9", State: Acked}
	p.Replies["tmp-1"] = []PendingReply{{Reply: spot.Reply{ID: "r1", Message: "later"}, State: Queued}}

	merged := Merge(nil, p)
	if len(merged) != 1 || merged[0].ID != "srv-9" {
		t.Fatalf("Merge() = %v, want [srv-9]", spotIDs(merged))
	}
	if len(merged[0].Replies) != 1 || merged[0].Replies[0].SpotID != "srv-9" {
		t.Errorf("reply should attach to the confirmed id, got %+v", merged[0].Replies)
	}
}
