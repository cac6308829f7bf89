package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spotit/internal/domain/geo"
	"spotit/internal/domain/spot"
)

var errNetwork = errors.New("network unreachable")

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStore behaves like the remote store: server ids, idempotent creates
// keyed by temp id, reply de-duplication
type fakeStore struct {
	mu        sync.Mutex
	spots     map[string]spot.Spot
	byTempID  map[string]string
	nextID    int
	fetches   int
	creates   int
	appends   int
	deletes   int
	fetchHook func(call int) error
	createErr []error
	appendErr []error
	deleteErr []error
}

func newFakeStore(spots ...spot.Spot) *fakeStore {
	fs := &fakeStore{
		spots:    make(map[string]spot.Spot),
		byTempID: make(map[string]string),
		nextID:   41,
	}
	for _, s := range spots {
		fs.spots[s.ID] = s.Clone()
	}
	return fs
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// FetchSpots reads the store before running fetchHook, so a blocking hook
// delivers a response that is stale by the time it arrives
func (f *fakeStore) FetchSpots(ctx context.Context, viewerID string) ([]spot.Spot, error) {
	f.mu.Lock()
	f.fetches++
	call := f.fetches
	hook := f.fetchHook
	out := make([]spot.Spot, 0, len(f.spots))
	for _, s := range f.spots {
		out = append(out, s.Clone())
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *fakeStore) CreateSpot(ctx context.Context, s spot.Spot) (spot.Spot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if err := pop(&f.createErr); err != nil {
		return spot.Spot{}, err
	}
	if id, ok := f.byTempID[s.ID]; ok {
		return f.spots[id].Clone(), nil
	}
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.byTempID[s.ID] = id
	s.ID = id
	f.spots[id] = s.Clone()
	return s, nil
}

func (f *fakeStore) AppendReply(ctx context.Context, spotID string, reply spot.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if err := pop(&f.appendErr); err != nil {
		return err
	}
	s, ok := f.spots[spotID]
	if !ok {
		return spot.ErrNotFound
	}
	if !s.HasReply(reply.ID) {
		reply.SpotID = spotID
		s.Replies = append(s.Replies, reply)
		f.spots[spotID] = s
	}
	return nil
}

func (f *fakeStore) DeleteSpot(ctx context.Context, spotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if err := pop(&f.deleteErr); err != nil {
		return err
	}
	if _, ok := f.spots[spotID]; !ok {
		return spot.ErrNotFound
	}
	delete(f.spots, spotID)
	return nil
}

func (f *fakeStore) get(id string) (spot.Spot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spots[id]
	return s, ok
}

func (f *fakeStore) put(s spot.Spot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spots[s.ID] = s.Clone()
}

func makeSpot(t *testing.T, id, creator string, createdAt time.Time, recipients ...string) spot.Spot {
	t.Helper()
	s, err := spot.NewSpot(draft(recipients...), creator, id, createdAt)
	if err != nil {
		t.Fatalf("NewSpot(%s) unexpected error: %v", id, err)
	}
	return s
}

func draft(recipients ...string) spot.Draft {
	return spot.Draft{
		Message:       "meet me here",
		Location:      geo.Point{Latitude: 34.0522, Longitude: -118.2437},
		Radius:        100,
		DurationHours: 48,
		Recipients:    recipients,
	}
}

func spotIDs(spots []spot.Spot) []string {
	out := make([]string, len(spots))
	for i, s := range spots {
		out[i] = s.ID
	}
	return out
}

func newTestReconciler(store Store) *Reconciler {
	r := New(store, "alice", Config{FetchAttempts: 1}, nil)
	r.SetClock(func() time.Time { return t0.Add(time.Hour) })
	return r
}
