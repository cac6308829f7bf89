// internal/service/notify/queue.go

package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"spotit/internal/domain/spot"
)

// Queue holds one viewer's notifications. A Spot produces at most one
// notification over the queue's lifetime.
type Queue struct {
	viewerID string

	mu            sync.Mutex
	notifications []spot.Notification
	notified      map[string]struct{}
}

// NewQueue creates an empty queue for a viewer
func NewQueue(viewerID string) *Queue {
	return &Queue{
		viewerID: viewerID,
		notified: make(map[string]struct{}),
	}
}

// Observe records a notification for every Spot in visible the viewer has not
// been notified about yet. The viewer's own Spots never notify. It returns the
// notifications created by this call.
func (q *Queue) Observe(visible []spot.Spot, now time.Time) []spot.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	var created []spot.Notification
	for _, s := range visible {
		if s.CreatorID == q.viewerID || s.IsTemporary() {
			continue
		}
		if _, ok := q.notified[s.ID]; ok {
			continue
		}
		n := spot.Notification{
			ID:         uuid.New().String(),
			SpotID:     s.ID,
			ReceivedAt: now,
		}
		q.notified[s.ID] = struct{}{}
		q.notifications = append(q.notifications, n)
		created = append(created, n)
	}

	return created
}

// SelectNext picks the earliest received unread notification whose Spot is in
// visible and marks it read in the same step. Nothing is selected while
// activeDisplay names a Spot being shown.
func (q *Queue) SelectNext(visible []spot.Spot, activeDisplay string) (spot.Notification, bool) {
	if activeDisplay != "" {
		return spot.Notification{}, false
	}

	present := make(map[string]struct{}, len(visible))
	for _, s := range visible {
		present[s.ID] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, n := range q.notifications {
		if n.Read {
			continue
		}
		if _, ok := present[n.SpotID]; !ok {
			continue
		}
		if best == -1 || n.ReceivedAt.Before(q.notifications[best].ReceivedAt) {
			best = i
		}
	}
	if best == -1 {
		return spot.Notification{}, false
	}

	q.notifications[best].Read = true
	return q.notifications[best], true
}

// List returns every notification, oldest first
func (q *Queue) List() []spot.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := append([]spot.Notification(nil), q.notifications...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out
}

// Unread counts notifications not yet surfaced
func (q *Queue) Unread() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, note := range q.notifications {
		if !note.Read {
			n++
		}
	}
	return n
}
