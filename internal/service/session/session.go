// internal/service/session/session.go

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"spotit/internal/domain/geo"
	"spotit/internal/domain/identity"
	"spotit/internal/domain/spot"
	"spotit/internal/service/notify"
	"spotit/internal/service/reconcile"
)

// Sink messages, worded as the map client shows them
const (
	msgSpotCreated   = "Spot Created: Your Spot has been placed successfully."
	msgCreateQueued  = "Spot saved: it will be placed once the connection returns."
	msgCreateFailed  = "Failed to create Spot"
	msgReplySent     = "Reply Sent: Your reply has been sent successfully."
	msgReplyQueued   = "Reply saved: it will be sent once the connection returns."
	msgReplyFailed   = "Failed to send reply"
	msgSpotGone      = "This Spot is no longer available."
	msgSpotDeleted   = "Spot deleted."
	msgDeleteQueued  = "Spot hidden: it will be deleted once the connection returns."
	msgDeleteFailed  = "Failed to delete Spot"
	msgSyncFailed    = "Couldn't refresh Spots. Showing the last saved map."
	msgNewSpotNearby = "New Spot nearby"
)

// Session is one viewer's engine: the reconciled Spot set, the notification
// queue, the surfaced display and the blocked creators
type Session struct {
	viewer       identity.Marker
	reconciler   *reconcile.Reconciler
	queue        *notify.Queue
	blocks       BlockStore
	sink         Sink
	events       Publisher
	logger       *slog.Logger
	syncInterval time.Duration

	mu         sync.Mutex
	now        func() time.Time
	blocked    []string
	location   *geo.Point
	display    *Display
	lastSync   time.Time
	lastActive time.Time
}

// ViewerID returns the id of the session's user
func (s *Session) ViewerID() string {
	return s.viewer.UserID
}

// Marker returns the session marker the session acts under
func (s *Session) Marker() identity.Marker {
	return s.viewer
}

// SetClock overrides the time source of the session and its reconciler
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	s.reconciler.SetClock(now)
}

func (s *Session) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

// authorize attaches the viewer's marker so the store can check ownership
func (s *Session) authorize(ctx context.Context) context.Context {
	return identity.WithMarker(ctx, s.viewer)
}

// touch records viewer activity. Background polling never calls it, so an
// abandoned session goes idle.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
}

// Refresh reconciles with the store. A failed fetch still returns the
// fallback set together with an error matching spot.ErrSyncFailed.
func (s *Session) Refresh(ctx context.Context) ([]spot.Spot, error) {
	ctx = s.authorize(ctx)
	defer s.reportRejected(ctx)

	spots, err := s.reconciler.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrSuperseded):
		// A newer refresh already merged; serve its result
		return s.reconciler.Snapshot(), nil
	case errors.Is(err, spot.ErrSyncFailed):
		s.sink.Show(ctx, s.viewer.UserID, msgSyncFailed, spot.SeverityWarning)
		s.markSynced()
		return spots, err
	default:
		return spots, err
	}

	if blocked, err := s.blocks.BlockedIDs(ctx, s.viewer.UserID); err != nil {
		s.logger.Warn("Failed to reload block list", "error", err)
	} else {
		s.mu.Lock()
		s.blocked = blocked
		s.mu.Unlock()
	}

	s.markSynced()
	return spots, nil
}

// Sync refreshes when the last reconciliation is older than the sync interval
func (s *Session) Sync(ctx context.Context) error {
	if !s.stale() {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// Invalidate forces the next Sync to hit the store
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = time.Time{}
}

func (s *Session) stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync.IsZero() || s.now().Sub(s.lastSync) >= s.syncInterval
}

func (s *Session) markSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = s.now()
}

// Create places a new Spot authored by the viewer
func (s *Session) Create(ctx context.Context, draft spot.Draft) (spot.Spot, reconcile.Outcome, error) {
	ctx = s.authorize(ctx)
	defer s.reportRejected(ctx)

	created, outcome, err := s.reconciler.Create(ctx, draft)
	if err != nil {
		s.sink.Show(ctx, s.viewer.UserID, msgCreateFailed, spot.SeverityError)
		return spot.Spot{}, outcome, err
	}

	switch outcome {
	case reconcile.Applied:
		s.sink.Show(ctx, s.viewer.UserID, msgSpotCreated, spot.SeverityInfo)
		location := created.Location
		s.publish(ctx, Event{
			Type:       EventSpotCreated,
			SpotID:     created.ID,
			ActorID:    s.viewer.UserID,
			CreatorID:  created.CreatorID,
			Recipients: created.Recipients,
			Location:   &location,
			Radius:     created.Radius,
		})
	case reconcile.Deferred:
		s.sink.Show(ctx, s.viewer.UserID, msgCreateQueued, spot.SeverityWarning)
	}

	return created, outcome, nil
}

// Reply appends a reply to a visible Spot. A Spot the viewer cannot see on
// the live map or in their own archive is reported as gone.
func (s *Session) Reply(ctx context.Context, spotID, message string) (spot.Reply, reconcile.Outcome, error) {
	ctx = s.authorize(ctx)

	ok, err := s.canReply(spotID, s.clock())
	if err != nil {
		s.sink.Show(ctx, s.viewer.UserID, msgReplyFailed, spot.SeverityError)
		return spot.Reply{}, reconcile.Gone, err
	}
	if !ok {
		s.sink.Show(ctx, s.viewer.UserID, msgSpotGone, spot.SeverityWarning)
		s.clearDisplayFor(spotID)
		return spot.Reply{}, reconcile.Gone, nil
	}

	reply, outcome, err := s.reconciler.Reply(ctx, spotID, message)
	if err != nil {
		s.sink.Show(ctx, s.viewer.UserID, msgReplyFailed, spot.SeverityError)
		return spot.Reply{}, outcome, err
	}

	switch outcome {
	case reconcile.Applied:
		s.sink.Show(ctx, s.viewer.UserID, msgReplySent, spot.SeverityInfo)
		s.publish(ctx, Event{
			Type:    EventSpotReplied,
			SpotID:  reply.SpotID,
			ActorID: s.viewer.UserID,
			ReplyID: reply.ID,
		})
		s.refreshDisplay()
	case reconcile.Deferred:
		s.sink.Show(ctx, s.viewer.UserID, msgReplyQueued, spot.SeverityWarning)
		s.refreshDisplay()
	case reconcile.Gone:
		s.sink.Show(ctx, s.viewer.UserID, msgSpotGone, spot.SeverityWarning)
		s.clearDisplayFor(spotID)
	}

	return reply, outcome, nil
}

// reportRejected tells the viewer about queued mutations the store refused
func (s *Session) reportRejected(ctx context.Context) {
	for _, rej := range s.reconciler.TakeRejected() {
		switch rej.Op {
		case reconcile.OpReply:
			s.sink.Show(ctx, s.viewer.UserID, msgReplyFailed, spot.SeverityError)
			s.refreshDisplay()
		case reconcile.OpDelete:
			s.sink.Show(ctx, s.viewer.UserID, msgDeleteFailed, spot.SeverityError)
		default:
			s.sink.Show(ctx, s.viewer.UserID, msgCreateFailed, spot.SeverityError)
			s.clearDisplayFor(rej.SpotID)
		}
	}
}

// canReply reports whether spotID is on the viewer's live map or in their
// archive
func (s *Session) canReply(spotID string, now time.Time) (bool, error) {
	ids := map[string]struct{}{spotID: {}, s.reconciler.Resolve(spotID): {}}

	for _, mode := range []spot.Mode{spot.ModeLive, spot.ModeArchive} {
		visible, err := s.Spots(mode, nil, now)
		if err != nil {
			return false, err
		}
		for _, sp := range visible {
			if _, ok := ids[sp.ID]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// Delete removes one of the viewer's Spots
func (s *Session) Delete(ctx context.Context, spotID string) (reconcile.Outcome, error) {
	ctx = s.authorize(ctx)

	outcome, err := s.reconciler.Delete(ctx, spotID)
	if err != nil {
		s.sink.Show(ctx, s.viewer.UserID, msgDeleteFailed, spot.SeverityError)
		return outcome, err
	}

	switch outcome {
	case reconcile.Applied:
		s.sink.Show(ctx, s.viewer.UserID, msgSpotDeleted, spot.SeverityInfo)
		s.publish(ctx, Event{Type: EventSpotDeleted, SpotID: spotID, ActorID: s.viewer.UserID})
	case reconcile.Deferred:
		s.sink.Show(ctx, s.viewer.UserID, msgDeleteQueued, spot.SeverityWarning)
	case reconcile.Gone:
		s.sink.Show(ctx, s.viewer.UserID, msgSpotGone, spot.SeverityInfo)
	}
	s.clearDisplayFor(spotID)

	return outcome, nil
}

// Spots evaluates visibility over the reconciled set. A non-nil location
// becomes the viewer's last known position for background polling.
func (s *Session) Spots(mode spot.Mode, location *geo.Point, now time.Time) ([]spot.Spot, error) {
	if location != nil {
		if err := geo.Validate(*location); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if location != nil {
		loc := *location
		s.location = &loc
	}
	viewer := spot.Viewer{ID: s.viewer.UserID, Location: s.location}
	blocked := append([]string(nil), s.blocked...)
	s.mu.Unlock()

	return spot.VisibleSpots(s.reconciler.Snapshot(), viewer, now, blocked, mode)
}

// NextNotification returns the surfaced Spot, selecting the next unread one
// when nothing is displayed
func (s *Session) NextNotification(now time.Time) (Display, bool, error) {
	d, _, err := s.surface(now)
	if err != nil || d == nil {
		return Display{}, false, err
	}
	return *d, true, nil
}

// Dismiss closes the surfaced Spot so the next notification may be shown
func (s *Session) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = nil
}

// Open surfaces a Spot the viewer tapped on the map
func (s *Session) Open(spotID string, now time.Time) (Display, error) {
	visible, err := s.Spots(spot.ModeLive, nil, now)
	if err != nil {
		return Display{}, err
	}

	for _, sp := range visible {
		if sp.ID == spotID {
			d := Display{Spot: sp}
			s.mu.Lock()
			s.display = &d
			s.mu.Unlock()
			return d, nil
		}
	}
	return Display{}, spot.ErrNotFound
}

// Block hides every Spot by creatorID from now on
func (s *Session) Block(ctx context.Context, creatorID string) error {
	if err := s.blocks.Block(s.authorize(ctx), s.viewer.UserID, creatorID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.blocked {
		if id == creatorID {
			return nil
		}
	}
	s.blocked = append(s.blocked, creatorID)
	if s.display != nil && s.display.Spot.CreatorID == creatorID {
		s.display = nil
	}
	return nil
}

// Unblock restores visibility of creatorID's Spots
func (s *Session) Unblock(ctx context.Context, creatorID string) error {
	if err := s.blocks.Unblock(s.authorize(ctx), s.viewer.UserID, creatorID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.blocked[:0]
	for _, id := range s.blocked {
		if id != creatorID {
			kept = append(kept, id)
		}
	}
	s.blocked = kept
	return nil
}

// Blocked returns the creators the viewer has blocked
func (s *Session) Blocked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.blocked...)
}

// Notifications returns the viewer's notification history
func (s *Session) Notifications() []spot.Notification {
	return s.queue.List()
}

// Unread counts notifications observed but not yet surfaced
func (s *Session) Unread() int {
	return s.queue.Unread()
}

// Poll runs one scheduler tick: reconcile when stale, then surface the next
// notification and announce it on the sink
func (s *Session) Poll(ctx context.Context) error {
	var syncErr error
	if err := s.Sync(ctx); err != nil && !errors.Is(err, spot.ErrSyncFailed) {
		syncErr = err
	}

	d, selected, err := s.surface(s.clock())
	if err != nil {
		return err
	}
	if selected {
		s.sink.Show(ctx, s.viewer.UserID, msgNewSpotNearby+": "+d.Spot.Message, spot.SeverityInfo)
	}
	return syncErr
}

// surface observes newly visible Spots and selects the next one to show.
// selected is true only when this call picked a new notification.
func (s *Session) surface(now time.Time) (*Display, bool, error) {
	visible, err := s.Spots(spot.ModeLive, nil, now)
	if err != nil {
		return nil, false, err
	}
	s.queue.Observe(visible, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	active := ""
	if s.display != nil {
		active = s.display.Spot.ID
		if !containsSpot(visible, active) {
			// Expired, deleted or blocked while shown
			s.display = nil
			active = ""
		}
	}
	if active != "" {
		d := *s.display
		return &d, false, nil
	}

	n, ok := s.queue.SelectNext(visible, active)
	if !ok {
		return nil, false, nil
	}
	for _, sp := range visible {
		if sp.ID == n.SpotID {
			s.display = &Display{Notification: n, Spot: sp}
			d := *s.display
			return &d, true, nil
		}
	}
	return nil, false, nil
}

// refreshDisplay picks up local changes (new replies) to the displayed Spot
func (s *Session) refreshDisplay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display == nil {
		return
	}
	for _, sp := range s.reconciler.Snapshot() {
		if sp.ID == s.display.Spot.ID {
			s.display.Spot = sp
			return
		}
	}
}

func (s *Session) clearDisplayFor(spotID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display != nil && s.display.Spot.ID == spotID {
		s.display = nil
	}
}

func (s *Session) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.clock()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish spot event", "type", event.Type, "spot", event.SpotID, "error", err)
	}
}

func containsSpot(spots []spot.Spot, id string) bool {
	for _, sp := range spots {
		if sp.ID == id {
			return true
		}
	}
	return false
}
