// internal/service/reconcile/reconciler.go

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"spotit/internal/domain/identity"
	"spotit/internal/domain/spot"
)

// Store is the remote storage collaborator
type Store interface {
	// FetchSpots returns every Spot the viewer might be able to see
	FetchSpots(ctx context.Context, viewerID string) ([]spot.Spot, error)

	// CreateSpot persists an optimistic Spot and returns the confirmed copy.
	// The temporary id doubles as an idempotency key.
	CreateSpot(ctx context.Context, s spot.Spot) (spot.Spot, error)

	// AppendReply attaches a reply; appending the same reply id twice is a no-op
	AppendReply(ctx context.Context, spotID string, reply spot.Reply) error

	// DeleteSpot removes a Spot
	DeleteSpot(ctx context.Context, spotID string) error
}

// Outcome describes what happened to a local mutation
type Outcome int

const (
	// Applied means the store accepted the mutation
	Applied Outcome = iota
	// Deferred means the mutation is kept locally and retried on refresh
	Deferred
	// Gone means the target Spot no longer exists, so there is nothing to do
	Gone
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Deferred:
		return "deferred"
	case Gone:
		return "gone"
	default:
		return "unknown"
	}
}

// ErrSuperseded is returned by Refresh when a newer refresh was issued while
// this one was in flight; its result was discarded
var ErrSuperseded = errors.New("refresh superseded by a newer request")

// SyncFailedError reports a failed fetch. Snapshot is the fallback set the
// reconciler now serves: the last good snapshot plus pending local state.
type SyncFailedError struct {
	Snapshot []spot.Spot
	Err      error
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("%v: %v", spot.ErrSyncFailed, e.Err)
}

func (e *SyncFailedError) Unwrap() []error {
	return []error{spot.ErrSyncFailed, e.Err}
}

// Mutation kinds named in a Rejection
const (
	OpCreate = "create"
	OpReply  = "reply"
	OpDelete = "delete"
)

// Rejection is a queued mutation the store refused for good. The mutation
// has already been dropped from pending state.
type Rejection struct {
	Op     string
	SpotID string
	Err    error
}

// Config holds retry settings for remote fetches
type Config struct {
	FetchAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// Reconciler owns one viewer's authoritative Spot set. All writes to the set
// go through a single locked merge step.
type Reconciler struct {
	store    Store
	viewerID string
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	remote  []spot.Spot
	pending Pending
	merged  []spot.Spot
	issued  uint64

	rejected []Rejection
}

// New creates a reconciler for a viewer
func New(store Store, viewerID string, config Config, logger *slog.Logger) *Reconciler {
	if config.FetchAttempts == 0 {
		config.FetchAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store:    store,
		viewerID: viewerID,
		config:   config,
		logger:   logger.With("viewer", viewerID),
		now:      time.Now,
		pending:  NewPending(),
		merged:   []spot.Spot{},
	}
}

// SetClock overrides the time source
func (r *Reconciler) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Snapshot returns a copy of the merged set
func (r *Reconciler) Snapshot() []spot.Spot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return spot.CloneAll(r.merged)
}

// TakeRejected returns the queued mutations the store refused since the last
// call and forgets them
func (r *Reconciler) TakeRejected() []Rejection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.rejected
	r.rejected = nil
	return out
}

// Resolve maps an optimistic id to its confirmed server id once known
func (r *Reconciler) Resolve(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Resolve(id)
}

// PendingCount returns how many local mutations await the store
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pending.Creates) + len(r.pending.Deletes)
	for _, replies := range r.pending.Replies {
		n += len(replies)
	}
	return n
}

// Refresh sends queued mutations, fetches the remote snapshot and merges it
// with pending state. A failed fetch yields a *SyncFailedError and the
// fallback set; ErrUnauthenticated is returned unchanged with the set
// untouched.
func (r *Reconciler) Refresh(ctx context.Context) ([]spot.Spot, error) {
	if err := r.flush(ctx); err != nil {
		return r.Snapshot(), err
	}

	r.mu.Lock()
	r.issued++
	generation := r.issued
	r.mu.Unlock()

	remote, fetchErr := r.fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if generation != r.issued {
		r.logger.Debug("Discarding superseded fetch", "generation", generation, "latest", r.issued)
		return spot.CloneAll(r.merged), ErrSuperseded
	}

	if fetchErr != nil {
		if errors.Is(fetchErr, identity.ErrUnauthenticated) {
			return spot.CloneAll(r.merged), fetchErr
		}

		r.merged = Merge(r.remote, r.pending)
		snapshot := spot.CloneAll(r.merged)
		r.logger.Warn("Fetch failed, serving last good snapshot",
			"error", fetchErr,
			"spots", len(snapshot),
			"pending", len(r.pending.Creates)+len(r.pending.Deletes)+len(r.pending.Replies))
		return snapshot, &SyncFailedError{Snapshot: spot.CloneAll(snapshot), Err: fetchErr}
	}

	r.remote = spot.CloneAll(remote)
	r.prune()
	r.merged = Merge(r.remote, r.pending)

	return spot.CloneAll(r.merged), nil
}

// Create validates a draft, adds it optimistically under a temporary id and
// asks the store to confirm it
func (r *Reconciler) Create(ctx context.Context, draft spot.Draft) (spot.Spot, Outcome, error) {
	r.mu.Lock()
	now := r.now()
	r.mu.Unlock()

	s, err := spot.NewSpot(draft, r.viewerID, spot.NewTempID(), now)
	if err != nil {
		return spot.Spot{}, Gone, err
	}

	r.mu.Lock()
	r.pending.Creates[s.ID] = PendingCreate{Spot: s.Clone(), State: InFlight}
	r.merged = Merge(r.remote, r.pending)
	r.mu.Unlock()

	outcome, err := r.sendCreate(ctx, s.ID)
	if err != nil {
		return spot.Spot{}, outcome, err
	}

	r.mu.Lock()
	if pc, ok := r.pending.Creates[s.ID]; ok && pc.ServerID != "" {
		s.ID = pc.ServerID
	}
	r.mu.Unlock()

	// Replies or deletes queued against the temporary id can go out now
	if outcome == Applied {
		if err := r.flush(ctx); err != nil {
			r.logger.Warn("Flush after create failed", "error", err)
		}
	}

	return s, outcome, nil
}

// Reply appends a reply to a Spot locally and sends it to the store
func (r *Reconciler) Reply(ctx context.Context, spotID, message string) (spot.Reply, Outcome, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return spot.Reply{}, Gone, fmt.Errorf("%w: reply message is empty", spot.ErrInvalidSpot)
	}

	r.mu.Lock()
	id := r.pending.Resolve(spotID)
	if !r.containsLocked(id) {
		r.mu.Unlock()
		return spot.Reply{}, Gone, nil
	}

	reply := spot.Reply{
		ID:        uuid.New().String(),
		SpotID:    id,
		UserID:    r.viewerID,
		Message:   message,
		CreatedAt: r.now(),
	}

	// Replies to unconfirmed Spots wait for the create to land
	state := InFlight
	if spot.IsTempID(id) {
		state = Queued
	}
	r.pending.Replies[id] = append(r.pending.Replies[id], PendingReply{Reply: reply, State: state})
	r.merged = Merge(r.remote, r.pending)
	r.mu.Unlock()

	if state == Queued {
		return reply, Deferred, nil
	}

	outcome, err := r.sendReply(ctx, id, reply.ID)
	return reply, outcome, err
}

// Delete hides a Spot locally and asks the store to remove it
func (r *Reconciler) Delete(ctx context.Context, spotID string) (Outcome, error) {
	r.mu.Lock()
	id := r.pending.Resolve(spotID)
	if !r.containsLocked(id) {
		r.mu.Unlock()
		return Gone, nil
	}

	if pc, ok := r.pending.Creates[id]; ok && pc.ServerID == "" {
		if pc.State == Queued {
			// Never reached the store, so forgetting it is the whole delete
			delete(r.pending.Creates, id)
			delete(r.pending.Replies, id)
			r.merged = Merge(r.remote, r.pending)
			r.mu.Unlock()
			return Applied, nil
		}
		r.pending.Deletes[id] = Queued
		r.merged = Merge(r.remote, r.pending)
		r.mu.Unlock()
		return Deferred, nil
	}

	r.pending.Deletes[id] = InFlight
	r.merged = Merge(r.remote, r.pending)
	r.mu.Unlock()

	return r.sendDelete(ctx, id)
}

func (r *Reconciler) fetch(ctx context.Context) ([]spot.Spot, error) {
	var remote []spot.Spot
	var lastErr error

	err := retry.Do(
		func() error {
			spots, err := r.store.FetchSpots(ctx, r.viewerID)
			if err != nil {
				lastErr = err
				if errors.Is(err, identity.ErrUnauthenticated) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			remote = spots
			return nil
		},
		retry.Attempts(r.config.FetchAttempts),
		retry.Delay(r.config.RetryDelay),
		retry.MaxDelay(r.config.RetryMaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Info("Retrying spot fetch after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}

	return remote, nil
}

// flush sends every queued mutation whose target has a server id
func (r *Reconciler) flush(ctx context.Context) error {
	type replyRef struct{ spotID, replyID string }

	r.mu.Lock()
	var creates, deletes []string
	var replies []replyRef
	for tempID, pc := range r.pending.Creates {
		if pc.State != Queued {
			continue
		}
		// Deleted before it ever reached the store
		if _, ok := r.pending.Deletes[tempID]; ok {
			delete(r.pending.Creates, tempID)
			delete(r.pending.Deletes, tempID)
			delete(r.pending.Replies, tempID)
			continue
		}
		pc.State = InFlight
		r.pending.Creates[tempID] = pc
		creates = append(creates, tempID)
	}
	for id, state := range r.pending.Deletes {
		if state == Queued && !spot.IsTempID(id) {
			r.pending.Deletes[id] = InFlight
			deletes = append(deletes, id)
		}
	}
	for id, list := range r.pending.Replies {
		if spot.IsTempID(id) {
			continue
		}
		for i := range list {
			if list[i].State == Queued {
				list[i].State = InFlight
				replies = append(replies, replyRef{spotID: id, replyID: list[i].Reply.ID})
			}
		}
	}
	r.merged = Merge(r.remote, r.pending)
	r.mu.Unlock()

	confirmed := 0
	for _, tempID := range creates {
		outcome, err := r.sendCreate(ctx, tempID)
		if err := r.flushError(OpCreate, tempID, err); err != nil {
			return err
		}
		if outcome == Applied {
			confirmed++
		}
	}
	for _, ref := range replies {
		_, err := r.sendReply(ctx, ref.spotID, ref.replyID)
		if err := r.flushError(OpReply, ref.spotID, err); err != nil {
			return err
		}
	}
	for _, id := range deletes {
		_, err := r.sendDelete(ctx, id)
		if err := r.flushError(OpDelete, id, err); err != nil {
			return err
		}
	}

	// Confirmed creates release replies and deletes queued on their temp ids
	if confirmed > 0 {
		return r.flush(ctx)
	}
	return nil
}

// flushError records a refused mutation for TakeRejected. Only an invalid
// session stops the flush.
func (r *Reconciler) flushError(op, spotID string, err error) error {
	if err == nil {
		return nil
	}

	r.logger.Error("Store rejected queued mutation", "op", op, "spot", spotID, "error", err)
	r.mu.Lock()
	r.rejected = append(r.rejected, Rejection{Op: op, SpotID: spotID, Err: err})
	r.mu.Unlock()

	if errors.Is(err, identity.ErrUnauthenticated) {
		return err
	}
	return nil
}

func (r *Reconciler) sendCreate(ctx context.Context, tempID string) (Outcome, error) {
	r.mu.Lock()
	pc, ok := r.pending.Creates[tempID]
	r.mu.Unlock()
	if !ok {
		return Gone, nil
	}

	confirmed, err := r.store.CreateSpot(ctx, pc.Spot.Clone())

	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok = r.pending.Creates[tempID]
	if !ok {
		return Gone, nil
	}

	if err != nil {
		if isPermanent(err) {
			delete(r.pending.Creates, tempID)
			delete(r.pending.Replies, tempID)
			delete(r.pending.Deletes, tempID)
			r.merged = Merge(r.remote, r.pending)
			return Gone, err
		}
		r.logger.Warn("Create deferred", "spot", tempID, "error", err)
		pc.State = Queued
		r.pending.Creates[tempID] = pc
		return Deferred, nil
	}

	pc.ServerID = confirmed.ID
	pc.State = Acked
	r.pending.Creates[tempID] = pc

	if list, ok := r.pending.Replies[tempID]; ok {
		r.pending.Replies[confirmed.ID] = append(r.pending.Replies[confirmed.ID], list...)
		delete(r.pending.Replies, tempID)
	}
	if state, ok := r.pending.Deletes[tempID]; ok {
		r.pending.Deletes[confirmed.ID] = state
		delete(r.pending.Deletes, tempID)
	}

	r.merged = Merge(r.remote, r.pending)
	r.logger.Info("Spot confirmed", "temp_id", tempID, "spot", confirmed.ID)
	return Applied, nil
}

func (r *Reconciler) sendReply(ctx context.Context, spotID, replyID string) (Outcome, error) {
	r.mu.Lock()
	reply, ok := r.findReplyLocked(spotID, replyID)
	r.mu.Unlock()
	if !ok {
		return Gone, nil
	}

	err := r.store.AppendReply(ctx, spotID, reply)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.setReplyStateLocked(spotID, replyID, Acked)
		return Applied, nil
	case errors.Is(err, spot.ErrNotFound):
		r.removeReplyLocked(spotID, replyID)
		r.merged = Merge(r.remote, r.pending)
		return Gone, nil
	case isPermanent(err):
		r.removeReplyLocked(spotID, replyID)
		r.merged = Merge(r.remote, r.pending)
		return Gone, err
	default:
		r.logger.Warn("Reply deferred", "spot", spotID, "reply", replyID, "error", err)
		r.setReplyStateLocked(spotID, replyID, Queued)
		return Deferred, nil
	}
}

func (r *Reconciler) sendDelete(ctx context.Context, id string) (Outcome, error) {
	err := r.store.DeleteSpot(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending.Deletes[id]; !ok {
		return Gone, nil
	}

	switch {
	case err == nil:
		r.pending.Deletes[id] = Acked
		return Applied, nil
	case errors.Is(err, spot.ErrNotFound):
		r.pending.Deletes[id] = Acked
		return Gone, nil
	case isPermanent(err):
		delete(r.pending.Deletes, id)
		r.merged = Merge(r.remote, r.pending)
		return Gone, err
	default:
		r.logger.Warn("Delete deferred", "spot", id, "error", err)
		r.pending.Deletes[id] = Queued
		return Deferred, nil
	}
}

// prune clears pending entries the fresh remote snapshot already reflects
func (r *Reconciler) prune() {
	remote := make(map[string]spot.Spot, len(r.remote))
	for _, s := range r.remote {
		remote[s.ID] = s
	}

	for tempID, pc := range r.pending.Creates {
		if pc.ServerID == "" {
			continue
		}
		_, inRemote := remote[pc.ServerID]
		// A confirmed create deleted before any fetch saw it must not
		// outlive its delete
		deleteDone := r.pending.Deletes[pc.ServerID] == Acked && !inRemote
		if inRemote || deleteDone {
			delete(r.pending.Creates, tempID)
		}
	}

	for id, state := range r.pending.Deletes {
		if _, ok := remote[id]; !ok && state == Acked {
			delete(r.pending.Deletes, id)
		}
	}

	for id, list := range r.pending.Replies {
		s, inRemote := remote[id]
		_, optimistic := r.pending.Creates[id]
		kept := list[:0]
		for _, pr := range list {
			if inRemote && pr.State == Acked && s.HasReply(pr.Reply.ID) {
				continue
			}
			// The Spot is gone for good, so the reply has nowhere to land
			if !inRemote && !optimistic && !r.isOptimisticServerIDLocked(id) && pr.State != InFlight {
				continue
			}
			kept = append(kept, pr)
		}
		if len(kept) == 0 {
			delete(r.pending.Replies, id)
		} else {
			r.pending.Replies[id] = kept
		}
	}
}

func (r *Reconciler) isOptimisticServerIDLocked(id string) bool {
	for _, pc := range r.pending.Creates {
		if pc.ServerID == id {
			return true
		}
	}
	return false
}

func (r *Reconciler) containsLocked(id string) bool {
	for _, s := range r.merged {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (r *Reconciler) findReplyLocked(spotID, replyID string) (spot.Reply, bool) {
	for _, pr := range r.pending.Replies[spotID] {
		if pr.Reply.ID == replyID {
			return pr.Reply, true
		}
	}
	return spot.Reply{}, false
}

func (r *Reconciler) setReplyStateLocked(spotID, replyID string, state Delivery) {
	list := r.pending.Replies[spotID]
	for i := range list {
		if list[i].Reply.ID == replyID {
			list[i].State = state
			return
		}
	}
}

func (r *Reconciler) removeReplyLocked(spotID, replyID string) {
	list := r.pending.Replies[spotID]
	for i := range list {
		if list[i].Reply.ID == replyID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.pending.Replies, spotID)
	} else {
		r.pending.Replies[spotID] = list
	}
}

// isPermanent reports errors that retrying cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, identity.ErrUnauthenticated) ||
		errors.Is(err, spot.ErrInvalidSpot) ||
		errors.Is(err, spot.ErrInvalidCoordinate) ||
		errors.Is(err, spot.ErrInvalidDuration)
}
