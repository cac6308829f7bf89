// internal/service/session/manager.go

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spotit/internal/domain/identity"
	"spotit/internal/service/notify"
	"spotit/internal/service/reconcile"
)

// Config contains configuration for the session manager
type Config struct {
	PollInterval time.Duration
	SyncInterval time.Duration
	IdleTimeout  time.Duration
	Reconcile    reconcile.Config
}

type entry struct {
	session *Session
	poller  *notify.Poller
}

// Manager owns one Session per signed-in viewer and runs their pollers
type Manager struct {
	store  reconcile.Store
	blocks BlockStore
	sink   Sink
	events Publisher
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	stopped  bool
}

// NewManager creates a session manager
func NewManager(
	store reconcile.Store,
	blocks BlockStore,
	sink Sink,
	events Publisher,
	config Config,
	logger *slog.Logger,
) *Manager {
	if config.PollInterval <= 0 {
		config.PollInterval = notify.DefaultInterval
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:    store,
		blocks:   blocks,
		sink:     sink,
		events:   events,
		config:   config,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// SetClock overrides the time source of sessions created afterwards
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get returns the viewer's session, creating it on first use. The block list
// is loaded eagerly so the first visibility query already honors it.
func (m *Manager) Get(ctx context.Context, marker identity.Marker) (*Session, error) {
	if marker.UserID == "" {
		return nil, identity.ErrUnauthenticated
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager stopped")
	}
	if e, ok := m.sessions[marker.UserID]; ok {
		m.mu.Unlock()
		e.session.touch()
		return e.session, nil
	}
	now := m.now
	m.mu.Unlock()

	blocked, err := m.blocks.BlockedIDs(identity.WithMarker(ctx, marker), marker.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load block list: %w", err)
	}

	logger := m.logger.With("viewer", marker.UserID)
	r := reconcile.New(m.store, marker.UserID, m.config.Reconcile, logger)
	r.SetClock(now)

	s := &Session{
		viewer:       marker,
		reconciler:   r,
		queue:        notify.NewQueue(marker.UserID),
		blocks:       m.blocks,
		sink:         m.sink,
		events:       m.events,
		logger:       logger,
		syncInterval: m.config.SyncInterval,
		now:          now,
		blocked:      blocked,
		lastActive:   now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Lost a race with a concurrent Get for the same viewer
	if e, ok := m.sessions[marker.UserID]; ok {
		return e.session, nil
	}

	p := notify.NewPoller(s, notify.PollerConfig{Interval: m.config.PollInterval}, logger)
	m.sessions[marker.UserID] = &entry{session: s, poller: p}
	p.Start()

	m.logger.Info("Session started", "viewer", marker.UserID)
	return s, nil
}

// Lookup returns an existing session without creating one
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Invalidate marks the sessions of the given users stale so their next tick
// reconciles with the store
func (m *Manager) Invalidate(userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range userIDs {
		if e, ok := m.sessions[id]; ok {
			e.session.Invalidate()
		}
	}
}

// InvalidateAll marks every session stale
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.sessions {
		e.session.Invalidate()
	}
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Remove stops and forgets a viewer's session
func (m *Manager) Remove(ctx context.Context, userID string) error {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return e.poller.Stop(ctx)
}

// EvictIdle removes sessions with no viewer activity within IdleTimeout.
// A session still holding unsent mutations is kept so its poller can keep
// retrying them.
func (m *Manager) EvictIdle(ctx context.Context) int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	cutoff := m.now().Add(-m.config.IdleTimeout)
	candidates := make(map[string]*Session)
	for id, e := range m.sessions {
		e.session.mu.Lock()
		last := e.session.lastActive
		e.session.mu.Unlock()
		if last.Before(cutoff) {
			candidates[id] = e.session
		}
	}
	m.mu.Unlock()

	evicted := 0
	for id, sess := range candidates {
		if pending := sess.reconciler.PendingCount(); pending > 0 {
			m.logger.Info("Keeping idle session with pending mutations", "viewer", id, "pending", pending)
			continue
		}
		if err := m.Remove(ctx, id); err != nil {
			m.logger.Warn("Failed to stop idle session", "viewer", id, "error", err)
		}
		evicted++
	}
	return evicted
}

// Stop gracefully stops every session's poller
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	entries := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		entries = append(entries, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range entries {
		if err := e.poller.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}
