// internal/adapter/storage/spot_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"spotit/internal/domain/identity"
	"spotit/internal/domain/spot"
)

// SpotStore implements storage for spots and their replies
type SpotStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	limit  int
	now    func() time.Time
}

// NewSpotStore creates a new spot store. limit caps how many Spots of other
// creators a single fetch returns.
func NewSpotStore(db *pgxpool.Pool, limit int, logger *slog.Logger) *SpotStore {
	if limit <= 0 {
		limit = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpotStore{
		db:     db,
		logger: logger,
		limit:  limit,
		now:    time.Now,
	}
}

// FetchSpots returns the viewer's own Spots, expired or not, and every active
// Spot by anyone else. Visibility is decided by the engine.
func (s *SpotStore) FetchSpots(ctx context.Context, viewerID string) ([]spot.Spot, error) {
	if err := authorize(ctx, viewerID); err != nil {
		return nil, err
	}

	query := `
		(SELECT id, creator_id, message, latitude, longitude, radius,
			duration_hours, created_at, expires_at, recipients
		FROM spots
		WHERE creator_id = $1)
		UNION ALL
		(SELECT id, creator_id, message, latitude, longitude, radius,
			duration_hours, created_at, expires_at, recipients
		FROM spots
		WHERE creator_id <> $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3)
	`

	rows, err := s.db.Query(ctx, query, viewerID, s.now(), s.limit)
	if err != nil {
		return nil, fmt.Errorf("error querying spots: %w", err)
	}
	defer rows.Close()

	var raws []spot.RawSpot
	var ids []string
	for rows.Next() {
		var r spot.RawSpot
		if err := rows.Scan(
			&r.ID,
			&r.CreatorID,
			&r.Message,
			&r.Latitude,
			&r.Longitude,
			&r.Radius,
			&r.DurationHours,
			&r.CreatedAt,
			&r.ExpiresAt,
			&r.Recipients,
		); err != nil {
			return nil, fmt.Errorf("error scanning spot: %w", err)
		}
		raws = append(raws, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spots: %w", err)
	}

	replies, err := s.fetchReplies(ctx, ids)
	if err != nil {
		return nil, err
	}

	return assemble(raws, replies, s.logger), nil
}

func (s *SpotStore) fetchReplies(ctx context.Context, spotIDs []string) ([]spot.RawReply, error) {
	if len(spotIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, spot_id, user_id, message, created_at
		FROM spot_replies
		WHERE spot_id = ANY($1)
		ORDER BY spot_id, seq
	`, spotIDs)
	if err != nil {
		return nil, fmt.Errorf("error querying replies: %w", err)
	}
	defer rows.Close()

	var replies []spot.RawReply
	for rows.Next() {
		var r spot.RawReply
		if err := rows.Scan(&r.ID, &r.SpotID, &r.UserID, &r.Message, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning reply: %w", err)
		}
		replies = append(replies, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating replies: %w", err)
	}

	return replies, nil
}

// assemble attaches replies to their rows and parses each row into a Spot.
// Malformed rows are logged and skipped.
func assemble(raws []spot.RawSpot, replies []spot.RawReply, logger *slog.Logger) []spot.Spot {
	bySpot := make(map[string][]spot.RawReply)
	for _, r := range replies {
		bySpot[r.SpotID] = append(bySpot[r.SpotID], r)
	}

	seen := make(map[string]struct{}, len(raws))
	spots := make([]spot.Spot, 0, len(raws))
	for _, raw := range raws {
		if _, ok := seen[raw.ID]; ok {
			continue
		}
		seen[raw.ID] = struct{}{}

		raw.Replies = bySpot[raw.ID]
		sp, err := spot.ParseRaw(raw)
		if err != nil {
			logger.Warn("Skipping malformed spot row", "spot", raw.ID, "error", err)
			continue
		}
		spots = append(spots, sp)
	}

	return spots
}

// CreateSpot persists a Spot under a new server id. The incoming temporary id
// is stored as client_ref, so retrying the same create returns the first row.
func (s *SpotStore) CreateSpot(ctx context.Context, sp spot.Spot) (spot.Spot, error) {
	if err := authorize(ctx, sp.CreatorID); err != nil {
		return spot.Spot{}, err
	}

	var clientRef *string
	if sp.IsTemporary() {
		ref := sp.ID
		clientRef = &ref
	}

	query := `
		INSERT INTO spots (
			id, client_ref, creator_id, message, latitude, longitude, radius,
			duration_hours, created_at, expires_at, recipients
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (client_ref) DO NOTHING
		RETURNING id
	`

	recipients := sp.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	var id string
	err := s.db.QueryRow(ctx, query,
		uuid.New().String(),
		clientRef,
		sp.CreatorID,
		sp.Message,
		sp.Location.Latitude,
		sp.Location.Longitude,
		sp.Radius,
		sp.DurationHours,
		sp.CreatedAt,
		sp.ExpiresAt,
		recipients,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) && clientRef != nil {
		// Already created by an earlier attempt
		err = s.db.QueryRow(ctx, `SELECT id FROM spots WHERE client_ref = $1`, *clientRef).Scan(&id)
	}
	if err != nil {
		return spot.Spot{}, fmt.Errorf("error inserting spot: %w", err)
	}

	confirmed := sp.Clone()
	confirmed.ID = id
	if confirmed.Replies == nil {
		confirmed.Replies = []spot.Reply{}
	}
	return confirmed, nil
}

// AppendReply attaches a reply to a Spot. A reply id that already exists is
// a no-op; a missing Spot is spot.ErrNotFound.
func (s *SpotStore) AppendReply(ctx context.Context, spotID string, reply spot.Reply) error {
	if err := authorize(ctx, reply.UserID); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO spot_replies (id, spot_id, user_id, message, created_at)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (SELECT 1 FROM spots WHERE id = $2)
		ON CONFLICT (id) DO NOTHING
	`, reply.ID, spotID, reply.UserID, reply.Message, reply.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting reply: %w", err)
	}

	if tag.RowsAffected() == 0 {
		exists, err := s.exists(ctx, spotID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("spot %s: %w", spotID, spot.ErrNotFound)
		}
	}

	return nil
}

// DeleteSpot removes a Spot owned by the caller
func (s *SpotStore) DeleteSpot(ctx context.Context, spotID string) error {
	userID, err := identity.CurrentUser(ctx)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM spots WHERE id = $1 AND creator_id = $2`, spotID, userID)
	if err != nil {
		return fmt.Errorf("error deleting spot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := s.exists(ctx, spotID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: only the creator can delete spot %s", spot.ErrInvalidSpot, spotID)
	}
	return fmt.Errorf("spot %s: %w", spotID, spot.ErrNotFound)
}

func (s *SpotStore) exists(ctx context.Context, spotID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM spots WHERE id = $1)`, spotID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking spot: %w", err)
	}
	return exists, nil
}

// authorize checks that the request acts as userID
func authorize(ctx context.Context, userID string) error {
	current, err := identity.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if current != userID {
		return fmt.Errorf("%w: acting as %s on behalf of %s", identity.ErrUnauthenticated, current, userID)
	}
	return nil
}
