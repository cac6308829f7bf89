// internal/adapter/storage/friend_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"spotit/internal/domain/friend"
)

// FriendStore implements storage for friendships, friend requests and blocks
type FriendStore struct {
	db *pgxpool.Pool
}

// NewFriendStore creates a new friend store
func NewFriendStore(db *pgxpool.Pool) *FriendStore {
	return &FriendStore{
		db: db,
	}
}

// Friends returns userID's friends ordered by name. Presence is filled in by
// the caller.
func (s *FriendStore) Friends(ctx context.Context, userID string) ([]friend.Friend, error) {
	query := `
		SELECT a.id, a.username, a.email, a.avatar,
			EXISTS (SELECT 1 FROM blocks b WHERE b.blocker_id = $1 AND b.blocked_id = a.id)
		FROM friendships f
		JOIN accounts a ON a.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY a.username
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying friends: %w", err)
	}
	defer rows.Close()

	friends := []friend.Friend{}
	for rows.Next() {
		f := friend.Friend{Status: friend.StatusOffline}
		if err := rows.Scan(&f.ID, &f.Name, &f.Email, &f.Avatar, &f.IsBlocked); err != nil {
			return nil, fmt.Errorf("error scanning friend: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friends: %w", err)
	}

	return friends, nil
}

// Requests returns the pending requests addressed to userID
func (s *FriendStore) Requests(ctx context.Context, userID string) ([]friend.FriendRequest, error) {
	query := `
		SELECT r.id, r.from_id, r.to_id, a.username, a.avatar, r.created_at
		FROM friend_requests r
		JOIN accounts a ON a.id = r.from_id
		WHERE r.to_id = $1
		ORDER BY r.created_at
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying friend requests: %w", err)
	}
	defer rows.Close()

	requests := []friend.FriendRequest{}
	for rows.Next() {
		r := friend.FriendRequest{Status: friend.RequestPending}
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &r.Name, &r.Avatar, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning friend request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friend requests: %w", err)
	}

	return requests, nil
}

// SendRequest invites the account registered under toEmail. Sending the same
// request twice returns the existing one.
func (s *FriendStore) SendRequest(ctx context.Context, fromID, toEmail string) (friend.FriendRequest, error) {
	var toID string
	err := s.db.QueryRow(ctx, `SELECT id FROM accounts WHERE email = $1`, strings.ToLower(strings.TrimSpace(toEmail))).Scan(&toID)
	if errors.Is(err, pgx.ErrNoRows) {
		return friend.FriendRequest{}, fmt.Errorf("no account for %s: %w", toEmail, friend.ErrRequestNotFound)
	}
	if err != nil {
		return friend.FriendRequest{}, fmt.Errorf("error looking up account: %w", err)
	}
	if toID == fromID {
		return friend.FriendRequest{}, friend.ErrSelfRequest
	}

	query := `
		WITH inserted AS (
			INSERT INTO friend_requests (id, from_id, to_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (from_id, to_id) DO NOTHING
			RETURNING id, created_at
		)
		SELECT id, created_at FROM inserted
		UNION ALL
		SELECT id, created_at FROM friend_requests WHERE from_id = $2 AND to_id = $3
		LIMIT 1
	`

	r := friend.FriendRequest{FromID: fromID, ToID: toID, Status: friend.RequestPending}
	if err := s.db.QueryRow(ctx, query, uuid.New().String(), fromID, toID).Scan(&r.ID, &r.CreatedAt); err != nil {
		return friend.FriendRequest{}, fmt.Errorf("error inserting friend request: %w", err)
	}

	return r, nil
}

// Respond accepts or rejects a request addressed to userID. Either way the
// request is deleted; accepting also records the friendship both ways.
func (s *FriendStore) Respond(ctx context.Context, userID, requestID string, decision friend.Decision) error {
	return s.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var fromID string
		err := tx.QueryRow(ctx,
			`DELETE FROM friend_requests WHERE id = $1 AND to_id = $2 RETURNING from_id`,
			requestID, userID,
		).Scan(&fromID)
		if errors.Is(err, pgx.ErrNoRows) {
			return friend.ErrRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("error deleting friend request: %w", err)
		}

		if decision != friend.Accept {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO friendships (user_id, friend_id)
			VALUES ($1, $2), ($2, $1)
			ON CONFLICT DO NOTHING
		`, userID, fromID)
		if err != nil {
			return fmt.Errorf("error inserting friendship: %w", err)
		}
		return nil
	})
}

// BlockedIDs returns the creators blocked by viewerID
func (s *FriendStore) BlockedIDs(ctx context.Context, viewerID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT blocked_id FROM blocks WHERE blocker_id = $1`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("error querying blocks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning block: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Block records a block; blocking twice is a no-op
func (s *FriendStore) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return friend.ErrSelfRequest
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("error inserting block: %w", err)
	}
	return nil
}

// Unblock removes a block
func (s *FriendStore) Unblock(ctx context.Context, blockerID, blockedID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("error deleting block: %w", err)
	}
	return nil
}
