// internal/adapter/storage/migrations.go

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

	// client_ref holds the temporary id a Spot was created under, which makes
	// a retried create land on the same row
	sqlCreateSpotsTable = `CREATE TABLE IF NOT EXISTS spots (
		id TEXT PRIMARY KEY,
		client_ref TEXT UNIQUE,
		creator_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		message TEXT NOT NULL,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		radius DOUBLE PRECISION,
		duration_hours INTEGER,
		created_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		recipients TEXT[] NOT NULL DEFAULT '{}'
	)`

	sqlCreateSpotsIndices = `
		CREATE INDEX IF NOT EXISTS idx_spots_creator_id ON spots(creator_id);
		CREATE INDEX IF NOT EXISTS idx_spots_expires_at ON spots(expires_at);
		CREATE INDEX IF NOT EXISTS idx_spots_recipients ON spots USING GIN(recipients);
	`

	sqlCreateRepliesTable = `CREATE TABLE IF NOT EXISTS spot_replies (
		id TEXT PRIMARY KEY,
		spot_id TEXT NOT NULL REFERENCES spots(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		seq BIGSERIAL
	)`

	sqlCreateRepliesIndices = `
		CREATE INDEX IF NOT EXISTS idx_spot_replies_spot_id ON spot_replies(spot_id, seq);
	`

	sqlCreateFriendshipsTable = `CREATE TABLE IF NOT EXISTS friendships (
		user_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		friend_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, friend_id)
	)`

	sqlCreateFriendRequestsTable = `CREATE TABLE IF NOT EXISTS friend_requests (
		id TEXT PRIMARY KEY,
		from_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		to_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (from_id, to_id)
	)`

	sqlCreateBlocksTable = `CREATE TABLE IF NOT EXISTS blocks (
		blocker_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		blocked_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (blocker_id, blocked_id)
	)`
)

// migrations run in order; every statement is idempotent
var migrations = []struct {
	name string
	sql  string
}{
	{"accounts", sqlCreateAccountsTable},
	{"spots", sqlCreateSpotsTable},
	{"spots indices", sqlCreateSpotsIndices},
	{"spot_replies", sqlCreateRepliesTable},
	{"spot_replies indices", sqlCreateRepliesIndices},
	{"friendships", sqlCreateFriendshipsTable},
	{"friend_requests", sqlCreateFriendRequestsTable},
	{"blocks", sqlCreateBlocksTable},
}

// Migrate creates the schema
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("error running migration %s: %w", m.name, err)
		}
	}
	return nil
}
