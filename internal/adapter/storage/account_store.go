// internal/adapter/storage/account_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"spotit/internal/domain/identity"
)

const uniqueViolation = "23505"

// AccountStore implements storage for accounts
type AccountStore struct {
	db *pgxpool.Pool
}

// NewAccountStore creates a new account store
func NewAccountStore(db *pgxpool.Pool) *AccountStore {
	return &AccountStore{
		db: db,
	}
}

// CreateAccount inserts an account; a taken email is identity.ErrAccountExists
func (s *AccountStore) CreateAccount(ctx context.Context, a identity.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, email, username, avatar, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, strings.ToLower(a.Email), a.Username, a.Avatar, a.PasswordHash, a.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return identity.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("error inserting account: %w", err)
	}
	return nil
}

// AccountByEmail looks an account up for sign in
func (s *AccountStore) AccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	return s.queryAccount(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// AccountByID looks an account up by id
func (s *AccountStore) AccountByID(ctx context.Context, id string) (identity.Account, error) {
	return s.queryAccount(ctx, `WHERE id = $1`, id)
}

func (s *AccountStore) queryAccount(ctx context.Context, where string, arg interface{}) (identity.Account, error) {
	var a identity.Account
	err := s.db.QueryRow(ctx,
		`SELECT id, email, username, avatar, password_hash, created_at FROM accounts `+where, arg,
	).Scan(&a.ID, &a.Email, &a.Username, &a.Avatar, &a.PasswordHash, &a.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return identity.Account{}, identity.ErrInvalidCredentials
	}
	if err != nil {
		return identity.Account{}, fmt.Errorf("error querying account: %w", err)
	}
	return a, nil
}
