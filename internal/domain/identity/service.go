// internal/domain/identity/service.go

package identity

import (
	"context"
	"time"
)

// Service defines the interface for account services
type Service interface {
	// SignUp registers an account and returns its session token
	SignUp(ctx context.Context, email, username, password string) (Account, string, error)

	// SignIn checks credentials and returns a session token
	SignIn(ctx context.Context, email, password string) (Account, string, error)

	// Account returns the account behind a user id
	Account(ctx context.Context, userID string) (Account, error)
}

// TokenManager handles session tokens
type TokenManager interface {
	// GenerateToken signs a marker valid for ttl
	GenerateToken(m Marker, ttl time.Duration) (string, error)

	// ValidateToken checks a token and returns the marker it carries
	ValidateToken(token string) (Marker, error)
}

// AccountStore persists accounts
type AccountStore interface {
	CreateAccount(ctx context.Context, a Account) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
}

// MarkerFor builds the session marker of an account
func MarkerFor(a Account) Marker {
	return Marker{UserID: a.ID, Email: a.Email, Username: a.Username}
}
