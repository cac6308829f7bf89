// internal/domain/identity/identity.go

package identity

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthenticated is returned when no valid session marker is present
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrAccountExists is returned when signing up with a taken email
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when email or password do not match
var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is a registered user
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Avatar       string    `json:"avatar"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Marker is the serialized session marker carried by the client. It is the
// only piece of local state the client persists.
type Marker struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type contextKey struct{}

// WithMarker attaches a session marker to a context
func WithMarker(ctx context.Context, m Marker) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// CurrentUser returns the authenticated user id or ErrUnauthenticated
func CurrentUser(ctx context.Context) (string, error) {
	m, ok := MarkerFrom(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return m.UserID, nil
}

// MarkerFrom returns the session marker attached to ctx
func MarkerFrom(ctx context.Context) (Marker, bool) {
	m, ok := ctx.Value(contextKey{}).(Marker)
	if !ok || m.UserID == "" {
		return Marker{}, false
	}
	return m, true
}
