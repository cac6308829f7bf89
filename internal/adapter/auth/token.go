// internal/adapter/auth/token.go

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"spotit/internal/domain/identity"
)

type claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates HMAC session tokens
type JWTManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTManager creates a token manager
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// GenerateToken signs a marker valid for ttl
func (m *JWTManager) GenerateToken(marker identity.Marker, ttl time.Duration) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   marker.UserID,
		Email:    marker.Email,
		Username: marker.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   marker.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm and expiry. Every failure is
// identity.ErrUnauthenticated.
func (m *JWTManager) ValidateToken(tokenString string) (identity.Marker, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))

	if err != nil || !token.Valid {
		return identity.Marker{}, fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
	}
	if c.UserID == "" {
		return identity.Marker{}, fmt.Errorf("%w: token carries no user", identity.ErrUnauthenticated)
	}

	return identity.Marker{UserID: c.UserID, Email: c.Email, Username: c.Username}, nil
}

// ExtractToken reads a bearer token from the Authorization header, falling
// back to the token query parameter used by WebSocket clients
func ExtractToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimPrefix(bearer, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// ErrMissingToken is returned when a request carries no token at all
var ErrMissingToken = errors.New("missing authorization token")

// Authenticate validates the request's token and attaches its marker to the
// request context. Requests without a valid token are rejected by onError.
func Authenticate(tokens identity.TokenManager, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				onError(w, r, fmt.Errorf("%w: %v", identity.ErrUnauthenticated, ErrMissingToken))
				return
			}

			marker, err := tokens.ValidateToken(tokenString)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithMarker(r.Context(), marker)))
		})
	}
}
