// internal/adapter/auth/service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"spotit/internal/domain/identity"
)

// MinPasswordLength is the shortest password accepted at sign up
const MinPasswordLength = 8

// ErrInvalidSignup is returned for malformed sign up input
var ErrInvalidSignup = errors.New("invalid sign up")

// Service implements identity.Service with bcrypt password hashes and
// signed session tokens
type Service struct {
	accounts identity.AccountStore
	tokens   identity.TokenManager
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
}

// NewService creates an account service. cost is the bcrypt cost; zero uses
// bcrypt.DefaultCost.
func NewService(accounts identity.AccountStore, tokens identity.TokenManager, tokenTTL time.Duration, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		cost:     cost,
		now:      time.Now,
	}
}

// SignUp registers an account and signs it in
func (s *Service) SignUp(ctx context.Context, email, username, password string) (identity.Account, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if _, err := mail.ParseAddress(email); err != nil {
		return identity.Account{}, "", fmt.Errorf("%w: email address is not valid", ErrInvalidSignup)
	}
	if username == "" {
		return identity.Account{}, "", fmt.Errorf("%w: username is required", ErrInvalidSignup)
	}
	if len(password) < MinPasswordLength {
		return identity.Account{}, "", fmt.Errorf("%w: password must have at least %d characters", ErrInvalidSignup, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return identity.Account{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	account := identity.Account{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return identity.Account{}, "", err
	}

	token, err := s.tokens.GenerateToken(identity.MarkerFor(account), s.tokenTTL)
	if err != nil {
		return identity.Account{}, "", err
	}
	return account, token, nil
}

// SignIn checks credentials. Unknown emails and wrong passwords are both
// identity.ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (identity.Account, string, error) {
	account, err := s.accounts.AccountByEmail(ctx, email)
	if err != nil {
		return identity.Account{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return identity.Account{}, "", identity.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(identity.MarkerFor(account), s.tokenTTL)
	if err != nil {
		return identity.Account{}, "", err
	}
	return account, token, nil
}

// Account returns the account behind a user id
func (s *Service) Account(ctx context.Context, userID string) (identity.Account, error) {
	account, err := s.accounts.AccountByID(ctx, userID)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return identity.Account{}, identity.ErrUnauthenticated
	}
	return account, err
}
