package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"spotit/internal/domain/identity"
)

var marker = identity.Marker{UserID: "u-1", Email: "alice@example.com", Username: "alice"}

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "spotit")

	token, err := m.GenerateToken(marker, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() unexpected error: %v", err)
	}

	got, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() unexpected error: %v", err)
	}
	if got != marker {
		t.Errorf("ValidateToken() = %+v, want %+v", got, marker)
	}
}

func TestTokenRejections(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := NewJWTManager("secret", "spotit")
	signer.now = func() time.Time { return issued }

	valid, err := signer.GenerateToken(marker, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() unexpected error: %v", err)
	}

	tests := []struct {
		name      string
		validator *JWTManager
		token     string
		now       time.Time
	}{
		{"expired", NewJWTManager("secret", "spotit"), valid, issued.Add(2 * time.Hour)},
		{"wrong secret", NewJWTManager("other", "spotit"), valid, issued},
		{"wrong issuer", NewJWTManager("secret", "elsewhere"), valid, issued},
		{"garbage", NewJWTManager("secret", "spotit"), "not.a.token", issued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			tt.validator.now = func() time.Time { return now }
			if _, err := tt.validator.ValidateToken(tt.token); !errors.Is(err, identity.ErrUnauthenticated) {
				t.Errorf("ValidateToken() error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	m := NewJWTManager("secret", "spotit")
	token, _ := m.GenerateToken(marker, time.Hour)

	var seen string
	handler := Authenticate(m, func(w http.ResponseWriter, r *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = identity.CurrentUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "/", http.StatusOK},
		{"query token", func(r *http.Request) {}, "/?token=" + token, http.StatusOK},
		{"missing", func(r *http.Request) {}, "/", http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "/", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && seen != marker.UserID {
				t.Errorf("CurrentUser() = %q, want %q", seen, marker.UserID)
			}
		})
	}
}

type memoryAccounts struct {
	mu      sync.Mutex
	byEmail map[string]identity.Account
	byID    map[string]identity.Account
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{byEmail: map[string]identity.Account{}, byID: map[string]identity.Account{}}
}

func (m *memoryAccounts) CreateAccount(ctx context.Context, a identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return identity.ErrAccountExists
	}
	m.byEmail[a.Email] = a
	m.byID[a.ID] = a
	return nil
}

func (m *memoryAccounts) AccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return identity.Account{}, identity.ErrInvalidCredentials
	}
	return a, nil
}

func (m *memoryAccounts) AccountByID(ctx context.Context, id string) (identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return identity.Account{}, identity.ErrInvalidCredentials
	}
	return a, nil
}

func TestSignUpAndSignIn(t *testing.T) {
	tokens := NewJWTManager("secret", "spotit")
	svc := NewService(newMemoryAccounts(), tokens, time.Hour, bcrypt.MinCost)
	ctx := context.Background()

	account, token, err := svc.SignUp(ctx, " Alice@Example.com ", "alice", "correct horse")
	if err != nil {
		t.Fatalf("SignUp() unexpected error: %v", err)
	}
	if account.Email != "alice@example.com" || account.PasswordHash == "correct horse" {
		t.Errorf("account = %+v, want normalized email and hashed password", account)
	}
	if m, err := tokens.ValidateToken(token); err != nil || m.UserID != account.ID {
		t.Errorf("sign up token = (%+v, %v), want marker for %s", m, err, account.ID)
	}

	if _, _, err := svc.SignUp(ctx, "alice@example.com", "again", "correct horse"); !errors.Is(err, identity.ErrAccountExists) {
		t.Errorf("duplicate SignUp() error = %v, want ErrAccountExists", err)
	}

	if _, _, err := svc.SignIn(ctx, "alice@example.com", "correct horse"); err != nil {
		t.Errorf("SignIn() unexpected error: %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "alice@example.com", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Errorf("SignIn() with wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.SignIn(ctx, "bob@example.com", "correct horse"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Errorf("SignIn() unknown email error = %v, want ErrInvalidCredentials", err)
	}

	if _, err := svc.Account(ctx, "missing"); !errors.Is(err, identity.ErrUnauthenticated) {
		t.Errorf("Account() missing error = %v, want ErrUnauthenticated", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(newMemoryAccounts(), NewJWTManager("secret", "spotit"), time.Hour, bcrypt.MinCost)

	tests := []struct {
		name, email, username, password string
	}{
		{"bad email", "alice", "alice", "correct horse"},
		{"no username", "alice@example.com", " ", "correct horse"},
		{"short password", "alice@example.com", "alice", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.SignUp(context.Background(), tt.email, tt.username, tt.password); !errors.Is(err, ErrInvalidSignup) {
				t.Errorf("SignUp() error = %v, want ErrInvalidSignup", err)
			}
		})
	}
}
