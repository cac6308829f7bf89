package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"spotit/internal/domain/friend"
	"spotit/internal/domain/identity"
)

type memoryFriends struct {
	responded map[string]friend.Decision
}

func (m *memoryFriends) Friends(ctx context.Context, userID string) ([]friend.Friend, error) {
	return []friend.Friend{{ID: "bob", Name: "Bob", Status: friend.StatusOffline}}, nil
}

func (m *memoryFriends) Requests(ctx context.Context, userID string) ([]friend.FriendRequest, error) {
	return []friend.FriendRequest{{ID: "req-1", FromID: "carol", ToID: userID, Name: "Carol", Status: friend.RequestPending}}, nil
}

func (m *memoryFriends) SendRequest(ctx context.Context, fromID, toEmail string) (friend.FriendRequest, error) {
	if toEmail == "nobody@example.com" {
		return friend.FriendRequest{}, friend.ErrRequestNotFound
	}
	return friend.FriendRequest{ID: "req-2", FromID: fromID, ToID: "dave", Status: friend.RequestPending}, nil
}

func (m *memoryFriends) Respond(ctx context.Context, userID, requestID string, decision friend.Decision) error {
	if requestID != "req-1" {
		return friend.ErrRequestNotFound
	}
	if m.responded == nil {
		m.responded = make(map[string]friend.Decision)
	}
	m.responded[requestID] = decision
	return nil
}

type fixedPresence struct {
	beats []string
	err   error
}

func (p *fixedPresence) Heartbeat(ctx context.Context, userID string) error {
	p.beats = append(p.beats, userID)
	return nil
}

func (p *fixedPresence) Apply(ctx context.Context, friends []friend.Friend) ([]friend.Friend, error) {
	if p.err != nil {
		return nil, p.err
	}
	seen := time.Now().Add(-3 * time.Hour)
	out := make([]friend.Friend, 0, len(friends))
	for _, f := range friends {
		out = append(out, f.WithPresence(false, seen))
	}
	return out, nil
}

func friendRouter(t *testing.T, friends *memoryFriends, presence *fixedPresence) *chi.Mux {
	t.Helper()
	f := newFixture(t)
	h := NewFriendHandler(friends, presence, f.sessions, quiet)

	r := chi.NewRouter()
	r.Use(withMarker)
	r.Get("/friends", h.ListFriends)
	r.Get("/friends/requests", h.ListRequests)
	r.Post("/friends/requests", h.SendRequest)
	r.Post("/friends/requests/{id}/{decision}", h.RespondToRequest)
	r.Post("/presence/heartbeat", h.Heartbeat)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListFriendsWithPresence(t *testing.T) {
	r := friendRouter(t, &memoryFriends{}, &fixedPresence{})

	rec := serve(r, http.MethodGet, "/friends", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Friends []friendView `json:"friends"`
	}
	decode(t, rec, &resp)
	if len(resp.Friends) != 1 {
		t.Fatalf("friends = %+v", resp.Friends)
	}
	if got := resp.Friends[0].LastActiveLabel; got != "3h ago" {
		t.Errorf("label = %q, want 3h ago", got)
	}
}

func TestListFriendsPresenceUnavailable(t *testing.T) {
	r := friendRouter(t, &memoryFriends{}, &fixedPresence{err: errors.New("redis down")})

	rec := serve(r, http.MethodGet, "/friends", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without presence", rec.Code)
	}
	var resp struct {
		Friends []friendView `json:"friends"`
	}
	decode(t, rec, &resp)
	if len(resp.Friends) != 1 || resp.Friends[0].LastActiveLabel != "Unknown" {
		t.Errorf("friends = %+v, want bob with unknown last active", resp.Friends)
	}
}

func TestFriendRequests(t *testing.T) {
	friends := &memoryFriends{}
	r := friendRouter(t, friends, &fixedPresence{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"list", http.MethodGet, "/friends/requests", "", http.StatusOK},
		{"send", http.MethodPost, "/friends/requests", `{"email":"dave@example.com"}`, http.StatusCreated},
		{"send unknown email", http.MethodPost, "/friends/requests", `{"email":"nobody@example.com"}`, http.StatusNotFound},
		{"send without email", http.MethodPost, "/friends/requests", `{}`, http.StatusBadRequest},
		{"send malformed body", http.MethodPost, "/friends/requests", `{`, http.StatusBadRequest},
		{"accept", http.MethodPost, "/friends/requests/req-1/accept", "", http.StatusOK},
		{"reject unknown", http.MethodPost, "/friends/requests/req-9/reject", "", http.StatusNotFound},
		{"unknown decision", http.MethodPost, "/friends/requests/req-1/ignore", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if friends.responded["req-1"] != friend.Accept {
		t.Errorf("req-1 decision = %q, want accept", friends.responded["req-1"])
	}
}

func TestHeartbeat(t *testing.T) {
	presence := &fixedPresence{}
	r := friendRouter(t, &memoryFriends{}, presence)

	rec := serve(r, http.MethodPost, "/presence/heartbeat", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(presence.beats) != 1 || presence.beats[0] != "alice" {
		t.Errorf("beats = %v, want [alice]", presence.beats)
	}
}

type memoryAccounts struct {
	accounts map[string]identity.Account
}

func (m *memoryAccounts) SignUp(ctx context.Context, email, username, password string) (identity.Account, string, error) {
	if _, ok := m.accounts[email]; ok {
		return identity.Account{}, "", identity.ErrAccountExists
	}
	a := identity.Account{ID: "u-" + username, Email: email, Username: username}
	m.accounts[email] = a
	return a, "token-" + a.ID, nil
}

func (m *memoryAccounts) SignIn(ctx context.Context, email, password string) (identity.Account, string, error) {
	a, ok := m.accounts[email]
	if !ok || password != "correct horse" {
		return identity.Account{}, "", identity.ErrInvalidCredentials
	}
	return a, "token-" + a.ID, nil
}

func (m *memoryAccounts) Account(ctx context.Context, userID string) (identity.Account, error) {
	for _, a := range m.accounts {
		if a.ID == userID {
			return a, nil
		}
	}
	return identity.Account{}, identity.ErrUnauthenticated
}

func TestAuthHandler(t *testing.T) {
	h := NewAuthHandler(&memoryAccounts{accounts: map[string]identity.Account{
		"alice@example.com": {ID: "alice", Email: "alice@example.com", Username: "alice"},
	}}, quiet)

	r := chi.NewRouter()
	r.Post("/signup", h.SignUp)
	r.Post("/signin", h.SignIn)
	r.With(withMarker).Get("/me", h.Me)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"signup", http.MethodPost, "/signup", `{"email":"bob@example.com","username":"bob","password":"correct horse"}`, http.StatusCreated},
		{"signup taken", http.MethodPost, "/signup", `{"email":"alice@example.com","username":"alice","password":"correct horse"}`, http.StatusConflict},
		{"signin", http.MethodPost, "/signin", `{"email":"alice@example.com","password":"correct horse"}`, http.StatusOK},
		{"signin wrong password", http.MethodPost, "/signin", `{"email":"alice@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"signin malformed", http.MethodPost, "/signin", `not json`, http.StatusBadRequest},
		{"me", http.MethodGet, "/me", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
