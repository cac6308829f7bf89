// internal/server/handlers/friend.go

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"spotit/internal/domain/friend"
	"spotit/internal/domain/identity"
)

// FriendStore persists friendships and friend requests
type FriendStore interface {
	Friends(ctx context.Context, userID string) ([]friend.Friend, error)
	Requests(ctx context.Context, userID string) ([]friend.FriendRequest, error)
	SendRequest(ctx context.Context, fromID, toEmail string) (friend.FriendRequest, error)
	Respond(ctx context.Context, userID, requestID string, decision friend.Decision) error
}

// Presence tracks heartbeats and decorates friends with their status
type Presence interface {
	Heartbeat(ctx context.Context, userID string) error
	Apply(ctx context.Context, friends []friend.Friend) ([]friend.Friend, error)
}

// FriendHandler handles the friends panel, blocks and presence
type FriendHandler struct {
	friends  FriendStore
	presence Presence
	sessions Sessions
	logger   *slog.Logger
	now      func() time.Time
}

// NewFriendHandler creates a new friend handler
func NewFriendHandler(friends FriendStore, presence Presence, sessions Sessions, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{
		friends:  friends,
		presence: presence,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

type friendView struct {
	friend.Friend
	LastActiveLabel string `json:"last_active_label"`
}

// ListFriends returns the viewer's friends with presence and block state
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	friends, err := h.friends.Friends(r.Context(), sess.ViewerID())
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	if h.presence != nil {
		decorated, err := h.presence.Apply(r.Context(), friends)
		if err != nil {
			// Presence is best effort; friends show as offline
			h.logger.Warn("Failed to load presence", "error", err)
		} else {
			friends = decorated
		}
	}

	blocked := make(map[string]bool)
	for _, id := range sess.Blocked() {
		blocked[id] = true
	}

	now := h.now()
	views := make([]friendView, 0, len(friends))
	for _, f := range friends {
		f.IsBlocked = blocked[f.ID]
		views = append(views, friendView{Friend: f, LastActiveLabel: f.LastActiveLabel(now)})
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"friends": views,
	})
}

// ListRequests returns pending requests addressed to the viewer
func (h *FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	marker, ok := identity.MarkerFrom(r.Context())
	if !ok {
		Unauthorized(w, r, identity.ErrUnauthenticated)
		return
	}

	requests, err := h.friends.Requests(r.Context(), marker.UserID)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
	})
}

// SendRequest invites another account by email
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	marker, ok := identity.MarkerFrom(r.Context())
	if !ok {
		Unauthorized(w, r, identity.ErrUnauthenticated)
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	request, err := h.friends.SendRequest(r.Context(), marker.UserID, req.Email)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, request)
}

// RespondToRequest accepts or rejects a pending request; the decision comes
// from the last path segment
func (h *FriendHandler) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	marker, ok := identity.MarkerFrom(r.Context())
	if !ok {
		Unauthorized(w, r, identity.ErrUnauthenticated)
		return
	}

	decision, err := friend.ParseDecision(chi.URLParam(r, "decision"))
	if err != nil {
		respondWithDomainError(w, r, h.logger, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	if err := h.friends.Respond(r.Context(), marker.UserID, chi.URLParam(r, "id"), decision); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": string(decision) + "ed"})
}

// BlockUser hides every Spot by the user from the viewer
func (h *FriendHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	if err := sess.Block(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"blocked": sess.Blocked()})
}

// UnblockUser lifts a block
func (h *FriendHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	if err := sess.Unblock(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"blocked": sess.Blocked()})
}

// Heartbeat marks the viewer online
func (h *FriendHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	marker, ok := identity.MarkerFrom(r.Context())
	if !ok {
		Unauthorized(w, r, identity.ErrUnauthenticated)
		return
	}
	if h.presence == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.presence.Heartbeat(r.Context(), marker.UserID); err != nil {
		respondWithDomainError(w, r, h.logger, fmt.Errorf("error recording heartbeat: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
