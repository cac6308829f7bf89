// internal/server/handlers/notification.go

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"spotit/internal/domain/spot"
)

// NotificationHandler exposes the viewer's notification queue
type NotificationHandler struct {
	sessions Sessions
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(sessions Sessions, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

type displayResponse struct {
	Notification *spot.Notification `json:"notification,omitempty"`
	Spot         spot.Spot          `json:"spot"`
}

// NextNotification returns the surfaced Spot, or 204 when there is nothing
// to show
func (h *NotificationHandler) NextNotification(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	display, ok, err := sess.NextNotification(h.now())
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := displayResponse{Spot: display.Spot}
	if display.Notification.ID != "" {
		n := display.Notification
		resp.Notification = &n
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// DismissNotification closes the surfaced Spot
func (h *NotificationHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	sess.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

// ListNotifications returns the viewer's notification history and how many
// of them are still unread
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	notifications := sess.Notifications()
	if notifications == nil {
		notifications = []spot.Notification{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unread":        sess.Unread(),
	})
}
