// internal/domain/friend/friend.go

package friend

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrRequestNotFound is returned when a friend request does not exist or
	// is not addressed to the caller
	ErrRequestNotFound = errors.New("friend request not found")

	// ErrSelfRequest is returned when a user tries to befriend or block themselves
	ErrSelfRequest = errors.New("cannot target yourself")
)

// Status is a friend's presence
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// RequestStatus is the state of a friend request. Only pending requests exist;
// accepting or rejecting one deletes it.
type RequestStatus string

const RequestPending RequestStatus = "pending"

// Friend is another user the viewer is connected to
type Friend struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	Avatar     string     `json:"avatar,omitempty"`
	Status     Status     `json:"status"`
	LastActive *time.Time `json:"last_active,omitempty"`
	IsBlocked  bool       `json:"is_blocked"`
}

// FriendRequest is a pending invitation addressed to the viewer
type FriendRequest struct {
	ID        string        `json:"id"`
	FromID    string        `json:"from_id"`
	ToID      string        `json:"to_id"`
	Name      string        `json:"name"`
	Avatar    string        `json:"avatar,omitempty"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Decision is the recipient's answer to a friend request
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// ParseDecision validates a decision string
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case Accept, Reject:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// WithPresence sets Status and LastActive from the last heartbeat. Online
// friends carry no LastActive.
func (f Friend) WithPresence(online bool, lastSeen time.Time) Friend {
	if online {
		f.Status = StatusOnline
		f.LastActive = nil
		return f
	}

	f.Status = StatusOffline
	if lastSeen.IsZero() {
		f.LastActive = nil
	} else {
		seen := lastSeen
		f.LastActive = &seen
	}
	return f
}

// LastActiveLabel renders how long ago an offline friend was seen
func (f Friend) LastActiveLabel(now time.Time) string {
	if f.Status == StatusOnline {
		return "Online now"
	}
	if f.LastActive == nil {
		return "Unknown"
	}
	return FormatLastActive(*f.LastActive, now)
}

// FormatLastActive renders the elapsed time between seen and now, rounded to
// the nearest minute, hour or day
func FormatLastActive(seen, now time.Time) string {
	if seen.IsZero() {
		return "Unknown"
	}

	mins := math.Round(now.Sub(seen).Minutes())
	if mins < 1 {
		return "Just now"
	}
	if mins < 60 {
		return fmt.Sprintf("%dm ago", int(mins))
	}

	hours := math.Round(mins / 60)
	if hours < 24 {
		return fmt.Sprintf("%dh ago", int(hours))
	}

	days := math.Round(hours / 24)
	return fmt.Sprintf("%dd ago", int(days))
}
