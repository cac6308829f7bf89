// internal/service/session/collaborators.go

package session

import (
	"context"
	"time"

	"spotit/internal/domain/geo"
	"spotit/internal/domain/spot"
)

// Sink shows a short message to a user. Delivery is fire-and-forget.
type Sink interface {
	Show(ctx context.Context, userID, message string, severity spot.Severity)
}

// BlockStore persists which creators a viewer has blocked
type BlockStore interface {
	// BlockedIDs returns the creator ids blocked by viewerID
	BlockedIDs(ctx context.Context, viewerID string) ([]string, error)

	// Block records that blockerID no longer wants to see blockedID's Spots
	Block(ctx context.Context, blockerID, blockedID string) error

	// Unblock removes a block; removing a missing block is not an error
	Unblock(ctx context.Context, blockerID, blockedID string) error
}

// Publisher emits lifecycle events on the event bus
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event types published on the bus
const (
	EventSpotCreated = "spot.created"
	EventSpotReplied = "spot.replied"
	EventSpotDeleted = "spot.deleted"
)

// Event describes a confirmed change to a Spot
type Event struct {
	Type       string     `json:"type"`
	SpotID     string     `json:"spot_id"`
	ActorID    string     `json:"actor_id"`
	CreatorID  string     `json:"creator_id,omitempty"`
	Recipients []string   `json:"recipients,omitempty"`
	Location   *geo.Point `json:"location,omitempty"`
	Radius     float64    `json:"radius,omitempty"`
	ReplyID    string     `json:"reply_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Display is the notification currently surfaced to the viewer
type Display struct {
	Notification spot.Notification `json:"notification"`
	Spot         spot.Spot         `json:"spot"`
}
