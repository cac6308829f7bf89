// internal/domain/spot/model.go

package spot

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"spotit/internal/domain/geo"
)

// TempIDPrefix marks client-generated ids of Spots the store has not confirmed.
// Server ids are UUIDs and never carry it.
const TempIDPrefix = "tmp-"

// Default radius bounds offered by the map client, in meters
const (
	MinRadiusMeters     = 10.0
	MaxRadiusMeters     = 500.0
	DefaultRadiusMeters = 100.0
)

// Reply is an append-only message attached to exactly one Spot
type Reply struct {
	ID        string    `json:"id"`
	SpotID    string    `json:"spot_id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Spot is a geotagged message visible to recipients and to anyone inside its
// geofence until it expires
type Spot struct {
	ID            string    `json:"id"`
	CreatorID     string    `json:"creator_id"`
	Message       string    `json:"message"`
	Location      geo.Point `json:"location"`
	Radius        float64   `json:"radius"`
	DurationHours int       `json:"duration_hours"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Recipients    []string  `json:"recipients"`
	Replies       []Reply   `json:"replies"`
}

// Draft is the payload a viewer submits when dropping a Spot on the map
type Draft struct {
	Message       string    `json:"message"`
	Location      geo.Point `json:"location"`
	Radius        float64   `json:"radius"`
	DurationHours int       `json:"duration_hours"`
	Recipients    []string  `json:"recipients"`
}

// NewTempID returns an id in the optimistic namespace
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id belongs to an unconfirmed optimistic Spot
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// IsTemporary reports whether the Spot is still awaiting store confirmation
func (s Spot) IsTemporary() bool {
	return IsTempID(s.ID)
}

// IsForever reports whether the Spot was created with the forever sentinel
func (s Spot) IsForever() bool {
	return s.DurationHours == ForeverHours
}

// HasRecipient reports whether userID was explicitly granted visibility
func (s Spot) HasRecipient(userID string) bool {
	for _, r := range s.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

// HasReply reports whether a reply with the given id is already attached
func (s Spot) HasReply(replyID string) bool {
	for _, r := range s.Replies {
		if r.ID == replyID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with the engine
func (s Spot) Clone() Spot {
	c := s
	if s.Recipients != nil {
		c.Recipients = append([]string(nil), s.Recipients...)
	}
	if s.Replies != nil {
		c.Replies = append([]Reply(nil), s.Replies...)
	}
	return c
}

// CloneAll deep copies a slice of Spots
func CloneAll(spots []Spot) []Spot {
	out := make([]Spot, len(spots))
	for i, s := range spots {
		out[i] = s.Clone()
	}
	return out
}
