// internal/domain/spot/raw.go

package spot

import (
	"fmt"
	"math"
	"strings"
	"time"

	"spotit/internal/domain/geo"
)

// RawReply is a reply row as returned by the storage collaborator
type RawReply struct {
	ID        string
	SpotID    string
	UserID    string
	Message   string
	CreatedAt time.Time
}

// RawSpot is an untyped spot row as returned by the storage collaborator.
// Nullable columns are pointers.
type RawSpot struct {
	ID            string
	CreatorID     string
	Message       string
	Latitude      *float64
	Longitude     *float64
	Radius        *float64
	DurationHours *int
	CreatedAt     *time.Time
	ExpiresAt     *time.Time
	Recipients    []string
	Replies       []RawReply
}

// ParseRaw is the one boundary where storage rows become Spots. Rows missing
// identity or timing fields fail with ErrInvalidSpot, rows with unusable
// coordinates fail with ErrInvalidCoordinate.
func ParseRaw(raw RawSpot) (Spot, error) {
	if raw.ID == "" || raw.CreatorID == "" {
		return Spot{}, fmt.Errorf("%w: row is missing id or creator", ErrInvalidSpot)
	}
	if strings.TrimSpace(raw.Message) == "" {
		return Spot{}, fmt.Errorf("%w: spot %s has an empty message", ErrInvalidSpot, raw.ID)
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return Spot{}, fmt.Errorf("%w: spot %s has no location", ErrInvalidCoordinate, raw.ID)
	}

	location := geo.Point{Latitude: *raw.Latitude, Longitude: *raw.Longitude}
	if err := geo.Validate(location); err != nil {
		return Spot{}, fmt.Errorf("spot %s: %w", raw.ID, err)
	}

	if raw.Radius == nil || math.IsNaN(*raw.Radius) || math.IsInf(*raw.Radius, 0) || *raw.Radius <= 0 {
		return Spot{}, fmt.Errorf("%w: spot %s has no finite positive radius", ErrInvalidSpot, raw.ID)
	}
	if raw.CreatedAt == nil || raw.CreatedAt.IsZero() {
		return Spot{}, fmt.Errorf("%w: spot %s has no creation time", ErrInvalidSpot, raw.ID)
	}
	if raw.DurationHours == nil {
		return Spot{}, fmt.Errorf("%w: spot %s has no duration", ErrInvalidDuration, raw.ID)
	}

	expiresAt, err := ComputeExpiry(*raw.CreatedAt, *raw.DurationHours)
	if err != nil {
		return Spot{}, fmt.Errorf("spot %s: %w", raw.ID, err)
	}
	if raw.ExpiresAt != nil && !raw.ExpiresAt.IsZero() && raw.ExpiresAt.Before(*raw.CreatedAt) {
		return Spot{}, fmt.Errorf("%w: spot %s expires before it was created", ErrInvalidSpot, raw.ID)
	}

	s := Spot{
		ID:            raw.ID,
		CreatorID:     raw.CreatorID,
		Message:       raw.Message,
		Location:      location,
		Radius:        *raw.Radius,
		DurationHours: *raw.DurationHours,
		CreatedAt:     *raw.CreatedAt,
		ExpiresAt:     expiresAt,
		Recipients:    uniqueIDs(raw.Recipients),
		Replies:       make([]Reply, 0, len(raw.Replies)),
	}

	// A stored expiry keeps the store's precision for timed Spots. Forever
	// Spots always take the canonical far-future expiry.
	if raw.ExpiresAt != nil && !raw.ExpiresAt.IsZero() && !s.IsForever() {
		s.ExpiresAt = *raw.ExpiresAt
	}

	for _, r := range raw.Replies {
		if r.ID == "" || s.HasReply(r.ID) {
			continue
		}
		s.Replies = append(s.Replies, Reply{
			ID:        r.ID,
			SpotID:    s.ID,
			UserID:    r.UserID,
			Message:   r.Message,
			CreatedAt: r.CreatedAt,
		})
	}

	return s, nil
}
