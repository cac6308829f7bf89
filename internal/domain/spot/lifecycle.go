// internal/domain/spot/lifecycle.go

package spot

import (
	"fmt"
	"math"
	"strings"
	"time"

	"spotit/internal/domain/geo"
)

// ForeverHours is the canonical duration value meaning "never expires"
const ForeverHours = 999999

// ForeverYears is how far past creation a forever Spot expires. Every
// component computes and compares forever expiry through ComputeExpiry, so
// this is the only place the rule lives. It stays below year 9999 so the
// timestamp still encodes as RFC 3339.
const ForeverYears = 5000

// ComputeExpiry derives the expiry timestamp of a Spot
func ComputeExpiry(createdAt time.Time, durationHours int) (time.Time, error) {
	if err := ValidateDuration(durationHours); err != nil {
		return time.Time{}, err
	}

	if durationHours == ForeverHours {
		return createdAt.AddDate(ForeverYears, 0, 0), nil
	}

	return createdAt.Add(time.Duration(durationHours) * time.Hour), nil
}

// ValidateDuration rejects durations that are not positive or that exceed the
// largest finite duration
func ValidateDuration(durationHours int) error {
	if durationHours == ForeverHours {
		return nil
	}
	if durationHours <= 0 || durationHours > ForeverHours {
		return fmt.Errorf("%w: %d hours", ErrInvalidDuration, durationHours)
	}
	return nil
}

// IsActive reports whether the Spot is live at now. A Spot expires at the
// instant now equals ExpiresAt.
func IsActive(s Spot, now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// ValidateDraft checks a draft before any state is touched
func ValidateDraft(d Draft) error {
	if strings.TrimSpace(d.Message) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidSpot)
	}
	if err := geo.Validate(d.Location); err != nil {
		return err
	}
	if math.IsNaN(d.Radius) || math.IsInf(d.Radius, 0) || d.Radius <= 0 {
		return fmt.Errorf("%w: radius %v", ErrInvalidSpot, d.Radius)
	}
	return ValidateDuration(d.DurationHours)
}

// NewSpot builds a Spot from a validated draft, stamping creation and expiry
func NewSpot(d Draft, creatorID, id string, now time.Time) (Spot, error) {
	if creatorID == "" {
		return Spot{}, fmt.Errorf("%w: creator is empty", ErrInvalidSpot)
	}
	if err := ValidateDraft(d); err != nil {
		return Spot{}, err
	}

	expiresAt, err := ComputeExpiry(now, d.DurationHours)
	if err != nil {
		return Spot{}, err
	}

	return Spot{
		ID:            id,
		CreatorID:     creatorID,
		Message:       strings.TrimSpace(d.Message),
		Location:      d.Location,
		Radius:        d.Radius,
		DurationHours: d.DurationHours,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
		Recipients:    uniqueIDs(d.Recipients),
		Replies:       []Reply{},
	}, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
