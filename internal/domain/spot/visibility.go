// internal/domain/spot/visibility.go

package spot

import (
	"sort"
	"time"

	"spotit/internal/domain/geo"
)

// Mode selects which visibility rules apply
type Mode string

const (
	// ModeLive is the map view: active Spots the viewer may see
	ModeLive Mode = "live"

	// ModeArchive is the "my spots" view: the viewer's own Spots, expired or not
	ModeArchive Mode = "archive"
)

// ParseMode maps a query value to a Mode, defaulting to live
func ParseMode(s string) Mode {
	if Mode(s) == ModeArchive {
		return ModeArchive
	}
	return ModeLive
}

// Viewer is the user a visibility query is evaluated for. Location is nil
// when the client has not shared a position.
type Viewer struct {
	ID       string
	Location *geo.Point
}

// VisibleSpots returns the Spots in all the viewer may see, newest first.
// Blocking applies immediately to every Spot by a blocked creator.
func VisibleSpots(all []Spot, viewer Viewer, now time.Time, blockedCreatorIDs []string, mode Mode) ([]Spot, error) {
	if viewer.Location != nil {
		if err := geo.Validate(*viewer.Location); err != nil {
			return nil, err
		}
	}

	blocked := make(map[string]struct{}, len(blockedCreatorIDs))
	for _, id := range blockedCreatorIDs {
		blocked[id] = struct{}{}
	}

	visible := make([]Spot, 0, len(all))
	for _, s := range all {
		if _, ok := blocked[s.CreatorID]; ok && s.CreatorID != viewer.ID {
			continue
		}

		switch mode {
		case ModeArchive:
			if s.CreatorID != viewer.ID {
				continue
			}
		default:
			if !IsActive(s, now) {
				continue
			}
			ok, err := audienceIncludes(s, viewer)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		visible = append(visible, s.Clone())
	}

	SortNewestFirst(visible)
	return visible, nil
}

// audienceIncludes reports whether the viewer is the creator, a recipient,
// or standing inside the geofence
func audienceIncludes(s Spot, viewer Viewer) (bool, error) {
	if s.CreatorID == viewer.ID || s.HasRecipient(viewer.ID) {
		return true, nil
	}
	if viewer.Location == nil {
		return false, nil
	}
	return geo.WithinRadius(*viewer.Location, s.Location, s.Radius)
}

// SortNewestFirst orders Spots by creation time descending, breaking ties by
// id so the order never depends on input order
func SortNewestFirst(spots []Spot) {
	sort.SliceStable(spots, func(i, j int) bool {
		if !spots[i].CreatedAt.Equal(spots[j].CreatedAt) {
			return spots[i].CreatedAt.After(spots[j].CreatedAt)
		}
		return spots[i].ID < spots[j].ID
	})
}
