// internal/domain/spot/errors.go

package spot

import (
	"errors"

	"spotit/internal/domain/geo"
)

var (
	// ErrInvalidCoordinate is an alias so callers can match coordinate errors
	// without importing the geo package
	ErrInvalidCoordinate = geo.ErrInvalidCoordinate

	// ErrInvalidDuration is returned for non-positive or oversized durations
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidSpot is returned for drafts or rows missing required fields
	ErrInvalidSpot = errors.New("invalid spot")

	// ErrNotFound is returned when operating on a Spot that does not exist
	ErrNotFound = errors.New("spot not found")

	// ErrSyncFailed signals that the remote snapshot could not be fetched
	ErrSyncFailed = errors.New("sync failed")
)
