// internal/server/handlers/spot.go

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"spotit/internal/domain/geo"
	"spotit/internal/domain/identity"
	"spotit/internal/domain/spot"
	"spotit/internal/service/reconcile"
	"spotit/internal/service/session"
)

// Sessions hands out the engine session of a signed-in viewer
type Sessions interface {
	Get(ctx context.Context, marker identity.Marker) (*session.Session, error)
}

// RadiusBounds limits the geofence radius a draft may ask for
type RadiusBounds struct {
	Default float64
	Min     float64
	Max     float64
}

// SpotHandler handles spot-related HTTP requests
type SpotHandler struct {
	sessions Sessions
	radius   RadiusBounds
	logger   *slog.Logger
	now      func() time.Time
}

// NewSpotHandler creates a new spot handler
func NewSpotHandler(sessions Sessions, radius RadiusBounds, logger *slog.Logger) *SpotHandler {
	return &SpotHandler{
		sessions: sessions,
		radius:   radius,
		logger:   logger,
		now:      time.Now,
	}
}

type spotsResponse struct {
	Spots []spot.Spot `json:"spots"`
	Mode  spot.Mode   `json:"mode"`
	Stale bool        `json:"stale"`
}

type mutationResponse struct {
	Spot   *spot.Spot  `json:"spot,omitempty"`
	Reply  *spot.Reply `json:"reply,omitempty"`
	Status string      `json:"status"`
}

// currentSession resolves the session of the authenticated viewer
func currentSession(r *http.Request, sessions Sessions) (*session.Session, error) {
	marker, ok := identity.MarkerFrom(r.Context())
	if !ok {
		return nil, identity.ErrUnauthenticated
	}
	return sessions.Get(r.Context(), marker)
}

// ListSpots returns the Spots visible in the requested mode. A failed sync
// still answers with the last known set, flagged stale.
func (h *SpotHandler) ListSpots(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	location, err := parseLocation(r)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	stale := false
	if err := sess.Sync(r.Context()); err != nil {
		if !errors.Is(err, spot.ErrSyncFailed) {
			respondWithDomainError(w, r, h.logger, err)
			return
		}
		stale = true
	}

	mode := spot.ParseMode(r.URL.Query().Get("mode"))
	spots, err := sess.Spots(mode, location, h.now())
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, spotsResponse{Spots: spots, Mode: mode, Stale: stale})
}

// RefreshSpots forces a reconciliation with the store
func (h *SpotHandler) RefreshSpots(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	stale := false
	if _, err := sess.Refresh(r.Context()); err != nil {
		if !errors.Is(err, spot.ErrSyncFailed) {
			respondWithDomainError(w, r, h.logger, err)
			return
		}
		stale = true
	}

	spots, err := sess.Spots(spot.ModeLive, nil, h.now())
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, spotsResponse{Spots: spots, Mode: spot.ModeLive, Stale: stale})
}

// GetSpot opens a visible Spot, making it the surfaced display
func (h *SpotHandler) GetSpot(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	display, err := sess.Open(chi.URLParam(r, "id"), h.now())
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, display.Spot)
}

// CreateSpot places a new Spot at the selected point
func (h *SpotHandler) CreateSpot(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	var draft spot.Draft
	if err := decodeJSON(r, &draft); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	if draft.Radius == 0 {
		draft.Radius = h.radius.Default
	}
	if draft.Radius < h.radius.Min || draft.Radius > h.radius.Max {
		respondWithDomainError(w, r, h.logger, fmt.Errorf(
			"%w: radius must be between %v and %v meters", spot.ErrInvalidSpot, h.radius.Min, h.radius.Max))
		return
	}

	created, outcome, err := sess.Create(r.Context(), draft)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, statusForOutcome(outcome, http.StatusCreated), mutationResponse{
		Spot:   &created,
		Status: outcome.String(),
	})
}

// DeleteSpot removes one of the viewer's Spots
func (h *SpotHandler) DeleteSpot(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	outcome, err := sess.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, statusForOutcome(outcome, http.StatusOK), mutationResponse{Status: outcome.String()})
}

// ReplyToSpot appends a reply to a Spot
func (h *SpotHandler) ReplyToSpot(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r, h.sessions)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	reply, outcome, err := sess.Reply(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	resp := mutationResponse{Status: outcome.String()}
	if outcome != reconcile.Gone {
		resp.Reply = &reply
	}
	respondWithJSON(w, statusForOutcome(outcome, http.StatusCreated), resp)
}

// statusForOutcome answers 202 for mutations still waiting on the store.
// Gone is a satisfied request, not an error.
func statusForOutcome(outcome reconcile.Outcome, applied int) int {
	switch outcome {
	case reconcile.Deferred:
		return http.StatusAccepted
	case reconcile.Gone:
		return http.StatusOK
	default:
		return applied
	}
}

// parseLocation reads the optional lat/lng query parameters
func parseLocation(r *http.Request) (*geo.Point, error) {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude", spot.ErrInvalidCoordinate)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude", spot.ErrInvalidCoordinate)
	}

	p := geo.Point{Latitude: lat, Longitude: lng}
	if err := geo.Validate(p); err != nil {
		return nil, err
	}
	return &p, nil
}
