// internal/server/handlers/respond.go

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"spotit/internal/adapter/auth"
	"spotit/internal/domain/friend"
	"spotit/internal/domain/identity"
	"spotit/internal/domain/spot"
)

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithDomainError maps engine errors to status codes. Server errors
// are logged and their detail is not exposed.
func respondWithDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, code, http.StatusText(code))
		return
	}
	respondWithError(w, code, err.Error())
}

// StatusFor returns the HTTP status for an error
func StatusFor(err error) int {
	switch {
	case errors.Is(err, spot.ErrInvalidCoordinate),
		errors.Is(err, spot.ErrInvalidDuration),
		errors.Is(err, spot.ErrInvalidSpot),
		errors.Is(err, auth.ErrInvalidSignup),
		errors.Is(err, friend.ErrSelfRequest),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, spot.ErrNotFound),
		errors.Is(err, friend.ErrRequestNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks malformed request bodies and parameters
var errBadRequest = errors.New("bad request")

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	return nil
}

// Unauthorized is the error callback of the authentication middleware
func Unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, http.StatusUnauthorized, err.Error())
}
