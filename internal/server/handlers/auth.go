// internal/server/handlers/auth.go

package handlers

import (
	"log/slog"
	"net/http"

	"spotit/internal/domain/identity"
)

// AuthHandler handles sign up, sign in and the current account
type AuthHandler struct {
	accounts identity.Service
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts identity.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string           `json:"token"`
	Account identity.Account `json:"account"`
}

// SignUp registers an account and returns its token
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	account, token, err := h.accounts.SignUp(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Account created", "user", account.ID)
	respondWithJSON(w, http.StatusCreated, authResponse{Token: token, Account: account})
}

// SignIn exchanges credentials for a token
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	account, token, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, authResponse{Token: token, Account: account})
}

// Me returns the signed-in account
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.CurrentUser(r.Context())
	if err != nil {
		Unauthorized(w, r, err)
		return
	}

	account, err := h.accounts.Account(r.Context(), userID)
	if err != nil {
		respondWithDomainError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}
