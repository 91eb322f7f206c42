package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/licensebot/licensebot/internal/http/response"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/licensebot/licensebot/internal/security"
	"github.com/licensebot/licensebot/internal/service"
)

type AuthHandler struct {
	sessions     service.SessionServiceInterface
	cookieSecure bool
}

func NewAuthHandler(sessions service.SessionServiceInterface, cookieSecure bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, cookieSecure: cookieSecure}
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.Audit(r, "auth.login", "outcome", "bad_request")
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password")
		return
	}
	token, _, err := h.sessions.Login(r.Context(), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			observability.Audit(r, "auth.login", "outcome", "invalid_password")
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password")
			return
		}
		slog.ErrorContext(r.Context(), "login failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to create session")
		return
	}
	security.SetSessionCookie(w, token, h.sessions.TTL(), h.cookieSecure)
	observability.Audit(r, "auth.login", "outcome", "success")
	response.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), security.GetCookie(r, security.SessionCookieName)); err != nil {
		// The cookie is cleared regardless; the server-side record expires on its own.
		slog.ErrorContext(r.Context(), "delete session on logout", "error", err)
	}
	security.ClearSessionCookie(w, h.cookieSecure)
	observability.Audit(r, "auth.logout")
	response.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	_, err := h.sessions.Authenticate(r.Context(), security.GetCookie(r, security.SessionCookieName))
	if err != nil && !errors.Is(err, service.ErrUnauthenticated) {
		slog.ErrorContext(r.Context(), "check auth", "error", err)
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"authenticated": err == nil})
}
