package handler

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/service"
)

// AuthHandler serves the Google login flow.
type AuthHandler struct {
	auth     *service.AuthService
	resolver admission.Authenticator
	logger   *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, resolver admission.Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, resolver: resolver, logger: logger}
}

// GoogleLogin handles GET /auth/google: issue a state and bounce to the
// provider's consent screen.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	loginURL, err := h.auth.LoginURL()
	if err != nil {
		h.logger.Error("failed to build login url", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	_, token, err := h.auth.HandleCallback(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			writeError(w, http.StatusForbidden, "invalid or expired login state")
			return
		}
		h.logger.Error("oauth callback failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "login failed")
		return
	}

	http.Redirect(w, r, "/auth/success?token="+url.QueryEscape(token), http.StatusFound)
}

type sessionSummary struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// Success handles GET /auth/success?token= and echoes a validated session
// summary the client can store.
func (h *AuthHandler) Success(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}

	rc := h.resolver.Resolve(r.Context(), token)
	if !rc.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "invalid or expired session")
		return
	}

	writeSuccess(w, http.StatusOK, sessionSummary{
		Token:  token,
		UserID: rc.UserID,
		Role:   string(rc.Role),
	}, "login successful")
}
