package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/service"
)

var shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// LinkHandler serves link creation, redirects and the dashboard API.
type LinkHandler struct {
	links  *service.LinkService
	logger *zap.Logger
}

func NewLinkHandler(links *service.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, logger: logger}
}

type shortenRequest struct {
	LongURL string `json:"long_url"`
}

type linkResponse struct {
	ShortURL    string    `json:"short_url"`
	Code        string    `json:"code"`
	OriginalURL string    `json:"original_url"`
	IsFavourite bool      `json:"is_favourite"`
	Clicks      int64     `json:"clicks"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Shorten handles POST /shorten.
func (h *LinkHandler) Shorten(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rc := admission.FromContext(r.Context())
	clientIP := admission.ClientIP(r)
	customCode := r.URL.Query().Get("custom_code")

	var expiresAt time.Time
	if raw := r.URL.Query().Get("expires_at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be an RFC 3339 timestamp")
			return
		}
		expiresAt = parsed
	}

	link, err := h.links.Shorten(r.Context(), rc, clientIP, req.LongURL, customCode, expiresAt)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidCustomCode), errors.Is(err, service.ErrInvalidExpiry):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrURLTooLong):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrCustomCodeForbidden):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, "daily link limit reached, try again tomorrow")
		case errors.Is(err, service.ErrCodeTaken):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("shorten failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create short link")
		}
		return
	}

	writeSuccess(w, http.StatusCreated, linkResponse{
		ShortURL:    h.links.ShortURL(link.ShortCode),
		Code:        link.ShortCode,
		OriginalURL: link.OriginalURL,
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
	}, "short link created")
}

// Redirect handles GET /{code}.
func (h *LinkHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !shortCodePattern.MatchString(code) {
		writeError(w, http.StatusNotFound, "short link not found")
		return
	}

	destination, err := h.links.Resolve(r.Context(), code, admission.ClientIP(r))
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			writeError(w, http.StatusNotFound, "short link not found")
			return
		}
		h.logger.Error("redirect failed", zap.String("code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve short link")
		return
	}

	http.Redirect(w, r, destination, http.StatusFound)
}

// List handles GET /api/links.
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	rc := admission.FromContext(r.Context())
	if !rc.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	links, err := h.links.ListForUser(r.Context(), rc.UserID)
	if err != nil {
		h.logger.Error("list links failed", zap.Int64("user_id", rc.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}

	out := make([]linkResponse, 0, len(links))
	for _, link := range links {
		out = append(out, linkResponse{
			ShortURL:    h.links.ShortURL(link.ShortCode),
			Code:        link.ShortCode,
			OriginalURL: link.OriginalURL,
			IsFavourite: link.IsFavourite,
			Clicks:      link.Clicks,
			ExpiresAt:   link.ExpiresAt,
			CreatedAt:   link.CreatedAt,
		})
	}
	writeSuccess(w, http.StatusOK, out, "")
}

type favouriteRequest struct {
	Code      string `json:"code"`
	Favourite bool   `json:"favourite"`
}

// Favourite handles POST /api/link/favourite.
func (h *LinkHandler) Favourite(w http.ResponseWriter, r *http.Request) {
	rc := admission.FromContext(r.Context())
	if !rc.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	var req favouriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.links.SetFavourite(r.Context(), req.Code, rc.UserID, req.Favourite); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			writeError(w, http.StatusNotFound, "no such link in your account")
			return
		}
		h.logger.Error("set favourite failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update link")
		return
	}
	writeSuccess(w, http.StatusOK, nil, "favourite updated")
}

// Delete handles DELETE /api/link?code=.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rc := admission.FromContext(r.Context())
	if !rc.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code query parameter required")
		return
	}

	if err := h.links.Delete(r.Context(), code, rc.UserID); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			writeError(w, http.StatusNotFound, "no such link in your account")
			return
		}
		h.logger.Error("delete link failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete link")
		return
	}
	writeSuccess(w, http.StatusOK, nil, "link deleted")
}
