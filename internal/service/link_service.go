package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/config"
	"shortlink/internal/models"
	"shortlink/internal/repository"
)

var (
	// ErrInvalidURL means the destination failed validation.
	ErrInvalidURL = errors.New("service: invalid destination url")
	// ErrURLTooLong means the destination exceeds the configured maximum.
	ErrURLTooLong = errors.New("service: destination url too long")
	// ErrCustomCodeForbidden means a guest asked for a custom short code.
	ErrCustomCodeForbidden = errors.New("service: custom codes require login")
	// ErrInvalidCustomCode means the requested code has a bad shape.
	ErrInvalidCustomCode = errors.New("service: invalid custom code")
	// ErrCodeTaken means the requested custom code already exists.
	ErrCodeTaken = errors.New("service: short code already taken")
	// ErrInvalidExpiry means the requested expiry is unparseable or not in
	// the future.
	ErrInvalidExpiry = errors.New("service: expiry must be in the future")
	// ErrQuotaExceeded means the guest hit the daily creation cap.
	ErrQuotaExceeded = errors.New("service: guest daily quota exceeded")
	// ErrLinkNotFound means no live link matches the short code.
	ErrLinkNotFound = errors.New("service: link not found")
)

const (
	codeAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts  = 5
	asyncWriteBudget = 5 * time.Second
)

var customCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// LinkStore is the persistence surface the link service needs.
type LinkStore interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error)
	IncrementClicks(ctx context.Context, shortCode string) error
	ListByUser(ctx context.Context, userID int64) ([]models.Link, error)
	SetFavourite(ctx context.Context, shortCode string, userID int64, favourite bool) (bool, error)
	Delete(ctx context.Context, shortCode string, userID int64) (bool, error)
}

// GuestGate decides whether a guest may create one more link today.
type GuestGate interface {
	Allow(ctx context.Context, identifier string) bool
}

// RedirectCache is an optional read-through cache for redirects.
type RedirectCache interface {
	GetURL(ctx context.Context, shortCode string) (string, bool)
	SetURL(ctx context.Context, shortCode, originalURL string, expiresAt time.Time)
	Invalidate(ctx context.Context, shortCode string)
}

// ClickSink receives fire-and-forget click events for analytics.
type ClickSink interface {
	RecordClick(shortCode, clientIP string)
}

// LinkService implements link creation, redirect resolution and the
// per-user dashboard operations.
type LinkService struct {
	links  LinkStore
	quota  GuestGate
	cache  RedirectCache // may be nil
	clicks ClickSink     // may be nil
	app    config.AppConfig
	logger *zap.Logger
}

func NewLinkService(links LinkStore, quota GuestGate, cache RedirectCache, clicks ClickSink, app config.AppConfig, logger *zap.Logger) *LinkService {
	return &LinkService{
		links:  links,
		quota:  quota,
		cache:  cache,
		clicks: clicks,
		app:    app,
		logger: logger,
	}
}

// Shorten validates the destination, enforces the guest quota and inserts
// the link. Guests get a random code; logged-in users may request one.
// A zero expiresAt means the configured default TTL; a non-zero value
// must lie in the future.
func (s *LinkService) Shorten(ctx context.Context, rc admission.RequestContext, clientIP, rawURL, customCode string, expiresAt time.Time) (*models.Link, error) {
	destination, err := s.validateDestination(rawURL)
	if err != nil {
		return nil, err
	}

	if customCode != "" {
		if !rc.IsAuthenticated {
			return nil, ErrCustomCodeForbidden
		}
		if !customCodePattern.MatchString(customCode) {
			return nil, ErrInvalidCustomCode
		}
	}

	if expiresAt.IsZero() {
		expiresAt = time.Now().AddDate(0, 0, s.app.LinkTTLDays)
	} else if !expiresAt.After(time.Now()) {
		return nil, ErrInvalidExpiry
	}

	link := &models.Link{
		OriginalURL: destination,
		ExpiresAt:   expiresAt,
	}
	if rc.IsAuthenticated {
		userID := rc.UserID
		link.UserID = &userID
	} else {
		link.GuestIdentifier = clientIP
		if !s.quota.Allow(ctx, clientIP) {
			return nil, ErrQuotaExceeded
		}
	}

	if customCode != "" {
		link.ShortCode = customCode
		if err := s.links.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, ErrCodeTaken
			}
			return nil, err
		}
		return link, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateShortCode(s.app.ShortCodeLength)
		if err != nil {
			return nil, err
		}
		link.ShortCode = code

		err = s.links.Create(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		s.logger.Debug("short code collision, retrying", zap.String("code", code))
	}
	return nil, fmt.Errorf("service: exhausted %d short code attempts", maxCodeAttempts)
}

// Resolve maps a short code to its destination and records the click in
// the background. Expired and unknown codes return ErrLinkNotFound.
func (s *LinkService) Resolve(ctx context.Context, shortCode, clientIP string) (string, error) {
	if s.cache != nil {
		if destination, ok := s.cache.GetURL(ctx, shortCode); ok {
			s.recordClick(shortCode, clientIP)
			return destination, nil
		}
	}

	link, err := s.links.GetByShortCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrLinkNotFound
		}
		return "", err
	}

	if s.cache != nil {
		s.cache.SetURL(ctx, shortCode, link.OriginalURL, link.ExpiresAt)
	}
	s.recordClick(shortCode, clientIP)
	return link.OriginalURL, nil
}

// ListForUser returns the user's links for the dashboard.
func (s *LinkService) ListForUser(ctx context.Context, userID int64) ([]models.Link, error) {
	return s.links.ListByUser(ctx, userID)
}

// SetFavourite flips the favourite flag on an owned link.
func (s *LinkService) SetFavourite(ctx context.Context, shortCode string, userID int64, favourite bool) error {
	ok, err := s.links.SetFavourite(ctx, shortCode, userID, favourite)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLinkNotFound
	}
	return nil
}

// Delete removes an owned link and drops it from the redirect cache.
func (s *LinkService) Delete(ctx context.Context, shortCode string, userID int64) error {
	ok, err := s.links.Delete(ctx, shortCode, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLinkNotFound
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, shortCode)
	}
	return nil
}

// ShortURL renders the public URL for a short code.
func (s *LinkService) ShortURL(shortCode string) string {
	return strings.TrimSuffix(s.app.BaseURL, "/") + "/" + shortCode
}

func (s *LinkService) recordClick(shortCode, clientIP string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteBudget)
		defer cancel()
		if err := s.links.IncrementClicks(ctx, shortCode); err != nil {
			s.logger.Warn("failed to increment clicks",
				zap.String("short_code", shortCode), zap.Error(err))
		}
	}()
	if s.clicks != nil {
		s.clicks.RecordClick(shortCode, clientIP)
	}
}

func (s *LinkService) validateDestination(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	if len(trimmed) > s.app.MaxURLLength {
		return "", ErrURLTooLong
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ErrInvalidURL
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return trimmed, nil
}

func generateShortCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}
	out := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("service: generating short code: %w", err)
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
