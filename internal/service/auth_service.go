package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shortlink/internal/auth"
	"shortlink/internal/identity"
	"shortlink/internal/models"
	"shortlink/internal/repository"
)

// ErrInvalidState means the OAuth callback carried an unknown, expired or
// replayed state parameter.
var ErrInvalidState = errors.New("service: invalid oauth state")

// UserStore is the persistence surface the auth service needs for users.
type UserStore interface {
	FindByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// SessionStore persists login sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
}

// AuthService drives the Google login flow: issuing state, exchanging the
// callback for a profile and minting a bearer-token session.
type AuthService struct {
	users          UserStore
	sessions       SessionStore
	states         *auth.OAuthStateStore
	provider       identity.Provider
	sessionTTLDays int
	logger         *zap.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, states *auth.OAuthStateStore, provider identity.Provider, sessionTTLDays int, logger *zap.Logger) *AuthService {
	if sessionTTLDays <= 0 {
		sessionTTLDays = 30
	}
	return &AuthService{
		users:          users,
		sessions:       sessions,
		states:         states,
		provider:       provider,
		sessionTTLDays: sessionTTLDays,
		logger:         logger,
	}
}

// LoginURL issues a fresh single-use state and builds the provider
// redirect URL around it.
func (s *AuthService) LoginURL() (string, error) {
	state, err := s.states.Issue()
	if err != nil {
		return "", fmt.Errorf("service: issuing oauth state: %w", err)
	}
	return s.provider.AuthCodeURL(state), nil
}

// HandleCallback validates the state, authenticates the code with the
// provider, finds or creates the user and mints a session token.
func (s *AuthService) HandleCallback(ctx context.Context, state, code string) (*models.User, string, error) {
	if !s.states.Consume(state) {
		return nil, "", ErrInvalidState
	}

	profile, err := s.provider.Authenticate(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("service: provider authentication: %w", err)
	}

	user, err := s.findOrCreateUser(ctx, profile)
	if err != nil {
		return nil, "", err
	}

	token := fmt.Sprintf("sess_usr_%d_%s", user.ID, uuid.NewString())
	session := &models.Session{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().AddDate(0, 0, s.sessionTTLDays),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("service: persisting session: %w", err)
	}

	s.logger.Info("user logged in",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email))
	return user, token, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, profile *identity.Profile) (*models.User, error) {
	user, err := s.users.FindByGoogleID(ctx, profile.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("service: looking up user: %w", err)
	}

	user = &models.User{
		GoogleID: profile.Subject,
		Email:    profile.Email,
		Name:     profile.Name,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service: creating user: %w", err)
	}
	s.logger.Info("new user registered", zap.Int64("user_id", user.ID))
	return user, nil
}
