package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"shortlink/internal/auth"
	"shortlink/internal/identity"
	"shortlink/internal/models"
	"shortlink/internal/repository"
)

type fakeUserStore struct {
	bySubject map[string]*models.User
	nextID    int64
	creations int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{bySubject: map[string]*models.User{}, nextID: 1}
}

func (f *fakeUserStore) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	if u, ok := f.bySubject[googleID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	user.ID = f.nextID
	f.nextID++
	f.creations++
	copied := *user
	f.bySubject[user.GoogleID] = &copied
	return nil
}

type fakeSessionStore struct {
	created []models.Session
	err     error
}

func (f *fakeSessionStore) Create(ctx context.Context, session *models.Session) error {
	if f.err != nil {
		return f.err
	}
	session.ID = int64(len(f.created) + 1)
	f.created = append(f.created, *session)
	return nil
}

type fakeProvider struct {
	profile *identity.Profile
	err     error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (f *fakeProvider) Authenticate(ctx context.Context, code string) (*identity.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func newAuthFixture(users *fakeUserStore, sessions *fakeSessionStore, provider identity.Provider) (*AuthService, *auth.OAuthStateStore) {
	states := auth.NewOAuthStateStore(auth.DefaultStateTTL)
	svc := NewAuthService(users, sessions, states, provider, 30, zap.NewNop())
	return svc, states
}

func TestLoginURLCarriesIssuedState(t *testing.T) {
	svc, states := newAuthFixture(newFakeUserStore(), &fakeSessionStore{}, &fakeProvider{})

	loginURL, err := svc.LoginURL()
	if err != nil {
		t.Fatalf("login url: %v", err)
	}
	state := strings.TrimPrefix(loginURL, "https://provider.test/authorize?state=")
	if state == "" || state == loginURL {
		t.Fatalf("no state in %q", loginURL)
	}
	if !states.Consume(state) {
		t.Fatal("the state in the URL must be consumable exactly once")
	}
}

func TestHandleCallbackCreatesUserAndSession(t *testing.T) {
	users := newFakeUserStore()
	sessions := &fakeSessionStore{}
	provider := &fakeProvider{profile: &identity.Profile{Subject: "goog-1", Email: "a@b.test", Name: "A"}}
	svc, states := newAuthFixture(users, sessions, provider)

	state, err := states.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	user, token, err := svc.HandleCallback(context.Background(), state, "code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if user.Email != "a@b.test" {
		t.Fatalf("got user %+v", user)
	}
	if !strings.HasPrefix(token, "sess_usr_1_") {
		t.Fatalf("token %q lacks the expected shape", token)
	}
	if len(sessions.created) != 1 || sessions.created[0].Token != token {
		t.Fatalf("session not persisted: %+v", sessions.created)
	}
}

func TestHandleCallbackReusesExistingUser(t *testing.T) {
	users := newFakeUserStore()
	provider := &fakeProvider{profile: &identity.Profile{Subject: "goog-1", Email: "a@b.test", Name: "A"}}
	svc, states := newAuthFixture(users, &fakeSessionStore{}, provider)

	for i := 0; i < 2; i++ {
		state, _ := states.Issue()
		if _, _, err := svc.HandleCallback(context.Background(), state, "code"); err != nil {
			t.Fatalf("callback %d: %v", i, err)
		}
	}
	if users.creations != 1 {
		t.Fatalf("user created %d times, want 1", users.creations)
	}
}

func TestHandleCallbackRejectsReplayedState(t *testing.T) {
	provider := &fakeProvider{profile: &identity.Profile{Subject: "g", Email: "e@x.test"}}
	svc, states := newAuthFixture(newFakeUserStore(), &fakeSessionStore{}, provider)

	state, _ := states.Issue()
	if _, _, err := svc.HandleCallback(context.Background(), state, "code"); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	_, _, err := svc.HandleCallback(context.Background(), state, "code")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("replay: got %v, want ErrInvalidState", err)
	}
}

func TestHandleCallbackUnknownState(t *testing.T) {
	svc, _ := newAuthFixture(newFakeUserStore(), &fakeSessionStore{}, &fakeProvider{})

	_, _, err := svc.HandleCallback(context.Background(), "never-issued", "code")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestHandleCallbackProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("exchange refused")}
	svc, states := newAuthFixture(newFakeUserStore(), &fakeSessionStore{}, provider)

	state, _ := states.Issue()
	_, _, err := svc.HandleCallback(context.Background(), state, "code")
	if err == nil || errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want a wrapped provider error", err)
	}
}
