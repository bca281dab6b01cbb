// Package auth provides the authentication accessors: login, registration,
// logout and profile. These are the only callers allowed to write credentials
// into the store.
package auth

import (
	"context"

	"github.com/alexxxstep/djwr-client/internal/api"
	"github.com/alexxxstep/djwr-client/internal/cache"
	"github.com/alexxxstep/djwr-client/internal/credentials"
	"github.com/rs/zerolog/log"
)

// User is the backend's user profile representation.
type User struct {
	ID              int    `json:"id"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	IsEmailVerified bool   `json:"is_email_verified"`
	WebhookURL      string `json:"webhook_url,omitempty"`
	DateJoined      string `json:"date_joined,omitempty"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password"`
	Password2 string `json:"password2,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	WebhookURL *string `json:"webhook_url,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type sessionResponse struct {
	User   User      `json:"user"`
	Tokens tokenPair `json:"tokens"`
}

// Service authenticates against the backend and owns the session lifecycle.
type Service struct {
	api   *api.Client
	creds *credentials.Store
	cache *cache.Cache
}

// NewService creates an auth accessor over the given pipeline, credential
// store and response cache.
func NewService(client *api.Client, creds *credentials.Store, store *cache.Cache) *Service {
	return &Service{
		api:   client,
		creds: creds,
		cache: store,
	}
}

// Login authenticates with email and password and stores the returned
// credential pair. A 401 here is a credential rejection and propagates
// unchanged; no renewal is attempted.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	var session sessionResponse
	err := s.api.Post(ctx, "auth/login/", loginRequest{Email: email, Password: password}, &session)
	if err != nil {
		return User{}, err
	}

	s.storeTokens(session.Tokens)
	return session.User, nil
}

// Register creates an account. The backend issues tokens with the new
// account, so a successful registration is also a login.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	var session sessionResponse
	if err := s.api.Post(ctx, "auth/register/", req, &session); err != nil {
		return User{}, err
	}

	s.storeTokens(session.Tokens)
	return session.User, nil
}

// Logout asks the backend to blacklist the refresh credential, then clears
// the credential store and the response cache. The server call is best
// effort: a failure there never blocks the local logout.
func (s *Service) Logout(ctx context.Context) {
	if refresh, ok := s.creds.Refresh(); ok {
		if err := s.api.Post(ctx, "auth/logout/", logoutRequest{Refresh: refresh}, nil); err != nil {
			log.Info().Err(err).Msg("server-side logout failed, clearing local session anyway")
		}
	}

	// Clear purges the response cache through the wired purger; the explicit
	// cache clear keeps the invariant even when the store was built bare.
	s.creds.Clear()
	s.cache.Clear()
}

// Profile returns the current user's profile.
func (s *Service) Profile(ctx context.Context) (User, error) {
	var user User
	if err := s.api.Get(ctx, "auth/me/", nil, &user); err != nil {
		return User{}, err
	}

	return user, nil
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) (User, error) {
	var user User
	if err := s.api.Patch(ctx, "auth/me/", update, &user); err != nil {
		return User{}, err
	}

	return user, nil
}

func (s *Service) storeTokens(tokens tokenPair) {
	if err := s.creds.SetAccess(tokens.Access); err != nil {
		log.Warn().Err(err).Msg("access credential not persisted")
	}
	if err := s.creds.SetRefresh(tokens.Refresh); err != nil {
		log.Warn().Err(err).Msg("refresh credential not persisted")
	}
}
