package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Purger is the slice of the response cache the store needs: on Clear, all
// cached authenticated data must go with the credentials.
type Purger interface {
	Clear()
}

// Store is the single source of truth for the current credential pair. It
// hydrates from Storage at construction, writes through on every change, and
// performs silent renewal against the backend's refresh endpoint.
//
// Exactly one Store exists per process; it is constructed in main and passed
// by reference to the request pipeline and the domain accessors.
type Store struct {
	storage  Storage
	http     *http.Client
	renewURL string
	purger   Purger

	mu      sync.RWMutex
	access  string
	refresh string

	// renewals coalesces concurrent Renew calls into a single in-flight
	// network renewal whose result is shared by all waiters. Without this,
	// two calls racing on a 401 would replay the refresh token, and the
	// losing renewal would clear valid credentials out from under the winner.
	renewals singleflight.Group
}

type renewRequest struct {
	Refresh string `json:"refresh"`
}

type renewResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHTTPClient sets the client used for the renewal call.
func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *Store) {
		s.http = client
	}
}

// WithPurger wires the response cache purged by Clear.
func WithPurger(purger Purger) StoreOption {
	return func(s *Store) {
		s.purger = purger
	}
}

// NewStore creates a Store hydrated from storage. renewURL is the absolute URL
// of the token refresh endpoint.
func NewStore(storage Storage, renewURL string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		storage:  storage,
		http:     http.DefaultClient,
		renewURL: renewURL,
	}

	for _, opt := range opts {
		opt(s)
	}

	access, _, err := storage.Get(accessKey)
	if err != nil {
		return nil, fmt.Errorf("could not load access credential: %w", err)
	}

	refresh, _, err := storage.Get(refreshKey)
	if err != nil {
		return nil, fmt.Errorf("could not load refresh credential: %w", err)
	}

	s.access = access
	s.refresh = refresh

	return s, nil
}

// Access returns the current access credential, if any.
func (s *Store) Access() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.access, s.access != ""
}

// Refresh returns the current refresh credential, if any.
func (s *Store) Refresh() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.refresh, s.refresh != ""
}

// SetAccess stores a new access credential and persists it.
func (s *Store) SetAccess(token string) error {
	s.mu.Lock()
	s.access = token
	s.mu.Unlock()

	if err := s.storage.Set(accessKey, token); err != nil {
		return fmt.Errorf("could not persist access credential: %w", err)
	}

	return nil
}

// SetRefresh stores a new refresh credential and persists it.
func (s *Store) SetRefresh(token string) error {
	s.mu.Lock()
	s.refresh = token
	s.mu.Unlock()

	if err := s.storage.Set(refreshKey, token); err != nil {
		return fmt.Errorf("could not persist refresh credential: %w", err)
	}

	return nil
}

// Clear removes both credentials from memory and persistent storage, and
// purges the response cache. Logout must never leave authenticated data
// behind.
func (s *Store) Clear() {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.mu.Unlock()

	if err := s.storage.Delete(accessKey); err != nil {
		log.Warn().Err(err).Msg("could not remove persisted access credential")
	}
	if err := s.storage.Delete(refreshKey); err != nil {
		log.Warn().Err(err).Msg("could not remove persisted refresh credential")
	}

	if s.purger != nil {
		s.purger.Clear()
	}
}

// Renew attempts a silent renewal of the access credential. It reports false
// without a network call when no refresh credential exists, and false on any
// network or HTTP failure. Concurrent callers collapse into a single renewal;
// every waiter observes the same result.
func (s *Store) Renew(ctx context.Context) bool {
	result, _, _ := s.renewals.Do("renew", func() (any, error) {
		return s.renew(ctx), nil
	})

	renewed, _ := result.(bool)
	return renewed
}

func (s *Store) renew(ctx context.Context) bool {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()

	if refresh == "" {
		return false
	}

	body, err := json.Marshal(renewRequest{Refresh: refresh})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.renewURL, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("credential renewal request could not be built")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("credential renewal failed")
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Info().Int("status", resp.StatusCode).Msg("credential renewal rejected")
		return false
	}

	var renewed renewResponse
	if err := json.NewDecoder(resp.Body).Decode(&renewed); err != nil || renewed.Access == "" {
		log.Warn().Err(err).Msg("credential renewal returned an unusable body")
		return false
	}

	if err := s.SetAccess(renewed.Access); err != nil {
		// The in-memory credential is already updated; persistence failure
		// only costs the next process start a login.
		log.Warn().Err(err).Msg("renewed access credential not persisted")
	}

	// the server may rotate the refresh credential with the access one
	if renewed.Refresh != "" {
		if err := s.SetRefresh(renewed.Refresh); err != nil {
			log.Warn().Err(err).Msg("rotated refresh credential not persisted")
		}
	}

	return true
}

// AccessExpiry reports the expiry of the current access credential, read from
// its unverified JWT claims. Diagnostic only: the client never validates
// tokens, it trusts the backend's 401s.
func (s *Store) AccessExpiry() (time.Time, bool) {
	access, ok := s.Access()
	if !ok {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(access, &claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
