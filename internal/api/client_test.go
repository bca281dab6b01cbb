package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexxxstep/djwr-client/internal/api"
	"github.com/alexxxstep/djwr-client/internal/cache"
	"github.com/alexxxstep/djwr-client/internal/credentials"
	"github.com/alexxxstep/djwr-client/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	client *api.Client
	creds  *credentials.Store
	cache  *cache.Cache
}

// newSession wires a pipeline against the mock backend with the given
// persisted credentials, mirroring the production wiring in main.
func newSession(t *testing.T, backend *testhelpers.Backend, access, refresh string) session {
	t.Helper()

	storage := credentials.NewMemoryStorage()
	if access != "" {
		require.NoError(t, storage.Set("access_token", access))
	}
	if refresh != "" {
		require.NoError(t, storage.Set("refresh_token", refresh))
	}

	responseCache := cache.New()

	creds, err := credentials.NewStore(storage, backend.RenewURL(),
		credentials.WithPurger(responseCache))
	require.NoError(t, err)

	client, err := api.NewClient(backend.BaseURL(), creds)
	require.NoError(t, err)

	return session{client: client, creds: creds, cache: responseCache}
}

type forecastBody struct {
	Period string `json:"period"`
	Data   []struct {
		Temp float64 `json:"temp"`
	} `json:"data"`
}

func TestAuthenticatedRequestSucceedsFirstTime(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	s := newSession(t, backend, "access-0", "refresh-0")

	var body forecastBody
	err := s.client.Get(context.Background(), "weather/1/", nil, &body)
	require.NoError(t, err)

	assert.Equal(t, "current", body.Period)
	require.Len(t, body.Data, 1)
	assert.Equal(t, float64(15), body.Data[0].Temp)

	assert.Equal(t, 1, backend.Requests("GET", "/api/weather/1/"))
	assert.Equal(t, 0, backend.Requests("POST", "/api/auth/refresh/"))
}

func TestExpiredCredentialRenewsAndRetriesExactlyOnce(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	s := newSession(t, backend, "stale-access", "refresh-0")

	var body forecastBody
	err := s.client.Get(context.Background(), "weather/1/", nil, &body)
	require.NoError(t, err)

	// original + one retry, fed by a single renewal
	assert.Equal(t, 2, backend.Requests("GET", "/api/weather/1/"))
	assert.Equal(t, 1, backend.Requests("POST", "/api/auth/refresh/"))

	// the returned value is the retry's body
	require.Len(t, body.Data, 1)
	assert.Equal(t, float64(15), body.Data[0].Temp)

	access, ok := s.creds.Access()
	require.True(t, ok)
	assert.Equal(t, "access-1", access)
}

func TestRenewalImpossibleFailsAfterOneCall(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	s := newSession(t, backend, "stale-access", "")

	s.cache.Set(cache.WeatherKey(1, "current"), "cached")

	err := s.client.Get(context.Background(), "weather/1/", nil, nil)
	require.Error(t, err)

	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, api.KindAuthExpired, apiErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	assert.Equal(t, 1, backend.Requests("GET", "/api/weather/1/"))
	assert.Equal(t, 0, backend.Requests("POST", "/api/auth/refresh/"))

	// the credential store and the cache are both gone
	_, ok = s.creds.Access()
	assert.False(t, ok)
	assert.Equal(t, 0, s.cache.Stats().Total, "clearing credentials purges cached data")
}

func TestRejectedRenewalClearsCredentials(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	backend.RenewStatus = http.StatusUnauthorized
	s := newSession(t, backend, "stale-access", "refresh-0")

	err := s.client.Get(context.Background(), "weather/1/", nil, nil)
	require.Error(t, err)
	assert.True(t, api.IsAuthExpired(err))

	assert.Equal(t, 1, backend.Requests("GET", "/api/weather/1/"))
	assert.Equal(t, 1, backend.Requests("POST", "/api/auth/refresh/"))

	_, ok := s.creds.Access()
	assert.False(t, ok)
}

func TestLoginRejectionNeverTriggersRenewal(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	s := newSession(t, backend, "", "refresh-0")

	err := s.client.Post(context.Background(), "auth/login/", map[string]string{
		"email":    "user@example.com",
		"password": "wrong",
	}, nil)
	require.Error(t, err)

	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, api.KindAuthRejected, apiErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password.", apiErr.Message)

	assert.Equal(t, 1, backend.Requests("POST", "/api/auth/login/"))
	assert.Equal(t, 0, backend.Requests("POST", "/api/auth/refresh/"))

	// the stored refresh credential is untouched
	_, ok = s.creds.Refresh()
	assert.True(t, ok)
}

// A 401 that survives a successful renewal is decoded as a plain rejection;
// there is never a second renewal attempt.
func TestNoSecondRenewalAfterRetry(t *testing.T) {
	protectedCalls := 0
	renewCalls := 0

	router := testhelpers.NewRouter()
	router.HandleFunc("GET /api/reports/", func(w http.ResponseWriter, r *http.Request) {
		protectedCalls++
		testhelpers.WriteJSON(w, http.StatusUnauthorized, map[string]any{"detail": "still unauthorized"})
	})
	router.HandleFunc("POST /api/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		renewCalls++
		testhelpers.WriteJSON(w, http.StatusOK, map[string]any{"access": "access-1"})
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	storage := credentials.NewMemoryStorage()
	require.NoError(t, storage.Set("access_token", "stale-access"))
	require.NoError(t, storage.Set("refresh_token", "refresh-0"))

	creds, err := credentials.NewStore(storage, server.URL+"/api/auth/refresh/")
	require.NoError(t, err)

	client, err := api.NewClient(server.URL+"/api", creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "reports/", nil, nil)
	require.Error(t, err)

	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, api.KindRequestRejected, apiErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "still unauthorized", apiErr.Message)

	assert.Equal(t, 2, protectedCalls)
	assert.Equal(t, 1, renewCalls)
}

func TestTransportFailureNormalizedToStatusZero(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	baseURL := backend.BaseURL()
	s := newSession(t, backend, "access-0", "")
	backend.Server.Close()

	client, err := api.NewClient(baseURL, s.creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "weather/1/", nil, nil)
	require.Error(t, err)

	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, api.KindTransportFailure, apiErr.Kind)
	assert.Equal(t, 0, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)
}

func TestBearerAndContentTypeHeaders(t *testing.T) {
	var gotAuth, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		testhelpers.WriteJSON(w, http.StatusOK, map[string]any{})
	}))
	t.Cleanup(server.Close)

	storage := credentials.NewMemoryStorage()
	require.NoError(t, storage.Set("access_token", "access-0"))
	creds, err := credentials.NewStore(storage, server.URL+"/auth/refresh/")
	require.NoError(t, err)

	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)

	require.NoError(t, client.Post(context.Background(), "anything/", map[string]string{"a": "b"}, nil))
	assert.Equal(t, "Bearer access-0", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestCallerHeaderOverridesContentType(t *testing.T) {
	var gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	creds, err := credentials.NewStore(credentials.NewMemoryStorage(), server.URL+"/auth/refresh/")
	require.NoError(t, err)

	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)

	err = client.Do(context.Background(), api.Request{
		Method: http.MethodPost,
		Path:   "upload/",
		Header: http.Header{"Content-Type": []string{"text/plain"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestOpaqueTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))
	t.Cleanup(server.Close)

	creds, err := credentials.NewStore(credentials.NewMemoryStorage(), server.URL+"/auth/refresh/")
	require.NoError(t, err)

	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)

	var text string
	require.NoError(t, client.Get(context.Background(), "ping/", nil, &text))
	assert.Equal(t, "pong", text)
}

func TestUnparseableSuccessBodyIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{broken"))
	}))
	t.Cleanup(server.Close)

	creds, err := credentials.NewStore(credentials.NewMemoryStorage(), server.URL+"/auth/refresh/")
	require.NoError(t, err)

	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, client.Get(context.Background(), "broken/", nil, &out))
	assert.Nil(t, out)
}

func TestErrorDetailPreferredOverStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testhelpers.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"detail":  "from detail",
			"message": "from message",
			"error":   "from error",
		})
	}))
	t.Cleanup(server.Close)

	creds, err := credentials.NewStore(credentials.NewMemoryStorage(), server.URL+"/auth/refresh/")
	require.NoError(t, err)

	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "bad/", nil, nil)
	require.Error(t, err)

	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "from detail", apiErr.Message)
	assert.Equal(t, map[string]any{
		"detail":  "from detail",
		"message": "from message",
		"error":   "from error",
	}, apiErr.Body)
}
