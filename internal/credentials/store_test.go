package credentials_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alexxxstep/djwr-client/internal/credentials"
	"github.com/alexxxstep/djwr-client/internal/testhelpers"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purgeSpy struct {
	cleared int
}

func (p *purgeSpy) Clear() {
	p.cleared++
}

func seededStorage(access, refresh string) *credentials.MemoryStorage {
	storage := credentials.NewMemoryStorage()
	if access != "" {
		_ = storage.Set("access_token", access)
	}
	if refresh != "" {
		_ = storage.Set("refresh_token", refresh)
	}
	return storage
}

func TestStoreHydratesFromStorage(t *testing.T) {
	storage := seededStorage("access-0", "refresh-0")

	store, err := credentials.NewStore(storage, "http://unused.invalid/auth/refresh/")
	require.NoError(t, err)

	access, ok := store.Access()
	require.True(t, ok)
	assert.Equal(t, "access-0", access)

	refresh, ok := store.Refresh()
	require.True(t, ok)
	assert.Equal(t, "refresh-0", refresh)
}

func TestStoreStartsEmptyWithoutPersistedEntries(t *testing.T) {
	store, err := credentials.NewStore(credentials.NewMemoryStorage(), "http://unused.invalid/")
	require.NoError(t, err)

	_, ok := store.Access()
	assert.False(t, ok)
	_, ok = store.Refresh()
	assert.False(t, ok)
}

func TestSetWritesThroughToStorage(t *testing.T) {
	storage := credentials.NewMemoryStorage()
	store, err := credentials.NewStore(storage, "http://unused.invalid/")
	require.NoError(t, err)

	require.NoError(t, store.SetAccess("access-1"))
	require.NoError(t, store.SetRefresh("refresh-1"))

	persisted, ok, err := storage.Get("access_token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-1", persisted)

	persisted, ok, err = storage.Get("refresh_token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "refresh-1", persisted)
}

func TestClearRemovesCredentialsAndPurgesCache(t *testing.T) {
	storage := seededStorage("access-0", "refresh-0")
	purger := &purgeSpy{}

	store, err := credentials.NewStore(storage, "http://unused.invalid/",
		credentials.WithPurger(purger))
	require.NoError(t, err)

	store.Clear()

	_, ok := store.Access()
	assert.False(t, ok)
	_, ok = store.Refresh()
	assert.False(t, ok)

	_, present, err := storage.Get("access_token")
	require.NoError(t, err)
	assert.False(t, present)

	assert.Equal(t, 1, purger.cleared, "clearing credentials must purge the response cache")
}

func TestRenewWithoutRefreshCredentialFailsImmediately(t *testing.T) {
	backend := testhelpers.NewBackend(t)

	store, err := credentials.NewStore(seededStorage("access-0", ""), backend.RenewURL())
	require.NoError(t, err)

	assert.False(t, store.Renew(context.Background()))
	assert.Equal(t, 0, backend.Requests("POST", "/api/auth/refresh/"), "no network call without a refresh credential")
}

func TestRenewOverwritesAccessCredential(t *testing.T) {
	backend := testhelpers.NewBackend(t)

	storage := seededStorage("stale-access", "refresh-0")
	store, err := credentials.NewStore(storage, backend.RenewURL())
	require.NoError(t, err)

	require.True(t, store.Renew(context.Background()))

	access, ok := store.Access()
	require.True(t, ok)
	assert.Equal(t, "access-1", access)

	// no rotation was offered, the refresh credential is untouched
	refresh, ok := store.Refresh()
	require.True(t, ok)
	assert.Equal(t, "refresh-0", refresh)

	persisted, _, err := storage.Get("access_token")
	require.NoError(t, err)
	assert.Equal(t, "access-1", persisted)
}

func TestRenewStoresRotatedRefreshCredential(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	backend.NextRefresh = "refresh-1"

	store, err := credentials.NewStore(seededStorage("stale-access", "refresh-0"), backend.RenewURL())
	require.NoError(t, err)

	require.True(t, store.Renew(context.Background()))

	refresh, ok := store.Refresh()
	require.True(t, ok)
	assert.Equal(t, "refresh-1", refresh)
}

func TestRenewRejectionReturnsFalseWithoutClearing(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	backend.RenewStatus = http.StatusUnauthorized

	store, err := credentials.NewStore(seededStorage("access-0", "refresh-0"), backend.RenewURL())
	require.NoError(t, err)

	assert.False(t, store.Renew(context.Background()))

	// deciding what a failed renewal means is the pipeline's job
	_, ok := store.Access()
	assert.True(t, ok)
}

func TestRenewNetworkFailureReturnsFalse(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	renewURL := backend.RenewURL()
	backend.Server.Close()

	store, err := credentials.NewStore(seededStorage("access-0", "refresh-0"), renewURL)
	require.NoError(t, err)

	assert.False(t, store.Renew(context.Background()))
}

func TestConcurrentRenewalsCoalesce(t *testing.T) {
	backend := testhelpers.NewBackend(t)
	backend.RenewDelay = 100 * time.Millisecond

	store, err := credentials.NewStore(seededStorage("stale-access", "refresh-0"), backend.RenewURL())
	require.NoError(t, err)

	const callers = 8
	results := make([]bool, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Renew(context.Background())
		}(i)
	}
	wg.Wait()

	for i, renewed := range results {
		assert.True(t, renewed, "caller %d must share the successful renewal", i)
	}
	assert.Equal(t, 1, backend.Requests("POST", "/api/auth/refresh/"), "concurrent callers must collapse into one renewal")
}

func TestAccessExpiryReadsUnverifiedClaims(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiry),
	})
	signed, err := token.SignedString([]byte("any-key"))
	require.NoError(t, err)

	store, err := credentials.NewStore(seededStorage(signed, ""), "http://unused.invalid/")
	require.NoError(t, err)

	got, ok := store.AccessExpiry()
	require.True(t, ok)
	assert.True(t, got.Equal(expiry))
}

func TestAccessExpiryWithoutToken(t *testing.T) {
	store, err := credentials.NewStore(credentials.NewMemoryStorage(), "http://unused.invalid/")
	require.NoError(t, err)

	_, ok := store.AccessExpiry()
	assert.False(t, ok)

	require.NoError(t, store.SetAccess("not-a-jwt"))
	_, ok = store.AccessExpiry()
	assert.False(t, ok)
}
