package main

import (
	"testing"

	"github.com/alexxxstep/djwr-client/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenewURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000/api/auth/refresh/", renewURL("http://localhost:8000/api"))
	assert.Equal(t, "http://localhost:8000/api/auth/refresh/", renewURL("http://localhost:8000/api/"))
}

func TestConfigureHTTPTransportAppliesLimits(t *testing.T) {
	transport := configureHTTPTransport(config.APIConfig{
		OutgoingHTTPMaxIdleConns:    42,
		OutgoingHTTPMaxConnsPerHost: 7,
	})

	assert.Equal(t, 42, transport.MaxIdleConns)
	assert.Equal(t, 7, transport.MaxConnsPerHost)
}

func TestNewAppWiresEveryService(t *testing.T) {
	cfg := config.Config{
		API: config.APIConfig{
			BaseURL:        "http://localhost:8000/api",
			TimeoutSeconds: 30,
		},
		Cache: config.CacheConfig{
			DefaultTTLSeconds:    600,
			SweepIntervalSeconds: 300,
		},
		Credentials: config.CredentialsConfig{
			Path: t.TempDir() + "/credentials.json",
		},
		Watch: config.WatchConfig{IntervalSeconds: 300},
	}

	a, err := newApp(cfg)
	require.NoError(t, err)

	assert.NotNil(t, a.cache)
	assert.NotNil(t, a.creds)
	assert.NotNil(t, a.client)
	assert.NotNil(t, a.auth)
	assert.NotNil(t, a.weather)
	assert.NotNil(t, a.subs)
}
