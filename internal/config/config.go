package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API         APIConfig
	Cache       CacheConfig
	Credentials CredentialsConfig
	Observe     ObserveConfig
	Watch       WatchConfig
}

type APIConfig struct {
	// BaseURL is the fixed base path all request paths are relative to.
	BaseURL        string `env:"DJWR_API_BASE_URL, default=http://localhost:8000/api"`
	TimeoutSeconds int    `env:"DJWR_API_TIMEOUT_SECS, default=30"`

	OutgoingHTTPMaxIdleConns    int `env:"DJWR_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"DJWR_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// CacheConfig specifies response cache behaviour.
type CacheConfig struct {
	// DefaultTTLSeconds applies to entries stored without an explicit TTL.
	DefaultTTLSeconds int `env:"DJWR_CACHE_DEFAULT_TTL_SECS, default=600"`

	// SweepIntervalSeconds is the period of the background expiry sweep run
	// by long-lived commands.
	SweepIntervalSeconds int `env:"DJWR_CACHE_SWEEP_INTERVAL_SECS, default=300"`
}

type CredentialsConfig struct {
	// Path of the persisted credentials file. Empty selects the conventional
	// location under the user config directory.
	Path string `env:"DJWR_CREDENTIALS_PATH"`
}

type ObserveConfig struct {
	HTTPTransportEnabled bool `env:"DJWR_OBSERVE_HTTP_TRANSPORT_ENABLED, default=false"`
}

type WatchConfig struct {
	// IntervalSeconds is how often watch mode re-renders subscribed
	// forecasts.
	IntervalSeconds int `env:"DJWR_WATCH_INTERVAL_SECS, default=300"`

	// AliasesPath points at the optional city aliases file. Empty selects the
	// conventional location under the user config directory.
	AliasesPath string `env:"DJWR_CITY_ALIASES_PATH"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the constraints the env tags cannot express.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("DJWR_API_BASE_URL must not be empty")
	}

	if c.Cache.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("DJWR_CACHE_DEFAULT_TTL_SECS must be positive")
	}

	if c.Cache.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("DJWR_CACHE_SWEEP_INTERVAL_SECS must be positive")
	}

	if c.Watch.IntervalSeconds <= 0 {
		return fmt.Errorf("DJWR_WATCH_INTERVAL_SECS must be positive")
	}

	return nil
}
