package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/alexxxstep/djwr-client/internal/api"
	"github.com/alexxxstep/djwr-client/internal/auth"
	"github.com/alexxxstep/djwr-client/internal/cache"
	"github.com/alexxxstep/djwr-client/internal/config"
	"github.com/alexxxstep/djwr-client/internal/credentials"
	"github.com/alexxxstep/djwr-client/internal/observe"
	"github.com/alexxxstep/djwr-client/internal/subscription"
	"github.com/alexxxstep/djwr-client/internal/weather"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app holds the single wired instance of each shared component. The cache and
// credential store are constructed once here and passed by reference; nothing
// reaches them through package-level state.
type app struct {
	cfg     config.Config
	cache   *cache.Cache
	creds   *credentials.Store
	client  *api.Client
	auth    *auth.Service
	weather *weather.Service
	subs    *subscription.Service
}

func main() {
	configureLogging()

	logBuildInfo()

	err := run(context.Background(), os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("client setup failed: %w", err)
	}

	command, commandArgs := args[0], args[1:]
	switch command {
	case "login":
		err = a.cmdLogin(ctx, commandArgs)
	case "register":
		err = a.cmdRegister(ctx, commandArgs)
	case "logout":
		err = a.cmdLogout(ctx, commandArgs)
	case "status":
		err = a.cmdStatus(ctx, commandArgs)
	case "me":
		err = a.cmdProfile(ctx, commandArgs)
	case "search":
		err = a.cmdSearch(ctx, commandArgs)
	case "weather":
		err = a.cmdWeather(ctx, commandArgs)
	case "subs":
		err = a.cmdSubscriptions(ctx, commandArgs)
	case "watch":
		err = a.cmdWatch(ctx, commandArgs)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}

	if api.IsAuthExpired(err) {
		// credentials are already cleared by the pipeline
		return fmt.Errorf("session expired, run 'djwr login' to sign in again")
	}

	return err
}

func newApp(cfg config.Config) (*app, error) {
	responseCache := cache.New(
		cache.WithDefaultTTL(time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second),
	)

	credentialsPath := cfg.Credentials.Path
	if credentialsPath == "" {
		var err error
		credentialsPath, err = credentials.DefaultFilePath()
		if err != nil {
			return nil, fmt.Errorf("credentials path resolution failed: %w", err)
		}
	}

	storage, err := credentials.NewFileStorage(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("credentials storage configuration failed: %w", err)
	}

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		Transport: observe.HTTPTransport(
			configureHTTPTransport(cfg.API),
			cfg.Observe.HTTPTransportEnabled,
		),
	}

	creds, err := credentials.NewStore(storage, renewURL(cfg.API.BaseURL),
		credentials.WithHTTPClient(httpClient),
		credentials.WithPurger(responseCache),
	)
	if err != nil {
		return nil, fmt.Errorf("credential store configuration failed: %w", err)
	}

	client, err := api.NewClient(cfg.API.BaseURL, creds, api.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("api client configuration failed: %w", err)
	}

	return &app{
		cfg:     cfg,
		cache:   responseCache,
		creds:   creds,
		client:  client,
		auth:    auth.NewService(client, creds, responseCache),
		weather: weather.NewService(client, responseCache),
		subs:    subscription.NewService(client, responseCache),
	}, nil
}

// renewURL resolves the refresh endpoint relative to the API base path. The
// credential store calls it directly, outside the request pipeline.
func renewURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/auth/refresh/"
}

func configureLogging() {
	// default level is Info; logs go to stderr so command output stays clean
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Debug()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.APIConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: djwr <command> [flags]

commands:
  login      sign in with -email and -password
  register   create an account
  logout     end the session and clear cached data
  status     show session and cache state
  me         show or update the profile
  search     find cities by name
  weather    show a forecast for a city ID or alias
  subs       manage subscriptions (list|add|update|rm)
  watch      periodically render forecasts for active subscriptions`)
}
