package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alexxxstep/djwr-client/internal/api"
	"github.com/alexxxstep/djwr-client/internal/auth"
	"github.com/alexxxstep/djwr-client/internal/config"
	"github.com/alexxxstep/djwr-client/internal/lifecycle"
	"github.com/alexxxstep/djwr-client/internal/subscription"
	"github.com/alexxxstep/djwr-client/internal/weather"
	"github.com/rs/zerolog/log"
)

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" || *password == "" {
		return fmt.Errorf("login requires -email and -password")
	}

	user, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}

	fmt.Printf("logged in as %s\n", user.Email)
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" || *password == "" {
		return fmt.Errorf("register requires -email and -password")
	}

	user, err := a.auth.Register(ctx, auth.RegisterRequest{
		Email:     *email,
		Username:  *username,
		Password:  *password,
		Password2: *password,
		FirstName: *firstName,
		LastName:  *lastName,
	})
	if err != nil {
		return err
	}

	fmt.Printf("registered and logged in as %s\n", user.Email)
	return nil
}

func (a *app) cmdLogout(ctx context.Context, _ []string) error {
	a.auth.Logout(ctx)
	fmt.Println("logged out")
	return nil
}

func (a *app) cmdStatus(_ context.Context, _ []string) error {
	if _, ok := a.creds.Access(); !ok {
		fmt.Println("not logged in")
		return nil
	}

	fmt.Println("logged in")
	if expiry, ok := a.creds.AccessExpiry(); ok {
		remaining := time.Until(expiry).Round(time.Second)
		if remaining > 0 {
			fmt.Printf("access token expires in %s\n", remaining)
		} else {
			fmt.Println("access token expired; it will be renewed on the next request")
		}
	}
	if _, ok := a.creds.Refresh(); !ok {
		fmt.Println("no refresh token: the session cannot be silently renewed")
	}

	stats := a.cache.Stats()
	fmt.Printf("cache: %d entries (%d valid, %d expired)\n", stats.Total, stats.Valid, stats.Expired)
	return nil
}

func (a *app) cmdProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("me", flag.ContinueOnError)
	webhookURL := fs.String("webhook-url", "", "set the notification webhook URL")
	firstName := fs.String("first-name", "", "set the first name")
	lastName := fs.String("last-name", "", "set the last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	update := auth.ProfileUpdate{}
	changed := false
	fs.Visit(func(f *flag.Flag) {
		changed = true
		switch f.Name {
		case "webhook-url":
			update.WebhookURL = webhookURL
		case "first-name":
			update.FirstName = firstName
		case "last-name":
			update.LastName = lastName
		}
	})

	var user auth.User
	var err error
	if changed {
		user, err = a.auth.UpdateProfile(ctx, update)
	} else {
		user, err = a.auth.Profile(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", user.Email, user.Username)
	if user.FirstName != "" || user.LastName != "" {
		fmt.Printf("name: %s %s\n", user.FirstName, user.LastName)
	}
	if user.WebhookURL != "" {
		fmt.Printf("webhook: %s\n", user.WebhookURL)
	}
	return nil
}

func (a *app) cmdSearch(ctx context.Context, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("search requires a query")
	}

	result, err := a.weather.SearchCities(ctx, query, true)
	if err != nil {
		return err
	}

	if result.Count == 0 {
		fmt.Printf("no cities found for %q\n", query)
		return nil
	}

	for _, city := range result.Results {
		fmt.Printf("%4d  %s, %s\n", city.ID, city.Name, city.Country)
	}
	return nil
}

func (a *app) cmdWeather(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("weather", flag.ContinueOnError)
	period := fs.String("period", weather.PeriodCurrent, "forecast period: "+strings.Join(weather.Periods, ", "))
	fresh := fs.Bool("fresh", false, "bypass the response cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("weather requires a city ID or alias")
	}

	cityID, err := a.resolveCity(fs.Arg(0))
	if err != nil {
		return err
	}

	forecast, err := a.weather.Forecast(ctx, cityID, *period, !*fresh)
	if err != nil {
		return err
	}

	printForecast(forecast)
	return nil
}

// resolveCity accepts a numeric city ID or a name from the aliases file.
func (a *app) resolveCity(arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		return id, nil
	}

	path := a.cfg.Watch.AliasesPath
	if path == "" {
		var err error
		path, err = config.DefaultAliasesPath()
		if err != nil {
			return 0, err
		}
	}

	aliases, err := config.LoadAliases(path)
	if err != nil {
		return 0, err
	}

	id, ok := aliases.Resolve(arg)
	if !ok {
		return 0, fmt.Errorf("unknown city %q: use a numeric ID or add an alias to %s", arg, path)
	}

	return id, nil
}

func (a *app) cmdSubscriptions(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		return a.cmdSubscriptionList(ctx)
	case "add":
		return a.cmdSubscriptionAdd(ctx, args[1:])
	case "update":
		return a.cmdSubscriptionUpdate(ctx, args[1:])
	case "rm":
		return a.cmdSubscriptionRemove(ctx, args[1:])
	default:
		return fmt.Errorf("unknown subs action %q (expected list, add, update or rm)", args[0])
	}
}

func (a *app) cmdSubscriptionList(ctx context.Context) error {
	subs, err := a.subs.List(ctx, true)
	if err != nil {
		return err
	}

	if len(subs) == 0 {
		fmt.Println("no subscriptions")
		return nil
	}

	for _, sub := range subs {
		state := "active"
		if !sub.IsActive {
			state = "paused"
		}
		fmt.Printf("%4d  %s, %s  %s every %dh  [%s]\n",
			sub.ID, sub.City.Name, sub.City.Country, sub.ForecastPeriod, sub.Period, state)
	}
	return nil
}

func (a *app) cmdSubscriptionAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subs add", flag.ContinueOnError)
	city := fs.String("city", "", "city ID or alias")
	forecast := fs.String("forecast", weather.PeriodCurrent, "forecast period")
	period := fs.Int("every", 6, "notification interval in hours (1, 3, 6 or 12)")
	notify := fs.String("notify", "email", "notification type: email, webhook or both")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *city == "" {
		return fmt.Errorf("subs add requires -city")
	}

	cityID, err := a.resolveCity(*city)
	if err != nil {
		return err
	}

	sub, err := a.subs.Create(ctx, subscription.CreateRequest{
		CityID:           cityID,
		Period:           *period,
		ForecastPeriod:   *forecast,
		NotificationType: *notify,
	})
	if err != nil {
		return err
	}

	fmt.Printf("subscribed to %s, %s (id %d)\n", sub.City.Name, sub.City.Country, sub.ID)
	return nil
}

func (a *app) cmdSubscriptionUpdate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subs update", flag.ContinueOnError)
	id := fs.Int("id", 0, "subscription ID")
	forecast := fs.String("forecast", "", "forecast period")
	period := fs.Int("every", 0, "notification interval in hours")
	notify := fs.String("notify", "", "notification type")
	active := fs.Bool("active", true, "enable or disable the subscription")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == 0 {
		return fmt.Errorf("subs update requires -id")
	}

	update := subscription.UpdateRequest{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "forecast":
			update.ForecastPeriod = forecast
		case "every":
			update.Period = period
		case "notify":
			update.NotificationType = notify
		case "active":
			update.IsActive = active
		}
	})

	sub, err := a.subs.Update(ctx, *id, update)
	if err != nil {
		return err
	}

	fmt.Printf("updated subscription %d (%s, %s)\n", sub.ID, sub.City.Name, sub.City.Country)
	return nil
}

func (a *app) cmdSubscriptionRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subs rm", flag.ContinueOnError)
	id := fs.Int("id", 0, "subscription ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == 0 {
		return fmt.Errorf("subs rm requires -id")
	}

	if err := a.subs.Delete(ctx, *id); err != nil {
		return err
	}

	fmt.Printf("removed subscription %d\n", *id)
	return nil
}

// cmdWatch renders forecasts for all active subscriptions on a fixed
// interval. It is the long-running host: it owns the cache sweeper and shuts
// down cleanly on interrupt.
func (a *app) cmdWatch(ctx context.Context, _ []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hooks := lifecycle.ShutdownHooks{}
	hooks.Add("cache", func() error {
		a.cache.Clear()
		return nil
	})

	sweepInterval := time.Duration(a.cfg.Cache.SweepIntervalSeconds) * time.Second
	go a.cache.Sweep(ctx, sweepInterval)

	interval := time.Duration(a.cfg.Watch.IntervalSeconds) * time.Second
	log.Info().Dur("interval", interval).Msg("watching subscriptions")

	for {
		if err := a.renderSubscribedForecasts(ctx); err != nil {
			if api.IsAuthExpired(err) {
				return err
			}
			// transient failures keep the watch alive
			log.Warn().Err(err).Msg("forecast refresh failed, will retry")
		}

		select {
		case <-time.After(interval):
			// continue
		case <-ctx.Done():
			log.Info().Msg("watch shutting down")
			hooks.Execute(context.Background())
			return nil
		}
	}
}

func (a *app) renderSubscribedForecasts(ctx context.Context) error {
	subs, err := a.subs.List(ctx, true)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}

		forecast, err := a.weather.Forecast(ctx, sub.City.ID, sub.ForecastPeriod, true)
		if err != nil {
			if api.IsAuthExpired(err) {
				return err
			}
			log.Warn().Err(err).Int("city", sub.City.ID).Msg("forecast fetch failed")
			continue
		}

		printForecast(forecast)
	}

	return nil
}

func printForecast(forecast weather.Forecast) {
	fmt.Printf("%s, %s (%s)\n", forecast.City.Name, forecast.City.Country, forecast.Period)
	for _, point := range forecast.Data {
		at := time.Unix(point.DT, 0).Format("Mon 15:04")
		line := fmt.Sprintf("  %s  %5.1f°C  %s", at, point.Temp, point.Description)
		if point.TempMin != nil && point.TempMax != nil {
			line = fmt.Sprintf("  %s  %.1f…%.1f°C  %s", at, *point.TempMin, *point.TempMax, point.Description)
		}
		fmt.Println(line)
	}
}
