// Package weather provides cached read accessors for city and forecast data.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/alexxxstep/djwr-client/internal/api"
	"github.com/alexxxstep/djwr-client/internal/cache"
)

// Forecast periods accepted by the backend.
const (
	PeriodCurrent  = "current"
	PeriodHourly   = "hourly"
	PeriodToday    = "today"
	PeriodTomorrow = "tomorrow"
	Period3Days    = "3days"
	PeriodWeek     = "week"
)

// Periods lists the valid forecast periods in display order.
var Periods = []string{
	PeriodCurrent,
	PeriodHourly,
	PeriodToday,
	PeriodTomorrow,
	Period3Days,
	PeriodWeek,
}

// periodTTL maps each forecast period to its cache lifetime. Short-lived data
// (current conditions) expires quickly; multi-day forecasts are stable for an
// hour.
var periodTTL = map[string]time.Duration{
	PeriodCurrent:  10 * time.Minute,
	PeriodHourly:   15 * time.Minute,
	PeriodToday:    30 * time.Minute,
	PeriodTomorrow: 30 * time.Minute,
	Period3Days:    time.Hour,
	PeriodWeek:     time.Hour,
}

// TTLFor returns the cache lifetime for a forecast period, defaulting to 10
// minutes for unknown periods.
func TTLFor(period string) time.Duration {
	if ttl, ok := periodTTL[period]; ok {
		return ttl
	}

	return 10 * time.Minute
}

// ValidPeriod reports whether the backend accepts period.
func ValidPeriod(period string) bool {
	_, ok := periodTTL[period]
	return ok
}

// City is the backend's city representation.
type City struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Country            string `json:"country"`
	Latitude           string `json:"latitude,omitempty"`
	Longitude          string `json:"longitude,omitempty"`
	SubscriptionsCount int    `json:"subscriptions_count,omitempty"`
}

// DataPoint is one forecast sample. Daily periods additionally populate the
// min/max temperatures and precipitation fields.
type DataPoint struct {
	DT          int64    `json:"dt"`
	Temp        float64  `json:"temp"`
	FeelsLike   float64  `json:"feels_like"`
	TempMin     *float64 `json:"temp_min,omitempty"`
	TempMax     *float64 `json:"temp_max,omitempty"`
	Humidity    int      `json:"humidity"`
	Pressure    int      `json:"pressure"`
	WindSpeed   float64  `json:"wind_speed"`
	WindDeg     int      `json:"wind_deg"`
	Visibility  int      `json:"visibility"`
	Clouds      int      `json:"clouds"`
	UVI         float64  `json:"uvi"`
	Pop         *float64 `json:"pop,omitempty"`
	Rain        *float64 `json:"rain,omitempty"`
	Snow        *float64 `json:"snow,omitempty"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
}

// Forecast is the unified weather response: data is always an array, even for
// single-sample periods.
type Forecast struct {
	City       City        `json:"city"`
	Period     string      `json:"period"`
	Data       []DataPoint `json:"data"`
	ItemsCount int         `json:"items_count"`
	FetchedAt  string      `json:"fetched_at"`
}

// CityDetail is a city with its current conditions attached.
type CityDetail struct {
	City
	CurrentWeather *DataPoint `json:"current_weather,omitempty"`
}

// SearchResult is the city search response. Results may come from the backend
// database or from the upstream provider; either way no city is created until
// a subscription references it.
type SearchResult struct {
	Results []City `json:"results"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// Service reads weather and city data through the response cache.
type Service struct {
	api   *api.Client
	cache *cache.Cache
}

// NewService creates a weather accessor sharing the given pipeline and cache.
func NewService(client *api.Client, store *cache.Cache) *Service {
	return &Service{
		api:   client,
		cache: store,
	}
}

// Forecast returns weather data for a city and period. With useCache, a live
// cached value is returned without a network call; a fresh fetch always
// repopulates the cache with the period's TTL.
func (s *Service) Forecast(ctx context.Context, cityID int, period string, useCache bool) (Forecast, error) {
	if !ValidPeriod(period) {
		return Forecast{}, fmt.Errorf("invalid forecast period %q", period)
	}

	key := cache.WeatherKey(cityID, period)
	if useCache {
		if value, ok := s.cache.Get(key); ok {
			if forecast, ok := value.(Forecast); ok {
				return forecast, nil
			}
		}
	}

	var forecast Forecast
	query := url.Values{"period": []string{period}}
	if err := s.api.Get(ctx, fmt.Sprintf("weather/%d/", cityID), query, &forecast); err != nil {
		return Forecast{}, err
	}

	s.cache.SetTTL(key, forecast, TTLFor(period))
	return forecast, nil
}

// SearchCities looks up cities by name. Results are cached briefly: search is
// typically driven by keystrokes and repeats the same query often.
func (s *Service) SearchCities(ctx context.Context, query string, useCache bool) (SearchResult, error) {
	key := cache.CitySearchKey(query)
	if useCache {
		if value, ok := s.cache.Get(key); ok {
			if result, ok := value.(SearchResult); ok {
				return result, nil
			}
		}
	}

	var result SearchResult
	params := url.Values{"q": []string{query}}
	if err := s.api.Get(ctx, "cities/search/", params, &result); err != nil {
		return SearchResult{}, err
	}

	s.cache.Set(key, result)
	return result, nil
}

// Cities lists all cities known to the backend.
func (s *Service) Cities(ctx context.Context) ([]City, error) {
	var envelope struct {
		Count   int    `json:"count"`
		Results []City `json:"results"`
	}
	if err := s.api.Get(ctx, "cities/", nil, &envelope); err != nil {
		return nil, err
	}

	return envelope.Results, nil
}

// City returns one city with its current weather.
func (s *Service) City(ctx context.Context, cityID int, useCache bool) (CityDetail, error) {
	key := cache.CityKey(cityID)
	if useCache {
		if value, ok := s.cache.Get(key); ok {
			if detail, ok := value.(CityDetail); ok {
				return detail, nil
			}
		}
	}

	var detail CityDetail
	if err := s.api.Get(ctx, fmt.Sprintf("cities/%d/", cityID), nil, &detail); err != nil {
		return CityDetail{}, err
	}

	s.cache.Set(key, detail)
	return detail, nil
}
