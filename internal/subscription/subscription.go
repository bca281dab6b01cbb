// Package subscription provides accessors for the user's weather
// subscriptions. Reads go through the response cache; every successful write
// invalidates the cached list so the next read re-fetches.
package subscription

import (
	"context"
	"fmt"

	"github.com/alexxxstep/djwr-client/internal/api"
	"github.com/alexxxstep/djwr-client/internal/cache"
	"github.com/alexxxstep/djwr-client/internal/weather"
)

// Subscription is one city subscription belonging to the current user.
type Subscription struct {
	ID               int          `json:"id"`
	UserEmail        string       `json:"user_email,omitempty"`
	City             weather.City `json:"city"`
	Period           int          `json:"period"`
	ForecastPeriod   string       `json:"forecast_period"`
	NotificationType string       `json:"notification_type"`
	IsActive         bool         `json:"is_active"`
	LastNotifiedAt   string       `json:"last_notified_at,omitempty"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
}

// CreateRequest creates a subscription for an existing city (CityID) or from
// provider data for a city not yet in the backend database (CityData).
type CreateRequest struct {
	CityID           int            `json:"city_id,omitempty"`
	CityData         map[string]any `json:"city_data,omitempty"`
	Period           int            `json:"period,omitempty"`
	ForecastPeriod   string         `json:"forecast_period,omitempty"`
	NotificationType string         `json:"notification_type,omitempty"`
}

// UpdateRequest carries a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Period           *int    `json:"period,omitempty"`
	ForecastPeriod   *string `json:"forecast_period,omitempty"`
	NotificationType *string `json:"notification_type,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
}

// listEnvelope is the backend's page envelope. The client requests the first
// page only; twenty subscriptions is beyond any realistic single user.
type listEnvelope struct {
	Count    int            `json:"count"`
	Next     string         `json:"next,omitempty"`
	Previous string         `json:"previous,omitempty"`
	Results  []Subscription `json:"results"`
}

// Service manages the user's subscriptions through the request pipeline.
type Service struct {
	api   *api.Client
	cache *cache.Cache
}

// NewService creates a subscription accessor sharing the given pipeline and
// cache.
func NewService(client *api.Client, store *cache.Cache) *Service {
	return &Service{
		api:   client,
		cache: store,
	}
}

// List returns the current user's subscriptions. With useCache, a live cached
// list is returned without a network call.
func (s *Service) List(ctx context.Context, useCache bool) ([]Subscription, error) {
	if useCache {
		if value, ok := s.cache.Get(cache.SubscriptionsKey); ok {
			if subs, ok := value.([]Subscription); ok {
				return subs, nil
			}
		}
	}

	var envelope listEnvelope
	if err := s.api.Get(ctx, "subscriptions/", nil, &envelope); err != nil {
		return nil, err
	}

	s.cache.Set(cache.SubscriptionsKey, envelope.Results)
	return envelope.Results, nil
}

// Get returns one subscription by ID, always fresh.
func (s *Service) Get(ctx context.Context, id int) (Subscription, error) {
	var sub Subscription
	if err := s.api.Get(ctx, fmt.Sprintf("subscriptions/%d/", id), nil, &sub); err != nil {
		return Subscription{}, err
	}

	return sub, nil
}

// Create adds a subscription and invalidates the cached list.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Subscription, error) {
	var sub Subscription
	if err := s.api.Post(ctx, "subscriptions/", req, &sub); err != nil {
		return Subscription{}, err
	}

	s.cache.Delete(cache.SubscriptionsKey)
	return sub, nil
}

// Update applies a partial update and invalidates the cached list.
func (s *Service) Update(ctx context.Context, id int, req UpdateRequest) (Subscription, error) {
	var sub Subscription
	if err := s.api.Patch(ctx, fmt.Sprintf("subscriptions/%d/", id), req, &sub); err != nil {
		return Subscription{}, err
	}

	s.cache.Delete(cache.SubscriptionsKey)
	return sub, nil
}

// Delete removes a subscription and invalidates the cached list.
func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("subscriptions/%d/", id)); err != nil {
		return err
	}

	s.cache.Delete(cache.SubscriptionsKey)
	return nil
}
