// Package testhelpers provides a configurable mock of the weather
// subscription backend for tests.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Backend is a mock API server with configurable responses and per-route
// request counting. Authenticated routes accept exactly the bearer token in
// ValidAccess; the renewal endpoint exchanges Refresh for NextAccess and
// promotes NextAccess to the accepted token.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests map[string]int

	ValidAccess string // access token accepted by authenticated routes
	Refresh     string // refresh token accepted by the renewal endpoint
	NextAccess  string // access token issued by a successful renewal
	NextRefresh string // rotated refresh token; empty means no rotation
	RenewStatus int    // status returned by the renewal endpoint

	// RenewDelay makes the renewal endpoint slow, so tests can pile up
	// concurrent renewals.
	RenewDelay time.Duration

	LoginEmail    string
	LoginPassword string

	Temp float64 // temperature reported by the weather route
}

// NewBackend starts a mock backend with working defaults: a logged-in session
// can renew once, and one subscription exists.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		requests:      map[string]int{},
		ValidAccess:   "access-0",
		Refresh:       "refresh-0",
		NextAccess:    "access-1",
		RenewStatus:   http.StatusOK,
		LoginEmail:    "user@example.com",
		LoginPassword: "secret",
		Temp:          15,
	}

	router := NewRouter()
	router.HandleFunc("POST /api/auth/login/", b.handleLogin)
	router.HandleFunc("POST /api/auth/register/", b.handleRegister)
	router.HandleFunc("POST /api/auth/refresh/", b.handleRenew)
	router.HandleFunc("POST /api/auth/logout/", b.handleLogout)
	router.HandleFunc("GET /api/auth/me/", b.handleProfile)
	router.HandleFunc("PATCH /api/auth/me/", b.handleProfileUpdate)
	router.HandleFunc("GET /api/weather/{cityID}/", b.handleWeather)
	router.HandleFunc("GET /api/cities/", b.handleCityList)
	router.HandleFunc("GET /api/cities/search/", b.handleCitySearch)
	router.HandleFunc("GET /api/cities/{id}/", b.handleCityDetail)
	router.HandleFunc("GET /api/subscriptions/", b.handleSubscriptionList)
	router.HandleFunc("POST /api/subscriptions/", b.handleSubscriptionCreate)
	router.HandleFunc("GET /api/subscriptions/{id}/", b.handleSubscriptionDetail)
	router.HandleFunc("PATCH /api/subscriptions/{id}/", b.handleSubscriptionUpdate)
	router.HandleFunc("DELETE /api/subscriptions/{id}/", b.handleSubscriptionDelete)

	b.Server = httptest.NewServer(router)
	t.Cleanup(b.Server.Close)

	return b
}

// Router dispatches "METHOD /path/{wildcard}/" patterns. The Go toolchain
// available here (1.21) predates method and wildcard patterns in
// net/http.ServeMux, so the same pattern strings are matched manually.
type Router struct {
	routes []route
}

type route struct {
	method  string
	segs    []string
	handler http.HandlerFunc
}

func NewRouter() *Router {
	return &Router{}
}

func (m *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		panic(fmt.Sprintf("route pattern %q must be \"METHOD /path\"", pattern))
	}

	m.routes = append(m.routes, route{
		method:  method,
		segs:    strings.Split(path, "/"),
		handler: handler,
	})
}

func (m *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segs := strings.Split(r.URL.Path, "/")

	for _, rt := range m.routes {
		if rt.method != r.Method || !rt.matches(segs) {
			continue
		}

		rt.handler(w, r)
		return
	}

	http.NotFound(w, r)
}

func (rt route) matches(segs []string) bool {
	if len(rt.segs) != len(segs) {
		return false
	}

	for i, pat := range rt.segs {
		if strings.HasPrefix(pat, "{") && strings.HasSuffix(pat, "}") {
			if segs[i] == "" {
				return false
			}
			continue
		}

		if pat != segs[i] {
			return false
		}
	}

	return true
}

// BaseURL returns the API base path of the mock server.
func (b *Backend) BaseURL() string {
	return b.Server.URL + "/api"
}

// RenewURL returns the credential renewal endpoint.
func (b *Backend) RenewURL() string {
	return b.BaseURL() + "/auth/refresh/"
}

// Requests returns the number of calls made to "METHOD /path".
func (b *Backend) Requests(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.requests[method+" "+path]
}

func (b *Backend) count(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests[r.Method+" "+r.URL.Path]++
}

func (b *Backend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return r.Header.Get("Authorization") == "Bearer "+b.ValidAccess
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Email != b.LoginEmail || req.Password != b.LoginPassword {
		WriteJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid email or password."})
		return
	}

	WriteJSON(w, http.StatusOK, b.session())
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	b.count(r)
	WriteJSON(w, http.StatusCreated, b.session())
}

func (b *Backend) session() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]any{
		"user": map[string]any{"id": 1, "email": b.LoginEmail, "username": "user"},
		"tokens": map[string]any{
			"access":  b.ValidAccess,
			"refresh": b.Refresh,
		},
	}
}

func (b *Backend) handleRenew(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if b.RenewDelay > 0 {
		time.Sleep(b.RenewDelay)
	}

	if b.RenewStatus != http.StatusOK {
		WriteJSON(w, b.RenewStatus, map[string]any{"detail": "Token is invalid or expired"})
		return
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	if req.Refresh != b.Refresh {
		b.mu.Unlock()
		WriteJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token is invalid or expired"})
		return
	}

	// the renewed token becomes the one protected routes accept
	b.ValidAccess = b.NextAccess
	body := map[string]any{"access": b.NextAccess}
	if b.NextRefresh != "" {
		b.Refresh = b.NextRefresh
		body["refresh"] = b.NextRefresh
	}
	b.mu.Unlock()

	WriteJSON(w, http.StatusOK, body)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.count(r)
	WriteJSON(w, http.StatusOK, map[string]any{"detail": "Successfully logged out."})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"id": 1, "email": b.LoginEmail, "username": "user"})
}

func (b *Backend) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	body := map[string]any{"id": 1, "email": b.LoginEmail, "username": "user"}

	var update map[string]any
	_ = json.NewDecoder(r.Body).Decode(&update)
	for key, value := range update {
		body[key] = value
	}

	WriteJSON(w, http.StatusOK, body)
}

func (b *Backend) handleWeather(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	b.mu.Lock()
	temp := b.Temp
	b.mu.Unlock()

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "current"
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"city":   map[string]any{"id": 1, "name": "Kyiv", "country": "UA"},
		"period": period,
		"data": []map[string]any{
			{"dt": 1704283200, "temp": temp, "description": "overcast clouds", "icon": "04d"},
		},
		"items_count": 1,
		"fetched_at":  "2026-01-01T12:00:00Z",
	})
}

func (b *Backend) handleCitySearch(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	query := r.URL.Query().Get("q")
	if query == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "Query parameter 'q' is required."})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"results": []map[string]any{{"id": 1, "name": "Kyiv", "country": "UA"}},
		"count":   1,
	})
}

func (b *Backend) handleCityList(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	WriteJSON(w, http.StatusOK, map[string]any{
		"count": 1,
		"results": []map[string]any{
			{"id": 1, "name": "Kyiv", "country": "UA"},
		},
	})
}

func (b *Backend) handleCityDetail(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	b.mu.Lock()
	temp := b.Temp
	b.mu.Unlock()

	WriteJSON(w, http.StatusOK, map[string]any{
		"id": 1, "name": "Kyiv", "country": "UA",
		"current_weather": map[string]any{"dt": 1704283200, "temp": temp, "description": "overcast clouds"},
	})
}

func (b *Backend) handleSubscriptionList(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count": 1,
		"results": []map[string]any{
			b.subscriptionBody(1),
		},
	})
}

func (b *Backend) handleSubscriptionCreate(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	var req struct {
		CityID   int             `json:"city_id"`
		CityData json.RawMessage `json:"city_data"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.CityID == 0 && len(req.CityData) == 0 {
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Either city_id or city_data is required.",
		})
		return
	}

	WriteJSON(w, http.StatusCreated, b.subscriptionBody(2))
}

func (b *Backend) handleSubscriptionDetail(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	WriteJSON(w, http.StatusOK, b.subscriptionBody(1))
}

func (b *Backend) handleSubscriptionUpdate(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	WriteJSON(w, http.StatusOK, b.subscriptionBody(1))
}

func (b *Backend) handleSubscriptionDelete(w http.ResponseWriter, r *http.Request) {
	b.count(r)

	if !b.authorized(r) {
		unauthorized(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) subscriptionBody(id int) map[string]any {
	return map[string]any{
		"id":                id,
		"city":              map[string]any{"id": 1, "name": "Kyiv", "country": "UA"},
		"period":            6,
		"forecast_period":   "current",
		"notification_type": "email",
		"is_active":         true,
	}
}

func unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, map[string]any{
		"detail": "Given token not valid for any token type",
	})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Sprintf("mock backend response encoding failed: %v", err))
	}
}
