package cache

import (
	"strconv"
	"strings"
)

// SubscriptionsKey caches the current user's subscription list. There is only
// one list per authenticated session, so the key carries no parameters.
const SubscriptionsKey = "subscriptions"

// Key joins the parts of a compound resource identity into a cache key.
// All keys are built here rather than formatted at call sites, so two
// logically different queries can never share a key and one logical query
// always produces the same key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// WeatherKey identifies a forecast query for one city and period,
// e.g. "weather:1:current".
func WeatherKey(cityID int, period string) string {
	return Key("weather", strconv.Itoa(cityID), period)
}

// CityKey identifies a single city detail lookup.
func CityKey(cityID int) string {
	return Key("cities", strconv.Itoa(cityID))
}

// CitySearchKey identifies a city search query. The query is normalized so
// that "Kyiv" and " kyiv " memoize as the same lookup.
func CitySearchKey(query string) string {
	return Key("cities", "search", strings.ToLower(strings.TrimSpace(query)))
}
