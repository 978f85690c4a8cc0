package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/models"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/isdelr/skycast-be/internal/weather"
)

// ForecastResponse is the forecast payload with hourly and daily views.
type ForecastResponse struct {
	weather.Forecast
	Hourly []weather.ForecastItem `json:"hourly"`
	Daily  []weather.DailySummary `json:"daily"`
}

// WeatherHandler proxies lookups to the weather provider. Signed-in callers
// get their preferred city and unit as defaults.
type WeatherHandler struct {
	provider weather.Provider
	profiles services.ProfileServiceProvider
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(provider weather.Provider, profiles services.ProfileServiceProvider) *WeatherHandler {
	return &WeatherHandler{provider: provider, profiles: profiles}
}

// location is a resolved query: either a city or a coordinate pair.
type location struct {
	city     string
	lat, lon float64
	unit     models.TemperatureUnit
}

// Current handles GET /weather/current.
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	loc, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var current weather.Current
	if loc.city != "" {
		current, err = h.provider.CurrentByCity(r.Context(), loc.city)
	} else {
		current, err = h.provider.CurrentByCoords(r.Context(), loc.lat, loc.lon)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, current.InUnit(loc.unit))
}

// Forecast handles GET /weather/forecast.
func (h *WeatherHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	loc, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var forecast weather.Forecast
	if loc.city != "" {
		forecast, err = h.provider.ForecastByCity(r.Context(), loc.city)
	} else {
		forecast, err = h.provider.ForecastByCoords(r.Context(), loc.lat, loc.lon)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	forecast = forecast.InUnit(loc.unit)
	writeJSON(w, http.StatusOK, ForecastResponse{
		Forecast: forecast,
		Hourly:   forecast.Hourly(),
		Daily:    forecast.Daily(),
	})
}

// resolve reads city, lat/lon and units from the query, falling back to the
// signed-in account's preferences.
func (h *WeatherHandler) resolve(r *http.Request) (location, error) {
	q := r.URL.Query()
	loc := location{city: strings.TrimSpace(q.Get("city")), unit: models.Celsius}

	var account *models.Account
	if accountID, ok := auth.AccountIDFromContext(r.Context()); ok {
		if a, err := h.lookup(r.Context(), accountID); err == nil {
			account = &a
			loc.unit = a.Settings.TemperatureUnit
		}
	}

	if units := q.Get("units"); units != "" {
		unit := models.TemperatureUnit(strings.ToLower(units))
		if !unit.Valid() {
			return location{}, apperror.NewValidation("units must be \"celsius\" or \"fahrenheit\"")
		}
		loc.unit = unit
	}

	if loc.city != "" {
		return loc, nil
	}

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr != "" || lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil || math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return location{}, apperror.NewValidation("lat and lon must be valid coordinates")
		}
		loc.lat, loc.lon = lat, lon
		return loc, nil
	}

	if account != nil && account.PreferredCity != nil {
		loc.city = *account.PreferredCity
		return loc, nil
	}
	return location{}, apperror.NewValidation("city or lat and lon are required")
}

func (h *WeatherHandler) lookup(ctx context.Context, accountID string) (models.Account, error) {
	if h.profiles == nil {
		return models.Account{}, apperror.NewNotFound("User not found")
	}
	return h.profiles.GetProfile(ctx, accountID)
}
