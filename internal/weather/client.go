package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// ErrProvider is wrapped by every failed provider call.
var ErrProvider = errors.New("weather provider error")

// Provider is the set of lookups the HTTP layer needs.
type Provider interface {
	CurrentByCity(ctx context.Context, city string) (Current, error)
	CurrentByCoords(ctx context.Context, lat, lon float64) (Current, error)
	ForecastByCity(ctx context.Context, city string) (Forecast, error)
	ForecastByCoords(ctx context.Context, lat, lon float64) (Forecast, error)
}

// Client talks to an OpenWeatherMap compatible API. Results are always
// requested in metric units.
type Client struct {
	baseURL     string
	iconBaseURL string
	apiKey      string
	http        *http.Client
	retries     uint64
	retryBase   time.Duration
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.WeatherConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		iconBaseURL: strings.TrimRight(cfg.IconBaseURL, "/"),
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: cfg.Timeout},
		retries:     cfg.Retries,
		retryBase:   250 * time.Millisecond,
	}
}

// IconURL returns the image URL for a provider icon code.
func (c *Client) IconURL(code string) string {
	if code == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s@2x.png", c.iconBaseURL, code)
}

// CurrentByCity fetches current conditions for a city name.
func (c *Client) CurrentByCity(ctx context.Context, city string) (Current, error) {
	var out Current
	err := c.get(ctx, "weather", url.Values{"q": {city}}, &out)
	c.decorateConditions(out.Weather)
	return out, err
}

// CurrentByCoords fetches current conditions for a location.
func (c *Client) CurrentByCoords(ctx context.Context, lat, lon float64) (Current, error) {
	var out Current
	err := c.get(ctx, "weather", coords(lat, lon), &out)
	c.decorateConditions(out.Weather)
	return out, err
}

// ForecastByCity fetches the 5 day / 3 hour forecast for a city name.
func (c *Client) ForecastByCity(ctx context.Context, city string) (Forecast, error) {
	var out Forecast
	err := c.get(ctx, "forecast", url.Values{"q": {city}}, &out)
	c.decorateForecast(&out)
	return out, err
}

// ForecastByCoords fetches the 5 day / 3 hour forecast for a location.
func (c *Client) ForecastByCoords(ctx context.Context, lat, lon float64) (Forecast, error) {
	var out Forecast
	err := c.get(ctx, "forecast", coords(lat, lon), &out)
	c.decorateForecast(&out)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var body []byte
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		body, err = c.fetch(ctx, endpoint, reqURL)
		return err
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperror.NewExternalService("Weather service returned an invalid response", fmt.Errorf("%w: decode: %v", ErrProvider, err))
	}
	return nil
}

// fetch performs one request. Network failures, 429 and 5xx responses are
// marked retryable.
func (c *Client) fetch(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperror.NewInternal("Failed to build weather request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("Weather provider request failed")
		return nil, retry.RetryableError(apperror.NewExternalService("Weather service unavailable", fmt.Errorf("%w: %v", ErrProvider, err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, retry.RetryableError(apperror.NewExternalService("Weather service unavailable", fmt.Errorf("%w: read body: %v", ErrProvider, err)))
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var perr providerError
	_ = json.Unmarshal(body, &perr)
	log.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Str("provider_message", perr.Message).Msg("Weather provider returned an error")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperror.NewNotFound("Location not found")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, retry.RetryableError(providerStatusError(resp.StatusCode, perr.Message))
	default:
		return nil, providerStatusError(resp.StatusCode, perr.Message)
	}
}

func providerStatusError(status int, message string) *apperror.AppError {
	return apperror.NewExternalService("Weather service unavailable", fmt.Errorf("%w: status %d: %s", ErrProvider, status, message))
}

func (c *Client) decorateConditions(conds []Condition) {
	for i := range conds {
		conds[i].IconURL = c.IconURL(conds[i].Icon)
	}
}

func (c *Client) decorateForecast(f *Forecast) {
	for i := range f.List {
		c.decorateConditions(f.List[i].Weather)
	}
}

func coords(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
}
