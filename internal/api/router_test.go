package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/config"
	"github.com/isdelr/skycast-be/internal/database"
	"github.com/isdelr/skycast-be/internal/mailer"
	"github.com/isdelr/skycast-be/internal/metrics"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/isdelr/skycast-be/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mailbox hands dispatched messages to the test.
type mailbox chan mailer.Message

func (m mailbox) Send(_ context.Context, msg mailer.Message) error {
	m <- msg
	return nil
}

// stubWeather records the last city it was asked for.
type stubWeather struct {
	mu       sync.Mutex
	lastCity string
	err      error
}

func (s *stubWeather) record(city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if city != "" {
		s.lastCity = city
	}
	return s.err
}

func (s *stubWeather) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubWeather) city() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCity
}

func (s *stubWeather) CurrentByCity(_ context.Context, city string) (weather.Current, error) {
	return weather.Current{Name: city, Main: weather.Measurements{Temp: 100}}, s.record(city)
}

func (s *stubWeather) CurrentByCoords(_ context.Context, lat, lon float64) (weather.Current, error) {
	return weather.Current{Name: "coords", Coord: weather.Coordinates{Lat: lat, Lon: lon}}, s.record("")
}

func (s *stubWeather) ForecastByCity(_ context.Context, city string) (weather.Forecast, error) {
	return weather.Forecast{City: weather.City{Name: city}}, s.record(city)
}

func (s *stubWeather) ForecastByCoords(_ context.Context, _, _ float64) (weather.Forecast, error) {
	return weather.Forecast{}, s.record("")
}

type testServer struct {
	srv     *httptest.Server
	mail    mailbox
	weather *stubWeather
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	cfg := config.AuthConfig{
		JWTSecret:        "router-secret",
		ResetTokenTTL:    time.Hour,
		ResetURLBase:     "http://localhost:3000/reset-password",
		AllowDirectReset: true,
	}
	store := services.NewAccountStore(db)
	events := services.NewEventService(db)
	tokens := auth.NewTokenService(cfg.JWTSecret, 0)
	mail := make(mailbox, 4)
	stub := &stubWeather{}

	router := NewRouter(Dependencies{
		Auth:        services.NewAuthService(store, tokens, auth.NewBcryptHasher(bcrypt.MinCost), mail, events, cfg),
		Profiles:    services.NewProfileService(store, events),
		Weather:     stub,
		Tokens:      tokens,
		DB:          db,
		Metrics:     metrics.New(),
		CORSOrigins: []string{"http://localhost:3000"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mail: mail, weather: stub}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) register(t *testing.T, username, email, password string) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterThenProfile(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "bob", "b@x.io", "pw1")

	resp, profile := ts.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", profile["username"])
	assert.Contains(t, profile, "preferredCity")
	assert.Nil(t, profile["preferredCity"])
	assert.Equal(t, map[string]any{"temperatureUnit": "celsius", "notifications": false}, profile["settings"])
	assert.NotContains(t, profile, "passwordHash")
	assert.NotContains(t, profile, "PasswordHash")
}

func TestRegisterDuplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "bob", "b@x.io", "pw1")

	resp, body := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "bob", "email": "other@x.io", "password": "pw2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Username already exists", body["error"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "bob", "b@x.io", "pw1")

	resp, body := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "bob", "password": "pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	wrongResp, wrong := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "bob", "password": "nope"})
	unknownResp, unknown := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "nobody", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownResp.StatusCode)
	assert.Equal(t, wrong, unknown)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Missing auth token", body["error"])

	resp, _ = ts.do(t, http.MethodPatch, "/api/user/preferences", "garbage", map[string]any{"preferredCity": "Oslo"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdatePreferences(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "bob", "b@x.io", "pw1")

	resp, body := ts.do(t, http.MethodPatch, "/api/user/preferences", token, map[string]any{
		"preferredCity": "Oslo",
		"settings":      map[string]any{"temperatureUnit": "fahrenheit"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Oslo", body["preferredCity"])
	assert.Equal(t, map[string]any{"temperatureUnit": "fahrenheit", "notifications": false}, body["settings"])

	resp, body = ts.do(t, http.MethodPatch, "/api/user/preferences", token, map[string]any{"username": "mallory"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "username")

	resp, _ = ts.do(t, http.MethodPatch, "/api/user/preferences", token, map[string]any{
		"settings": map[string]any{"temperatureUnit": "kelvin"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, profile := ts.do(t, http.MethodGet, "/api/user/profile", token, nil)
	assert.Equal(t, "bob", profile["username"])
	assert.Equal(t, "Oslo", profile["preferredCity"])
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "bob", "b@x.io", "pw1")

	resp, body := ts.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "b@x.io"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password reset email sent", body["message"])
	assert.NotContains(t, body, "token")

	var msg mailer.Message
	select {
	case msg = <-ts.mail:
	case <-time.After(5 * time.Second):
		t.Fatal("reset mail was not dispatched")
	}
	assert.Equal(t, "b@x.io", msg.To)
	token := extractToken(t, msg.Body)

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": token, "newPassword": "pw2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": token, "newPassword": "pw3"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired reset token", body["error"])

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "bob", "password": "pw2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "ghost@x.io"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDirectResetRedirectsUnknownUsers(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "bob", "b@x.io", "pw1")

	resp, body := ts.do(t, http.MethodPost, "/api/auth/reset-password-direct", "", map[string]any{
		"username": "bob", "email": "wrong@x.io", "newPassword": "pw2",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "signup", body["redirect"])
	assert.NotEmpty(t, body["error"])

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/reset-password-direct", "", map[string]any{
		"username": "bob", "email": "b@x.io", "newPassword": "pw2",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestActivity(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "bob", "b@x.io", "pw1")

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/user/activity?limit=5", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.NotEmpty(t, events)
	assert.Equal(t, services.EventRegister, events[0]["type"])
}

func TestWeatherUsesPreferences(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/weather/current", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/weather/current?city=Rome", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Rome", body["name"])
	assert.Equal(t, "celsius", body["units"])

	token := ts.register(t, "bob", "b@x.io", "pw1")
	ts.do(t, http.MethodPatch, "/api/user/preferences", token, map[string]any{
		"preferredCity": "Oslo",
		"settings":      map[string]any{"temperatureUnit": "fahrenheit"},
	})

	resp, body = ts.do(t, http.MethodGet, "/api/weather/current", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Oslo", ts.weather.city())
	assert.Equal(t, "fahrenheit", body["units"])
	assert.InDelta(t, 212.0, body["main"].(map[string]any)["temp"], 1e-9)

	resp, body = ts.do(t, http.MethodGet, "/api/weather/forecast", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "hourly")
	assert.Contains(t, body, "daily")

	for _, query := range []string{"lat=200&lon=0", "lat=NaN&lon=NaN", "lat=10&lon=nan", "lat=Inf&lon=0"} {
		resp, _ = ts.do(t, http.MethodGet, "/api/weather/current?"+query, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestWeatherProviderFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.weather.setErr(apperror.NewExternalService("Weather service unavailable", nil))

	resp, body := ts.do(t, http.MethodGet, "/api/weather/forecast?city=Rome", "", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Weather service unavailable", body["error"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "bob", "b@x.io", "pw1")

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/api/auth/register"`)
}

func extractToken(t *testing.T, body string) string {
	t.Helper()
	for _, field := range bytes.Fields([]byte(body)) {
		u, err := url.Parse(string(field))
		if err == nil && u.Query().Get("token") != "" {
			return u.Query().Get("token")
		}
	}
	t.Fatalf("no reset link in %q", body)
	return ""
}
