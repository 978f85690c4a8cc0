// Package client is a Go client for the account API that keeps the signed-in
// state of one user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/isdelr/skycast-be/internal/models"
	"github.com/isdelr/skycast-be/internal/weather"
	"github.com/rs/zerolog/log"
)

// State is the authentication state of a Session.
type State int

const (
	Unauthenticated State = iota
	Checking
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status   int
	Message  string
	Redirect string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Registration carries the fields sent when signing up.
type Registration struct {
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	PreferredCity *string `json:"preferredCity,omitempty"`
}

// Preferences is a partial update of the account's preferences.
type Preferences struct {
	PreferredCity *string              `json:"preferredCity,omitempty"`
	Settings      *SettingsPreferences `json:"settings,omitempty"`
}

// SettingsPreferences is a partial update of the account's settings.
type SettingsPreferences struct {
	TemperatureUnit *models.TemperatureUnit `json:"temperatureUnit,omitempty"`
	Notifications   *bool                   `json:"notifications,omitempty"`
}

type authResponse struct {
	User  models.Account `json:"user"`
	Token string         `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
}

// Option configures a Session.
type Option func(*Session)

// WithToken seeds the session with a previously issued token. Call Restore to
// validate it.
func WithToken(token string) Option {
	return func(s *Session) { s.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.http = c }
}

// Session holds the token and account of the signed-in user. Failed calls
// leave the held state untouched. It is safe for concurrent use.
type Session struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	state   State
	token   string
	account *models.Account
}

// NewSession creates an unauthenticated session against baseURL, the API root
// such as "http://localhost:8080/api".
func NewSession(baseURL string, opts ...Option) *Session {
	s := &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the held token, if any.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Account returns a copy of the signed-in account.
func (s *Session) Account() (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return models.Account{}, false
	}
	return *s.account, true
}

// Restore checks a held token against the profile endpoint. A rejected token
// or a failed request discards the token.
func (s *Session) Restore(ctx context.Context) State {
	s.mu.Lock()
	token := s.token
	if token == "" {
		s.state = Unauthenticated
		s.mu.Unlock()
		return Unauthenticated
	}
	s.state = Checking
	s.mu.Unlock()

	var account models.Account
	err := s.do(ctx, http.MethodGet, "/user/profile", token, nil, &account)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		// Login or Logout happened while checking.
		return s.state
	}
	if err != nil {
		log.Debug().Err(err).Msg("Stored session token rejected")
		s.token = ""
		s.account = nil
		s.state = Unauthenticated
		return s.state
	}
	s.account = &account
	s.state = Authenticated
	return s.state
}

// Login signs in and holds the returned token.
func (s *Session) Login(ctx context.Context, username, password string) (models.Account, error) {
	var resp authResponse
	body := map[string]string{"username": username, "password": password}
	if err := s.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return models.Account{}, err
	}
	s.signIn(resp)
	return resp.User, nil
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, reg Registration) (models.Account, error) {
	var resp authResponse
	if err := s.do(ctx, http.MethodPost, "/auth/register", "", reg, &resp); err != nil {
		return models.Account{}, err
	}
	s.signIn(resp)
	return resp.User, nil
}

// Logout forgets the token and account. The server is not contacted.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.account = nil
	s.state = Unauthenticated
}

// RequestPasswordReset asks the server to email a reset link.
func (s *Session) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.message(ctx, "/auth/forgot-password", map[string]string{"email": email})
}

// ResetPassword completes a reset with the emailed token.
func (s *Session) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	return s.message(ctx, "/auth/reset-password", map[string]string{"token": token, "newPassword": newPassword})
}

// ResetPasswordDirect resets by username and email. When no account matches,
// the returned *APIError has Redirect set to "signup".
func (s *Session) ResetPasswordDirect(ctx context.Context, username, email, newPassword string) (string, error) {
	return s.message(ctx, "/auth/reset-password-direct", map[string]string{
		"username": username, "email": email, "newPassword": newPassword,
	})
}

// UpdatePreferences patches the signed-in account and merges the result into
// the held account.
func (s *Session) UpdatePreferences(ctx context.Context, prefs Preferences) (models.Account, error) {
	token := s.Token()
	if token == "" {
		return models.Account{}, &APIError{Status: http.StatusUnauthorized, Message: "Not signed in"}
	}

	var account models.Account
	if err := s.do(ctx, http.MethodPatch, "/user/preferences", token, prefs, &account); err != nil {
		return models.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.account = &account
	}
	return account, nil
}

// FormatTemperature renders a Celsius reading in the signed-in account's unit,
// or Celsius when signed out.
func (s *Session) FormatTemperature(celsius float64) string {
	unit := models.Celsius
	if account, ok := s.Account(); ok && account.Settings.TemperatureUnit.Valid() {
		unit = account.Settings.TemperatureUnit
	}
	return weather.FormatTemperature(celsius, unit)
}

func (s *Session) signIn(resp authResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account := resp.User
	s.token = resp.Token
	s.account = &account
	s.state = Authenticated
}

func (s *Session) message(ctx context.Context, path string, body any) (string, error) {
	var resp messageResponse
	if err := s.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (s *Session) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Redirect: e.Redirect}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
