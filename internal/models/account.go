package models

import (
	"strings"
	"time"
)

// TemperatureUnit is the unit the account wants temperatures rendered in.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

// Valid reports whether u is one of the supported units.
func (u TemperatureUnit) Valid() bool {
	return u == Celsius || u == Fahrenheit
}

// Settings holds the per-account display settings.
type Settings struct {
	TemperatureUnit TemperatureUnit `json:"temperatureUnit"`
	Notifications   bool            `json:"notifications"`
}

// DefaultSettings returns the settings a new account starts with.
func DefaultSettings() Settings {
	return Settings{TemperatureUnit: Celsius, Notifications: false}
}

// Account represents a user account in the system.
type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"` // Never expose this to the client
	PreferredCity *string   `json:"preferredCity"`
	Settings      Settings  `json:"settings"`
	CreatedAt     time.Time `json:"createdAt"`

	// Reset tokens are stored hashed and never leave the server.
	ResetTokenHash   *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
}

// Sanitized returns a copy of the account with every secret field cleared.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	a.ResetTokenHash = nil
	a.ResetTokenExpiry = nil
	return a
}

// HasValidResetToken reports whether the account holds a reset token that has
// not expired at now.
func (a Account) HasValidResetToken(now time.Time) bool {
	return a.ResetTokenHash != nil && a.ResetTokenExpiry != nil && now.Before(*a.ResetTokenExpiry)
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountPatch is a merge-patch over an account. Nil fields are left untouched.
// ClearResetToken removes both reset token fields.
type AccountPatch struct {
	PreferredCity    *string
	ClearCity        bool
	TemperatureUnit  *TemperatureUnit
	Notifications    *bool
	PasswordHash     *string
	ResetTokenHash   *string
	ResetTokenExpiry *time.Time
	ClearResetToken  bool
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p.PreferredCity == nil && !p.ClearCity && p.TemperatureUnit == nil &&
		p.Notifications == nil && p.PasswordHash == nil && p.ResetTokenHash == nil &&
		p.ResetTokenExpiry == nil && !p.ClearResetToken
}
