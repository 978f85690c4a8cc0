package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int      `env:"PORT"          envDefault:"8080"`
	DatabasePath string   `env:"DATABASE_PATH" envDefault:"./skycast.db"`
	LogLevel     string   `env:"LOG_LEVEL"     envDefault:"info"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	Auth    AuthConfig
	Mail    MailConfig
	Weather WeatherConfig

	// SweepSchedule is the cron expression for clearing expired reset tokens.
	SweepSchedule string `env:"SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
}

// AuthConfig holds token and password reset settings.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	// TokenTTL of zero issues session tokens without an expiry.
	TokenTTL         time.Duration `env:"TOKEN_TTL"          envDefault:"0"`
	ResetTokenTTL    time.Duration `env:"RESET_TOKEN_TTL"    envDefault:"1h"`
	ResetURLBase     string        `env:"RESET_URL_BASE"     envDefault:"http://localhost:3000/reset-password"`
	AllowDirectReset bool          `env:"ALLOW_DIRECT_RESET" envDefault:"true"`
}

// MailConfig holds outbound email settings. An empty SMTPHost selects the
// logging transport.
type MailConfig struct {
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	From         string `env:"MAIL_FROM"     envDefault:"no-reply@skycast.local"`
}

// WeatherConfig holds weather provider settings.
type WeatherConfig struct {
	APIKey      string        `env:"WEATHER_API_KEY"`
	BaseURL     string        `env:"WEATHER_BASE_URL"      envDefault:"https://api.openweathermap.org/data/2.5"`
	IconBaseURL string        `env:"WEATHER_ICON_BASE_URL" envDefault:"https://openweathermap.org/img/wn"`
	Timeout     time.Duration `env:"HTTP_CLIENT_TIMEOUT"   envDefault:"10s"`
	// Retries is how many times a transient provider failure is retried.
	Retries uint64 `env:"WEATHER_RETRIES" envDefault:"2"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Auth.ResetTokenTTL <= 0 {
		return nil, fmt.Errorf("RESET_TOKEN_TTL must be positive, got %s", cfg.Auth.ResetTokenTTL)
	}
	return &cfg, nil
}
