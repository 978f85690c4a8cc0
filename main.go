package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/skycast-be/internal/api"
	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/config"
	"github.com/isdelr/skycast-be/internal/database"
	"github.com/isdelr/skycast-be/internal/logger"
	"github.com/isdelr/skycast-be/internal/mailer"
	"github.com/isdelr/skycast-be/internal/metrics"
	"github.com/isdelr/skycast-be/internal/monitoring"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/isdelr/skycast-be/internal/weather"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel)

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	if cfg.Auth.AllowDirectReset {
		log.Warn().Msg("Direct password reset is enabled; set ALLOW_DIRECT_RESET=false to require emailed tokens")
	}
	if cfg.Weather.APIKey == "" {
		log.Warn().Msg("WEATHER_API_KEY not set, weather lookups will fail")
	}

	appMetrics := metrics.New()

	// Set up services
	accountStore := services.NewAccountStore(db)
	eventService := appMetrics.InstrumentEvents(services.NewEventService(db))
	tokenService := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	outbound, err := mailer.New(cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up mailer")
	}
	authService := services.NewAuthService(
		accountStore,
		tokenService,
		auth.NewBcryptHasher(bcrypt.DefaultCost),
		outbound,
		eventService,
		cfg.Auth,
	)
	profileService := services.NewProfileService(accountStore, eventService)
	weatherClient := appMetrics.InstrumentWeather(weather.NewClient(cfg.Weather))

	// Set up and run the reset token sweeper
	sweeper, err := monitoring.NewSweeper(accountStore, eventService, cfg.SweepSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up reset token sweeper")
	}
	go sweeper.Run()

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Auth:        authService,
		Profiles:    profileService,
		Weather:     weatherClient,
		Tokens:      tokenService,
		DB:          db,
		Metrics:     appMetrics,
		CORSOrigins: cfg.CORSOrigins,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
