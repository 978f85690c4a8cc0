package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/skycast-be/internal/api/handlers"
	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/metrics"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/isdelr/skycast-be/internal/weather"
)

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Auth        services.AuthServiceProvider
	Profiles    services.ProfileServiceProvider
	Weather     weather.Provider
	Tokens      auth.TokenVerifier
	DB          handlers.Pinger
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authHandler := handlers.NewAuthHandler(deps.Auth)
	userHandler := handlers.NewUserHandler(deps.Profiles)
	weatherHandler := handlers.NewWeatherHandler(deps.Weather, deps.Profiles)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Post("/reset-password-direct", authHandler.ResetPasswordDirect)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(auth.Middleware(deps.Tokens))
			r.Get("/profile", userHandler.GetProfile)
			r.Patch("/preferences", userHandler.UpdatePreferences)
			r.Get("/activity", userHandler.GetActivity)
		})

		r.Route("/weather", func(r chi.Router) {
			r.Use(auth.OptionalMiddleware(deps.Tokens))
			r.Get("/current", weatherHandler.Current)
			r.Get("/forecast", weatherHandler.Forecast)
		})
	})

	return r
}
