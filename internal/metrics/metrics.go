// Package metrics exposes Prometheus metrics for the API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/models"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/isdelr/skycast-be/internal/weather"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	accountEvents   *prometheus.CounterVec
	weatherRequests *prometheus.CounterVec
	weatherDuration *prometheus.HistogramVec
}

// New creates a Metrics with Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skycast_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		accountEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_account_events_total",
			Help: "Total number of recorded account events by type and level",
		}, []string{"type", "level"}),
		weatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_weather_requests_total",
			Help: "Total number of weather provider lookups by operation and outcome",
		}, []string{"operation", "outcome"}),
		weatherDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skycast_weather_request_duration_seconds",
			Help:    "Histogram of weather provider latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.accountEvents,
		m.weatherRequests,
		m.weatherDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware counts requests by chi route pattern, so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// InstrumentEvents counts every event recorded through events.
func (m *Metrics) InstrumentEvents(events services.EventServiceProvider) services.EventServiceProvider {
	return &instrumentedEvents{next: events, counter: m.accountEvents}
}

type instrumentedEvents struct {
	next    services.EventServiceProvider
	counter *prometheus.CounterVec
}

func (e *instrumentedEvents) CreateEvent(ctx context.Context, eventType, level, message string, accountID *string) error {
	e.counter.WithLabelValues(eventType, level).Inc()
	return e.next.CreateEvent(ctx, eventType, level, message, accountID)
}

func (e *instrumentedEvents) GetRecentEvents(ctx context.Context, accountID string, limit int) ([]models.Event, error) {
	return e.next.GetRecentEvents(ctx, accountID, limit)
}

// InstrumentWeather times every provider lookup.
func (m *Metrics) InstrumentWeather(p weather.Provider) weather.Provider {
	return &instrumentedWeather{next: p, m: m}
}

type instrumentedWeather struct {
	next weather.Provider
	m    *Metrics
}

func (w *instrumentedWeather) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case apperror.IsNotFound(err):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	w.m.weatherRequests.WithLabelValues(operation, outcome).Inc()
	w.m.weatherDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (w *instrumentedWeather) CurrentByCity(ctx context.Context, city string) (weather.Current, error) {
	start := time.Now()
	out, err := w.next.CurrentByCity(ctx, city)
	w.observe("current", start, err)
	return out, err
}

func (w *instrumentedWeather) CurrentByCoords(ctx context.Context, lat, lon float64) (weather.Current, error) {
	start := time.Now()
	out, err := w.next.CurrentByCoords(ctx, lat, lon)
	w.observe("current", start, err)
	return out, err
}

func (w *instrumentedWeather) ForecastByCity(ctx context.Context, city string) (weather.Forecast, error) {
	start := time.Now()
	out, err := w.next.ForecastByCity(ctx, city)
	w.observe("forecast", start, err)
	return out, err
}

func (w *instrumentedWeather) ForecastByCoords(ctx context.Context, lat, lon float64) (weather.Forecast, error) {
	start := time.Now()
	out, err := w.next.ForecastByCoords(ctx, lat, lon)
	w.observe("forecast", start, err)
	return out, err
}
