package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/session"
)

// RouterConfig holds the middleware settings for NewRouter.
type RouterConfig struct {
	Logger *zap.Logger
	// Limiter guards the session routes; nil disables rate limiting.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires handler routes and middleware. /health and /metrics skip the
// session, rate limit and timeout layers.
func NewRouter(h *Handler, sessions *session.Manager, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	api.Use(SessionMiddleware(sessions, logger))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/weather", h.GetWeather).Methods("GET")
	api.HandleFunc("/weather/hourly", h.GetHourly).Methods("GET")
	api.HandleFunc("/favorites", h.GetFavorites).Methods("GET")
	api.HandleFunc("/favorites/toggle", h.PostFavoriteToggle).Methods("POST")
	return router
}
