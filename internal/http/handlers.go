package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/circuitbreaker"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/client"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/favorites"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/hourly"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/lifecycle"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/normalize"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/service"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/session"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/validation"
)

// HealthConfig holds optional dependency probes for the health handler.
type HealthConfig struct {
	// Breaker, when set, reports the upstream circuit state. An open circuit is degraded.
	Breaker *circuitbreaker.CircuitBreaker
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// StorePing, when set, checks the favorites store.
	StorePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	client         client.WeatherClient
	sessions       *session.Manager
	healthConfig   *HealthConfig
	logger         *zap.Logger
	queryMinLength int
	queryMaxLength int
	now            func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. queryMinLength and queryMaxLength bound
// place-name queries in runes; 0 disables a bound.
func NewHandler(
	weatherService *service.WeatherService,
	client client.WeatherClient,
	sessions *session.Manager,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	queryMinLength, queryMaxLength int,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		client:         client,
		sessions:       sessions,
		healthConfig:   healthConfig,
		logger:         logger,
		queryMinLength: queryMinLength,
		queryMaxLength: queryMaxLength,
		now:            time.Now,
	}
}

// GetWeather handles GET /weather?q=&lang=&tz=&range=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q, err := validation.ValidateQuery(params.Get("q"), h.queryMinLength, h.queryMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	sess := h.session(r)
	if !h.applyPreferences(w, r, sess) {
		return
	}
	mode := hourly.ParseRange(params.Get("range"))

	vm, err := h.weatherService.Fetch(r.Context(), sess, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.weatherService.Present(r.Context(), sess, vm, mode))
}

// GetHourly handles GET /weather/hourly?range=. It re-selects the hourly window
// from the session's current view-model without fetching.
func (h *Handler) GetHourly(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	mode := hourly.ParseRange(r.URL.Query().Get("range"))
	groups, err := h.weatherService.Hourly(sess, mode, h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if groups == nil {
		groups = []hourly.DayGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"range": mode,
		"days":  groups,
	})
}

// GetFavorites handles GET /favorites.
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favs := h.session(r).Favorites().Load(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"favorites": favs,
		"capacity":  favorites.Capacity,
	})
}

// PostFavoriteToggle handles POST /favorites/toggle with a {"name","lat","lon"} body.
// A full list answers 200 with result "rejected".
func (h *Handler) PostFavoriteToggle(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&loc); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "body must be {\"name\",\"lat\",\"lon\"}")
		return
	}
	loc.Name = strings.TrimSpace(loc.Name)
	if err := validation.ValidateLocation(loc); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	result, favs, err := h.session(r).Favorites().Toggle(r.Context(), loc)
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Warn("favorites toggle failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "FAVORITES_UNAVAILABLE", "Unable to save favorites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":    result,
		"favorites": favs,
		"active":    favorites.IsActive(loc, favs),
	})
}

// applyPreferences copies lang and tz query parameters into the session.
// It writes a 400 and returns false for an unknown time zone.
func (h *Handler) applyPreferences(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	params := r.URL.Query()
	if lang := strings.TrimSpace(params.Get("lang")); lang != "" {
		sess.SetLanguage(lang)
	}
	if tz := strings.TrimSpace(params.Get("tz")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_TIMEZONE", "unknown time zone: "+tz)
			return false
		}
		sess.SetLocation(loc)
	}
	switch params.Get("clock") {
	case "12":
		sess.SetClock24(false)
	case "24":
		sess.SetClock24(true)
	}
	return true
}

// session returns the request's session, creating an anonymous one when the
// session middleware did not run.
func (h *Handler) session(r *http.Request) *session.Session {
	if s, ok := r.Context().Value("session").(*session.Session); ok && s != nil {
		return s
	}
	return h.sessions.Get("")
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "api_key_invalid" || result.reason == "circuit_open" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil {
		if h.healthConfig.Breaker != nil {
			checks["circuitBreaker"] = h.healthConfig.Breaker.State().String()
		}
		if h.healthConfig.CachePing != nil {
			checks["cache"] = pingStatus(h.healthConfig.CachePing)
		}
		if h.healthConfig.StorePing != nil {
			checks["favoritesStore"] = pingStatus(h.healthConfig.StorePing)
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-station",
		"version":   "dev",
		"checks":    checks,
		"sessions":  h.sessions.Len(),
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

func pingStatus(ping func() error) string {
	if ping() == nil {
		return "healthy"
	}
	return "unhealthy"
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > circuit open > API key invalid > healthy.
// An open circuit skips the key probe so health checks don't hammer a failing upstream.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	switch lifecycle.Current() {
	case lifecycle.ShuttingDown:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.Starting:
		return healthResult{"starting", http.StatusServiceUnavailable, "not_ready"}
	}
	if h.healthConfig != nil && h.healthConfig.Breaker != nil && h.healthConfig.Breaker.State() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		corrID = v
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps service and upstream errors to responses. A superseded
// fetch answers 204 with no body. The underlying error is logged at DEBUG.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("weather request failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}
	switch {
	case errors.Is(err, service.ErrStaleResponse):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrNoWeather):
		writeError(w, r, http.StatusNotFound, "NO_WEATHER", "No weather loaded in this session")
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found")
	case errors.Is(err, normalize.ErrMalformedSnapshot):
		writeError(w, r, http.StatusBadGateway, "MALFORMED_SNAPSHOT", "Weather provider returned incomplete data")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
