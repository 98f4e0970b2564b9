package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/alerts"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/cache"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/client"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/favorites"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/hourly"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/normalize"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/overview"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/session"
)

var (
	// ErrStaleResponse means a newer fetch started in the same session while
	// this one was in flight. Its result was discarded.
	ErrStaleResponse = errors.New("stale response")

	// ErrNoWeather means the session has no accepted view-model yet.
	ErrNoWeather = errors.New("no weather loaded")
)

// Config tunes the service. Zero values get defaults.
type Config struct {
	CacheTTL time.Duration
	// CacheType labels cache metrics ("in_memory", "memcached").
	CacheType string
	// CoalesceTimeout bounds shared upstream fetches; zero disables coalescing.
	CoalesceTimeout time.Duration
}

// Presentation is everything the rendering layer needs for one view: the
// view-model plus its localized strings, the hourly window and favorite state.
type Presentation struct {
	Language        string                  `json:"language"`
	ViewModel       models.ViewModel        `json:"viewModel"`
	Overview        string                  `json:"overview"`
	RoadLabel       string                  `json:"roadLabel"`
	UVLabel         string                  `json:"uvLabel"`
	AirQualityLabel string                  `json:"airQualityLabel"`
	Alerts          []models.LocalizedAlert `json:"alerts"`
	Range           hourly.Range            `json:"range"`
	Hourly          []hourly.DayGroup       `json:"hourly"`
	IsFavorite      bool                    `json:"isFavorite"`
}

// WeatherService resolves queries, fetches snapshots cache-aside and derives
// view-models for sessions.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	catalog   *i18n.Catalog
	ttl       time.Duration
	cacheType string
	coalescer *requestCoalescer
	logger    *zap.Logger
	now       func() time.Time
}

// NewWeatherService creates a WeatherService. logger may be nil.
func NewWeatherService(c client.WeatherClient, snapshots cache.Cache, catalog *i18n.Catalog, cfg Config, logger *zap.Logger) *WeatherService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.CacheType == "" {
		cfg.CacheType = "in_memory"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var coalescer *requestCoalescer
	if cfg.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	return &WeatherService{
		client:    c,
		cache:     snapshots,
		catalog:   catalog,
		ttl:       cfg.CacheTTL,
		cacheType: cfg.CacheType,
		coalescer: coalescer,
		logger:    logger,
		now:       time.Now,
	}
}

// Fetch runs one search for sess: resolve q, load the snapshot, derive the
// view-model and install it in the session. If another Fetch began on sess
// meanwhile, the result (or failure) is dropped and ErrStaleResponse returned.
func (s *WeatherService) Fetch(ctx context.Context, sess *session.Session, q models.Query) (models.ViewModel, error) {
	ticket := sess.Begin(q)
	logger := observability.LoggerFrom(ctx, s.logger)
	prefs := sess.Preferences()
	lang := s.catalog.Table(prefs.Language).Language()

	vm, err := s.derive(ctx, q, lang, prefs)
	if !sess.IsCurrent(ticket) {
		observability.StaleResponsesTotal.Inc()
		logger.Debug("discarding superseded fetch", zap.Stringer("query", q), zap.Error(err))
		return models.ViewModel{}, ErrStaleResponse
	}
	if err != nil {
		return models.ViewModel{}, err
	}
	if !sess.Accept(ticket, vm) {
		observability.StaleResponsesTotal.Inc()
		logger.Debug("discarding superseded fetch", zap.Stringer("query", q))
		return models.ViewModel{}, ErrStaleResponse
	}
	logger.Debug("view-model accepted", zap.Stringer("query", q), zap.String("location", vm.Snapshot.Location.Key()))
	return vm, nil
}

func (s *WeatherService) derive(ctx context.Context, q models.Query, lang string, prefs session.Preferences) (models.ViewModel, error) {
	loc, err := s.resolve(ctx, q, lang)
	if err != nil {
		return models.ViewModel{}, err
	}
	observability.RecordWeatherQuery(loc.Name)

	snap, err := s.snapshot(ctx, loc, lang)
	if err != nil {
		return models.ViewModel{}, err
	}
	snap.Location = loc

	vm, err := normalize.Normalize(snap, normalize.Options{Location: prefs.Location, Clock24: prefs.Clock24})
	if err != nil {
		if errors.Is(err, normalize.ErrMalformedSnapshot) {
			observability.MalformedSnapshotsTotal.Inc()
		}
		return models.ViewModel{}, fmt.Errorf("normalize %s: %w", loc.Key(), err)
	}
	return vm, nil
}

// resolve turns a query into a named location.
func (s *WeatherService) resolve(ctx context.Context, q models.Query, lang string) (models.Location, error) {
	switch q := q.(type) {
	case models.ByName:
		return s.client.Geocode(ctx, q.Name, lang)
	case models.ByCoordinates:
		loc, err := s.client.ReverseGeocode(ctx, q.Lat, q.Lon, lang)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.Location{}, ctxErr
			}
			observability.LoggerFrom(ctx, s.logger).Debug("reverse geocode failed; naming by coordinates", zap.Error(err))
			loc = models.Location{Lat: q.Lat, Lon: q.Lon}
			loc.Name = loc.Key()
		}
		return loc, nil
	default:
		return models.Location{}, fmt.Errorf("unsupported query type %T", q)
	}
}

// snapshot returns the cached snapshot for loc or fetches and caches it.
// Cache errors degrade to a fetch.
func (s *WeatherService) snapshot(ctx context.Context, loc models.Location, lang string) (models.WeatherSnapshot, error) {
	key := cache.Key(loc, lang)
	logger := observability.LoggerFrom(ctx, s.logger)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(s.cacheType).Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues(s.cacheType).Inc()

	fetch := func(ctx context.Context) (models.WeatherSnapshot, error) {
		snap, err := s.client.Snapshot(ctx, loc, lang)
		if err != nil {
			return models.WeatherSnapshot{}, err
		}
		if setErr := s.cache.Set(ctx, key, snap, s.ttl); setErr != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
		return snap, nil
	}

	if s.coalescer == nil {
		return fetch(ctx)
	}
	snap, shared, err := s.coalescer.GetOrDo(ctx, key, fetch)
	if shared {
		logger.Debug("joined in-flight fetch", zap.String("key", key))
	}
	return snap, err
}

// Prefetch loads loc in lang into the cache without touching any session.
// It implements cache.Prefetcher.
func (s *WeatherService) Prefetch(ctx context.Context, loc models.Location, lang string) error {
	lang = s.catalog.Table(lang).Language()
	key := cache.Key(loc, lang)
	snap, err := s.client.Snapshot(ctx, loc, lang)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, snap, s.ttl)
}

// Hourly runs the hourly window selector over the session's current view-model.
func (s *WeatherService) Hourly(sess *session.Session, mode hourly.Range, now time.Time) ([]hourly.DayGroup, error) {
	vm, ok := sess.Current()
	if !ok {
		return nil, ErrNoWeather
	}
	prefs := sess.Preferences()
	return hourly.Select(vm.Snapshot.Hourly, mode, now, prefs.Location, s.catalog.Table(prefs.Language)), nil
}

// Present localizes vm for sess and attaches the hourly window and whether
// the location is a favorite.
func (s *WeatherService) Present(ctx context.Context, sess *session.Session, vm models.ViewModel, mode hourly.Range) Presentation {
	prefs := sess.Preferences()
	table := s.catalog.Table(prefs.Language)
	favs := sess.Favorites().Load(ctx)

	return Presentation{
		Language:        table.Language(),
		ViewModel:       vm,
		Overview:        overview.Generate(vm.GeneratedOverview, table),
		RoadLabel:       table.Label(i18n.GroupRoad, string(vm.RoadCondition.Key)),
		UVLabel:         table.Label(i18n.GroupUV, string(vm.UVCategory)),
		AirQualityLabel: table.Label(i18n.GroupAirQuality, vm.AirQuality.Key),
		Alerts:          alerts.Localize(vm.Snapshot.Alerts, table, prefs.Location),
		Range:           mode,
		Hourly:          hourly.Select(vm.Snapshot.Hourly, mode, s.now(), prefs.Location, table),
		IsFavorite:      favorites.IsActive(vm.Snapshot.Location, favs),
	}
}

// Current returns the presentation of the session's accepted view-model.
func (s *WeatherService) Current(ctx context.Context, sess *session.Session, mode hourly.Range) (Presentation, error) {
	vm, ok := sess.Current()
	if !ok {
		return Presentation{}, ErrNoWeather
	}
	return s.Present(ctx, sess, vm, mode), nil
}
