package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/cache"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/circuitbreaker"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/client"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/config"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/favorites"
	httphandler "github.com/FoerchByte/foerch-weather-station-sub000/internal/http"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/lifecycle"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/service"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/session"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/store"
)

const (
	queryMinLength = 2
	queryMaxLength = 100
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	catalog, err := i18n.LoadCatalog(cfg.DefaultLanguage)
	if err != nil {
		logger.Fatal("translation tables", zap.Error(err))
	}
	logger.Info("translation tables loaded", zap.Strings("languages", catalog.Languages()), zap.String("default", catalog.Default().Language()))

	weatherClient, err := client.NewOneCallClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        "weather_api",
		IsFailure:        client.IsBreakerFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	weatherClient.WithBreaker(breaker)

	snapshots, cachePing, closeCache := buildCache(cfg, logger)
	defer closeCache()

	ctx := context.Background()
	favStore, storePing, closeStore, err := openFavoritesStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("favorites store", zap.Error(err))
	}
	defer closeStore()

	weatherService := service.NewWeatherService(weatherClient, snapshots, catalog, service.Config{
		CacheTTL:        cfg.CacheTTL,
		CacheType:       cfg.CacheBackend,
		CoalesceTimeout: cfg.CoalesceTimeout,
	}, logger)

	sessions := session.NewManager(favStore, session.Preferences{
		Language: cfg.DefaultLanguage,
		Location: cfg.TimeZone,
		Clock24:  cfg.Clock24,
	}, cfg.SessionTTL, logger)
	sweeper, err := startSweeper(sessions, cfg.SessionSweepInterval, cfg.SessionTTL, logger)
	if err != nil {
		logger.Fatal("session sweeper", zap.Error(err))
	}
	if sweeper != nil {
		defer sweeper.Stop()
	}

	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	warmer := cache.NewWarmer(weatherService, cfg.WarmLocations, cfg.WarmLanguages, cfg.WeatherAPITimeout*time.Duration(cfg.RetryAttempts+1), logger)
	if err := warmer.Start(cfg.WarmInterval); err != nil {
		logger.Fatal("cache warming", zap.Error(err))
	}
	defer warmer.Stop()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, weatherClient, sessions, &httphandler.HealthConfig{
		Breaker:   breaker,
		CachePing: cachePing,
		StorePing: storePing,
	}, logger, queryMinLength, queryMaxLength)
	router := httphandler.NewRouter(handler, sessions, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.MarkReady()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete", zap.Int("sessions", sessions.Len()))
}

// buildCache returns the snapshot cache for the configured backend, a ping
// for health (nil for in-memory) and a close func.
func buildCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, func() error, func()) {
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached unreachable at startup; cache misses will fall through to the provider", zap.String("addrs", cfg.MemcachedAddrs), zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, func() {
			if err := mc.Close(); err != nil {
				logger.Error("memcached close", zap.Error(err))
			}
		}
	}
	logger.Info("cache backend: in_memory")
	return cache.NewInMemoryCache(), nil, func() {}
}

// openFavoritesStore opens the persisted store for the configured backend.
// The ping is nil for the in-memory store.
func openFavoritesStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (favorites.Store, func() error, func(), error) {
	switch cfg.FavoritesBackend {
	case "sqlite":
		if dir := filepath.Dir(cfg.FavoritesSQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("create favorites directory: %w", err)
			}
		}
		s, err := store.OpenSQLiteStore(ctx, cfg.FavoritesSQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("favorites backend: sqlite", zap.String("path", cfg.FavoritesSQLitePath))
		return s, s.Ping, func() {
			if err := s.Close(); err != nil {
				logger.Error("sqlite close", zap.Error(err))
			}
		}, nil
	case "memcached":
		s := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		logger.Info("favorites backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return s, s.Ping, func() {
			if err := s.Close(); err != nil {
				logger.Error("memcached close", zap.Error(err))
			}
		}, nil
	default:
		logger.Info("favorites backend: memory")
		return store.NewMemoryStore(), nil, func() {}, nil
	}
}

// startSweeper expires idle sessions on a schedule. It returns nil when
// sessions never expire.
func startSweeper(sessions *session.Manager, interval, ttl time.Duration, logger *zap.Logger) (*gocron.Scheduler, error) {
	if ttl <= 0 {
		logger.Info("session expiry disabled")
		return nil, nil
	}
	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(interval).Do(func() { sessions.Sweep() }); err != nil {
		return nil, fmt.Errorf("schedule session sweep: %w", err)
	}
	s.StartAsync()
	return s, nil
}
