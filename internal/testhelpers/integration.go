//go:build integration
// +build integration

// Package testhelpers builds live service stacks for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/cache"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/client"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/service"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/session"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a live One Call client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OneCallClient {
	t.Helper()
	c, err := client.NewOneCallClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOneCallClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a fully configured service for integration tests.
// Memcached is used when requested and reachable, otherwise the in-memory cache.
// Cleanup is registered on t.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, client.WeatherClient, cache.Cache) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	catalog, err := i18n.LoadCatalog("pl")
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	weatherClient := SetupIntegrationClient(t, cfg)

	var cacheSvc cache.Cache = cache.NewInMemoryCache()
	cacheType := "in_memory"
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err != nil {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		} else {
			t.Cleanup(func() { _ = mc.Close() })
			cacheSvc = mc
			cacheType = "memcached"
		}
	}

	svc := service.NewWeatherService(weatherClient, cacheSvc, catalog, service.Config{
		CacheTTL:        5 * time.Minute,
		CacheType:       cacheType,
		CoalesceTimeout: 5 * time.Second,
	}, logger)
	return svc, weatherClient, cacheSvc
}

// NewSessionManager returns a manager backed by an in-memory favorites store.
func NewSessionManager() *session.Manager {
	return session.NewManager(store.NewMemoryStore(), session.Preferences{Language: "pl", Location: time.UTC, Clock24: true}, 0, nil)
}
