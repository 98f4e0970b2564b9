package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://api.example.com"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  ttl: "5m"
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

const fullEnvYAML = `
server:
  port: "9090"
weather_api:
  url: "https://api.example.com"
  timeout: "4s"
request:
  timeout: "3s"
cache:
  backend: memcached
  ttl: "2m"
  memcached:
    addrs: "mc1:11211,mc2:11211"
    timeout: "250ms"
    max_idle_conns: 8
favorites:
  backend: sqlite
  sqlite_path: "/var/lib/station/favorites.db"
reliability:
  retry_max_attempts: 2
  retry_base_delay: "50ms"
  retry_max_delay: "1s"
  rate_limit_rps: 20
  rate_limit_burst: 40
  coalesce_timeout: "0s"
  circuit_breaker:
    failure_threshold: 3
    success_threshold: 1
    timeout: "15s"
display:
  language: EN
  time_zone: "America/New_York"
  clock24: false
sessions:
  ttl: "1h"
  sweep_interval: "5m"
warming:
  locations:
    - {name: "Łódź", lat: 51.75, lon: 19.45}
    - {name: "Kraków", lat: 50.06, lon: 19.94}
  languages: [pl, en]
  interval: "30m"
shutdown:
  timeout: "20s"
metrics:
  tracked_locations: ["Łódź", "Kraków"]
`

var overrideVars = []string{
	"ENV_NAME", "WEATHER_API_KEY", "PORT", "CACHE_BACKEND", "MEMCACHED_ADDRS",
	"FAVORITES_BACKEND", "FAVORITES_SQLITE_PATH", "DEFAULT_LANGUAGE", "TIME_ZONE",
}

// isolate clears every variable Load reads and moves into a fresh directory
// holding config/dev.yaml. Both are restored when the test ends.
func isolate(t *testing.T, yaml string) string {
	t.Helper()
	for _, v := range overrideVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, yaml)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	isolate(t, minimalEnvYAML)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	dir := isolate(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_DotEnvSuppliesKey(t *testing.T) {
	dir := isolate(t, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=key-from-dotenv-file\nCACHE_BACKEND=memcached\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv-file" {
		t.Errorf("WeatherAPIKey = %q, want key from .env", cfg.WeatherAPIKey)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached from .env", cfg.CacheBackend)
	}
}

func TestLoad_EnvWinsOverDotEnv(t *testing.T) {
	dir := isolate(t, minimalEnvYAML)
	t.Setenv("WEATHER_API_KEY", "key-from-environment")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=key-from-dotenv-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-environment" {
		t.Errorf("WeatherAPIKey = %q, want environment value", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	isolate(t, minimalEnvYAML)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Setenv("WEATHER_API_KEY", "test-key-1234")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want config file not found", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t, "server: [unclosed")
	t.Setenv("WEATHER_API_KEY", "test-key-1234")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t, minimalEnvYAML)
	t.Setenv("WEATHER_API_KEY", "test-key-1234")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 2 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 5 * time.Second},
		{"CacheTTL", cfg.CacheTTL, 5 * time.Minute},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"MemcachedAddrs", cfg.MemcachedAddrs, "localhost:11211"},
		{"MemcachedMaxIdleConns", cfg.MemcachedMaxIdleConns, 2},
		{"FavoritesBackend", cfg.FavoritesBackend, "memory"},
		{"FavoritesSQLitePath", cfg.FavoritesSQLitePath, "data/favorites.db"},
		{"CoalesceTimeout", cfg.CoalesceTimeout, 5 * time.Second},
		{"BreakerFailureThreshold", cfg.BreakerFailureThreshold, 5},
		{"BreakerSuccessThreshold", cfg.BreakerSuccessThreshold, 2},
		{"BreakerTimeout", cfg.BreakerTimeout, 30 * time.Second},
		{"DefaultLanguage", cfg.DefaultLanguage, "pl"},
		{"TimeZone", cfg.TimeZone.String(), "Europe/Warsaw"},
		{"Clock24", cfg.Clock24, true},
		{"SessionTTL", cfg.SessionTTL, 24 * time.Hour},
		{"SessionSweepInterval", cfg.SessionSweepInterval, 10 * time.Minute},
		{"WarmInterval", cfg.WarmInterval, 15 * time.Minute},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(cfg.WarmLocations) != 0 {
		t.Errorf("WarmLocations = %v, want none", cfg.WarmLocations)
	}
	if len(cfg.WarmLanguages) != 1 || cfg.WarmLanguages[0] != "pl" {
		t.Errorf("WarmLanguages = %v, want [pl]", cfg.WarmLanguages)
	}
}

func TestLoad_AllSections(t *testing.T) {
	isolate(t, fullEnvYAML)
	t.Setenv("WEATHER_API_KEY", "test-key-1234")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" || cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("server/cache = %q %q %q", cfg.ServerPort, cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.FavoritesBackend != "sqlite" || cfg.FavoritesSQLitePath != "/var/lib/station/favorites.db" {
		t.Errorf("favorites = %q %q", cfg.FavoritesBackend, cfg.FavoritesSQLitePath)
	}
	if cfg.CoalesceTimeout != 0 {
		t.Errorf("CoalesceTimeout = %v, want 0 (disabled)", cfg.CoalesceTimeout)
	}
	if cfg.BreakerFailureThreshold != 3 || cfg.BreakerSuccessThreshold != 1 || cfg.BreakerTimeout != 15*time.Second {
		t.Errorf("breaker = %d %d %v", cfg.BreakerFailureThreshold, cfg.BreakerSuccessThreshold, cfg.BreakerTimeout)
	}
	if cfg.DefaultLanguage != "en" || cfg.TimeZone.String() != "America/New_York" || cfg.Clock24 {
		t.Errorf("display = %q %v %v", cfg.DefaultLanguage, cfg.TimeZone, cfg.Clock24)
	}
	if cfg.SessionTTL != time.Hour || cfg.SessionSweepInterval != 5*time.Minute {
		t.Errorf("sessions = %v %v", cfg.SessionTTL, cfg.SessionSweepInterval)
	}
	if len(cfg.WarmLocations) != 2 || cfg.WarmLocations[0].Name != "Łódź" || cfg.WarmLocations[1].Lat != 50.06 {
		t.Errorf("WarmLocations = %+v", cfg.WarmLocations)
	}
	if len(cfg.WarmLanguages) != 2 || cfg.WarmInterval != 30*time.Minute {
		t.Errorf("warming = %v %v", cfg.WarmLanguages, cfg.WarmInterval)
	}
	if len(cfg.TrackedLocations) != 2 {
		t.Errorf("TrackedLocations = %v", cfg.TrackedLocations)
	}
	// request timeout below the upstream timeout is raised.
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t, minimalEnvYAML)
	t.Setenv("WEATHER_API_KEY", "test-key-1234")
	t.Setenv("PORT", "7000")
	t.Setenv("CACHE_BACKEND", " Memcached ")
	t.Setenv("MEMCACHED_ADDRS", "cache:11211")
	t.Setenv("FAVORITES_BACKEND", "memcached")
	t.Setenv("DEFAULT_LANGUAGE", "en")
	t.Setenv("TIME_ZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "7000" || cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "cache:11211" {
		t.Errorf("overrides = %q %q %q", cfg.ServerPort, cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.FavoritesBackend != "memcached" || cfg.DefaultLanguage != "en" || cfg.TimeZone != time.UTC {
		t.Errorf("overrides = %q %q %v", cfg.FavoritesBackend, cfg.DefaultLanguage, cfg.TimeZone)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		yaml    string
		wantErr string
	}{
		{"bad cache backend", map[string]string{"CACHE_BACKEND": "redis"}, minimalEnvYAML, "CacheBackend"},
		{"bad favorites backend", map[string]string{"FAVORITES_BACKEND": "postgres"}, minimalEnvYAML, "FavoritesBackend"},
		{"short api key", map[string]string{"WEATHER_API_KEY": "short"}, minimalEnvYAML, "WeatherAPIKey"},
		{"bad time zone", map[string]string{"TIME_ZONE": "Mars/Olympus"}, minimalEnvYAML, "time_zone"},
		{"non-numeric port", map[string]string{"PORT": "http"}, minimalEnvYAML, "ServerPort"},
		{"zero api timeout", nil, strings.Replace(minimalEnvYAML, `timeout: "2s"`, `timeout: "0s"`, 1), "WeatherAPITimeout"},
		{"burst below rps", nil, strings.Replace(minimalEnvYAML, "rate_limit_burst: 10", "rate_limit_burst: 2", 1), "RateLimitBurst"},
		{"warm location out of range", nil, minimalEnvYAML + "warming:\n  locations:\n    - {name: x, lat: 95, lon: 0}\n", "WarmLocations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t, tt.yaml)
			t.Setenv("WEATHER_API_KEY", "test-key-1234")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"garbage", time.Second},
		{"-5s", time.Second},
		{"0s", time.Second},
		{" 250ms ", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseDurationOrZero("0s", time.Second); got != 0 {
		t.Errorf("parseDurationOrZero(0s) = %v, want 0", got)
	}
}

// TestLoad_ProjectConfig loads the checked-in config/dev.yaml.
func TestLoad_ProjectConfig(t *testing.T) {
	root := findProjectRoot(t)
	data, err := os.ReadFile(filepath.Join(root, "config", "dev.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	isolate(t, string(data))
	t.Setenv("WEATHER_API_KEY", "test-key-1234")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with config/dev.yaml error = %v", err)
	}
	if cfg.DefaultLanguage != "pl" {
		t.Errorf("DefaultLanguage = %q, want pl", cfg.DefaultLanguage)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
