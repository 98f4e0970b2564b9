package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/cache"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/client"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/lifecycle"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/service"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/session"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/store"
)

// 2024-01-01T10:00:00Z
const baseEpoch int64 = 1704103200

func testSnapshot() models.WeatherSnapshot {
	hours := make([]models.HourlyEntry, 48)
	for i := range hours {
		hours[i] = models.HourlyEntry{Dt: baseEpoch + int64(i)*3600, Temp: float64(i)}
	}
	return models.WeatherSnapshot{
		Timezone: "UTC",
		Current: &models.Current{
			Dt: baseEpoch, Sunrise: baseEpoch - 3*3600, Sunset: baseEpoch + 5*3600, Temp: 1, UVI: 0.5,
			Weather: []models.Condition{{Main: "Snow", Description: "śnieg"}},
		},
		Hourly:     hours,
		Daily:      []models.Daily{{Dt: baseEpoch, Weather: []models.Condition{{Main: "Snow", Description: "śnieg"}}}},
		Alerts:     []models.Alert{{Event: "Yellow Snow warning", SenderName: "IMGW-PIB", Start: baseEpoch, End: baseEpoch + 86400}},
		AirQuality: 3,
	}
}

// mockWeatherClient serves testSnapshot for known places. Calls for a place
// listed in hold block until the channel is closed.
type mockWeatherClient struct {
	mu          sync.Mutex
	hold        map[string]chan struct{}
	calls       int
	snapshotErr error
	malformed   bool
	apiKeyErr   error
}

func (m *mockWeatherClient) Snapshot(ctx context.Context, loc models.Location, lang string) (models.WeatherSnapshot, error) {
	m.mu.Lock()
	m.calls++
	wait := m.hold[loc.Name]
	err := m.snapshotErr
	malformed := m.malformed
	m.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return models.WeatherSnapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return models.WeatherSnapshot{}, err
	}
	snap := testSnapshot()
	if malformed {
		snap.Current = nil
	}
	snap.Location = loc
	return snap, nil
}

func (m *mockWeatherClient) Geocode(ctx context.Context, name, lang string) (models.Location, error) {
	switch strings.ToLower(name) {
	case "łódź", "lodz":
		return models.Location{Name: "Łódź", Lat: 51.75, Lon: 19.45}, nil
	case "kraków", "krakow":
		return models.Location{Name: "Kraków", Lat: 50.06, Lon: 19.94}, nil
	}
	return models.Location{}, fmt.Errorf("geocode %q: %w", name, client.ErrLocationNotFound)
}

func (m *mockWeatherClient) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (models.Location, error) {
	return models.Location{Name: "Łódź", Lat: lat, Lon: lon}, nil
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error { return m.apiKeyErr }

func (m *mockWeatherClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testStack struct {
	client   *mockWeatherClient
	sessions *session.Manager
	handler  *Handler
	router   *mux.Router
}

func newTestStack(t testing.TB, limiter *rate.Limiter, health *HealthConfig) *testStack {
	t.Helper()
	catalog, err := i18n.LoadCatalog("pl")
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	mc := &mockWeatherClient{hold: map[string]chan struct{}{}}
	svc := service.NewWeatherService(mc, cache.NewInMemoryCache(), catalog, service.Config{CacheTTL: time.Minute}, nil)
	sessions := session.NewManager(store.NewMemoryStore(), session.Preferences{Language: "pl", Location: time.UTC, Clock24: true}, 0, nil)
	h := NewHandler(svc, mc, sessions, health, nil, 2, 100)
	h.now = func() time.Time { return time.Unix(baseEpoch, 0) }
	lifecycle.SetShuttingDown(false)
	return &testStack{
		client:   mc,
		sessions: sessions,
		handler:  h,
		router:   NewRouter(h, sessions, RouterConfig{Limiter: limiter, RequestTimeout: 5 * time.Second}),
	}
}

func (s *testStack) do(method, target, sessionID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

var errUpstream = errors.New("connection reset by peer")
