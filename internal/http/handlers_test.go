package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/circuitbreaker"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/lifecycle"
)

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

type presentationBody struct {
	Language        string `json:"language"`
	Overview        string `json:"overview"`
	RoadLabel       string `json:"roadLabel"`
	UVLabel         string `json:"uvLabel"`
	AirQualityLabel string `json:"airQualityLabel"`
	IsFavorite      bool   `json:"isFavorite"`
	Range           int    `json:"range"`
	Alerts          []struct {
		Label string `json:"label"`
	} `json:"alerts"`
	ViewModel struct {
		Snapshot struct {
			Location struct {
				Name string  `json:"name"`
				Lat  float64 `json:"lat"`
			} `json:"location"`
		} `json:"snapshot"`
		FormattedTimes struct {
			Sunrise string `json:"sunrise"`
		} `json:"formattedTimes"`
	} `json:"viewModel"`
}

type toggleBody struct {
	Result    string `json:"result"`
	Active    bool   `json:"active"`
	Favorites []struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	} `json:"favorites"`
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func TestGetWeather_Success(t *testing.T) {
	s := newTestStack(t, nil, nil)
	w := s.do("GET", "/weather?q="+url.QueryEscape("Łódź"), "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Header().Get(SessionHeader) == "" {
		t.Error("X-Session-ID header missing")
	}
	var p presentationBody
	decode(t, w.Body.Bytes(), &p)
	if p.Language != "pl" || p.Overview != "Spodziewaj się śniegu w ciągu dnia." {
		t.Errorf("language %q overview %q", p.Language, p.Overview)
	}
	if p.RoadLabel != "Możliwa gołoledź" || p.UVLabel != "Niski" || p.AirQualityLabel != "Dostateczna" {
		t.Errorf("labels = %q / %q / %q", p.RoadLabel, p.UVLabel, p.AirQualityLabel)
	}
	if len(p.Alerts) != 1 || p.Alerts[0].Label != "Żółte ostrzeżenie: intensywne opady śniegu" {
		t.Errorf("alerts = %+v", p.Alerts)
	}
	if p.ViewModel.Snapshot.Location.Name != "Łódź" || p.ViewModel.FormattedTimes.Sunrise != "07:00" {
		t.Errorf("view-model location %q sunrise %q", p.ViewModel.Snapshot.Location.Name, p.ViewModel.FormattedTimes.Sunrise)
	}
	if p.Range != 24 || p.IsFavorite {
		t.Errorf("range %d favorite %v", p.Range, p.IsFavorite)
	}
}

func TestGetWeather_Preferences(t *testing.T) {
	s := newTestStack(t, nil, nil)
	w := s.do("GET", "/weather?q=lodz&lang=en&tz=Europe/Warsaw&clock=12&range=48", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var p presentationBody
	decode(t, w.Body.Bytes(), &p)
	if p.Language != "en" || p.RoadLabel != "Risk of ice" {
		t.Errorf("language %q road %q", p.Language, p.RoadLabel)
	}
	if p.ViewModel.FormattedTimes.Sunrise != "8:00 AM" {
		t.Errorf("sunrise = %q, want 8:00 AM in Warsaw with 12h clock", p.ViewModel.FormattedTimes.Sunrise)
	}
	if p.Range != 48 {
		t.Errorf("range = %d, want 48", p.Range)
	}

	// Preferences stick to the session.
	sid := w.Header().Get(SessionHeader)
	sess := s.sessions.Get(sid)
	if prefs := sess.Preferences(); prefs.Language != "en" || prefs.Clock24 || prefs.Location.String() != "Europe/Warsaw" {
		t.Errorf("session preferences = %+v", prefs)
	}
}

func TestGetWeather_Coordinates(t *testing.T) {
	s := newTestStack(t, nil, nil)
	w := s.do("GET", "/weather?q=51.75,19.45", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var p presentationBody
	decode(t, w.Body.Bytes(), &p)
	if p.ViewModel.Snapshot.Location.Lat != 51.75 {
		t.Errorf("lat = %v", p.ViewModel.Snapshot.Location.Lat)
	}
}

func TestGetWeather_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		setup      func(*mockWeatherClient)
		wantStatus int
		wantCode   string
	}{
		{"missing query", "/weather", nil, http.StatusBadRequest, "INVALID_QUERY"},
		{"blank query", "/weather?q=%20%20", nil, http.StatusBadRequest, "INVALID_QUERY"},
		{"bad characters", "/weather?q=" + url.QueryEscape("<script>"), nil, http.StatusBadRequest, "INVALID_QUERY"},
		{"coordinates out of range", "/weather?q=91,0", nil, http.StatusBadRequest, "INVALID_QUERY"},
		{"bad time zone", "/weather?q=lodz&tz=Mars/Olympus", nil, http.StatusBadRequest, "INVALID_TIMEZONE"},
		{"unknown place", "/weather?q=Atlantyda", nil, http.StatusNotFound, "LOCATION_NOT_FOUND"},
		{"upstream failure", "/weather?q=lodz", func(m *mockWeatherClient) { m.snapshotErr = errUpstream }, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"malformed snapshot", "/weather?q=lodz", func(m *mockWeatherClient) { m.malformed = true }, http.StatusBadGateway, "MALFORMED_SNAPSHOT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStack(t, nil, nil)
			if tt.setup != nil {
				tt.setup(s.client)
			}
			w := s.do("GET", tt.target, "", "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var body errorBody
			decode(t, w.Body.Bytes(), &body)
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.RequestID == "" || body.Error.RequestID != w.Header().Get("X-Correlation-ID") {
				t.Errorf("requestId = %q, header %q", body.Error.RequestID, w.Header().Get("X-Correlation-ID"))
			}
		})
	}
}

// TestGetWeather_SupersededRequestGets204 holds one search open while a newer
// one in the same session completes.
func TestGetWeather_SupersededRequestGets204(t *testing.T) {
	s := newTestStack(t, nil, nil)
	sid := s.do("GET", "/favorites", "", "").Header().Get(SessionHeader)

	release := make(chan struct{})
	s.client.hold["Łódź"] = release

	slow := make(chan int, 1)
	go func() { slow <- s.do("GET", "/weather?q=lodz", sid, "").Code }()
	for s.client.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	fast := s.do("GET", "/weather?q=krakow", sid, "")
	if fast.Code != http.StatusOK {
		t.Fatalf("newer request status = %d", fast.Code)
	}
	close(release)
	if code := <-slow; code != http.StatusNoContent {
		t.Errorf("superseded request status = %d, want 204", code)
	}

	cur, ok := s.sessions.Get(sid).Current()
	if !ok || cur.Snapshot.Location.Name != "Kraków" {
		t.Errorf("session current = %q, want Kraków", cur.Snapshot.Location.Name)
	}
}

func TestGetHourly(t *testing.T) {
	s := newTestStack(t, nil, nil)

	w := s.do("GET", "/weather/hourly", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("hourly without weather status = %d, want 404", w.Code)
	}
	var eb errorBody
	decode(t, w.Body.Bytes(), &eb)
	if eb.Error.Code != "NO_WEATHER" {
		t.Errorf("code = %q, want NO_WEATHER", eb.Error.Code)
	}

	sid := s.do("GET", "/weather?q=lodz", "", "").Header().Get(SessionHeader)

	var body struct {
		Range int `json:"range"`
		Days  []struct {
			Label string `json:"label"`
			Hours []struct {
				Time string `json:"time"`
			} `json:"hours"`
		} `json:"days"`
	}
	w = s.do("GET", "/weather/hourly?range=24", sid, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	decode(t, w.Body.Bytes(), &body)
	if len(body.Days) != 2 || body.Days[0].Label != "Dzisiaj" || body.Days[1].Label != "Jutro" {
		t.Fatalf("days = %+v", body.Days)
	}
	if len(body.Days[0].Hours) != 13 || body.Days[0].Hours[0].Time != "11:00" {
		t.Errorf("today hours = %d starting %q", len(body.Days[0].Hours), body.Days[0].Hours[0].Time)
	}

	w = s.do("GET", "/weather/hourly?range=48", sid, "")
	decode(t, w.Body.Bytes(), &body)
	total := 0
	for _, d := range body.Days {
		total += len(d.Hours)
	}
	if body.Range != 48 || total != 48 {
		t.Errorf("range %d total hours %d, want 48/48", body.Range, total)
	}
}

func TestFavorites_ToggleFlow(t *testing.T) {
	s := newTestStack(t, nil, nil)
	sid := s.do("GET", "/favorites", "", "").Header().Get(SessionHeader)

	var tb toggleBody
	w := s.do("POST", "/favorites/toggle", sid, `{"name":"Łódź","lat":51.75,"lon":19.45}`)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d body %s", w.Code, w.Body.String())
	}
	decode(t, w.Body.Bytes(), &tb)
	if tb.Result != "added" || !tb.Active || len(tb.Favorites) != 1 {
		t.Errorf("toggle = %+v", tb)
	}

	// The weather view marks it as a favorite even with drifted coordinates.
	w = s.do("GET", "/weather?q=51.75001,19.44999", sid, "")
	var p presentationBody
	decode(t, w.Body.Bytes(), &p)
	if !p.IsFavorite {
		t.Error("isFavorite = false for a saved location")
	}

	for i := 0; i < 4; i++ {
		body := `{"name":"p","lat":` + []string{"1", "2", "3", "4"}[i] + `,"lon":0}`
		s.do("POST", "/favorites/toggle", sid, body)
	}
	w = s.do("POST", "/favorites/toggle", sid, `{"name":"sixth","lat":6,"lon":6}`)
	decode(t, w.Body.Bytes(), &tb)
	if w.Code != http.StatusOK || tb.Result != "rejected" || tb.Active || len(tb.Favorites) != 5 {
		t.Errorf("sixth toggle = %d %+v", w.Code, tb)
	}

	w = s.do("POST", "/favorites/toggle", sid, `{"name":"Łódź again","lat":51.75,"lon":19.45}`)
	decode(t, w.Body.Bytes(), &tb)
	if tb.Result != "removed" || tb.Active || len(tb.Favorites) != 4 {
		t.Errorf("remove toggle = %+v", tb)
	}

	var list struct {
		Favorites []struct {
			Name string `json:"name"`
		} `json:"favorites"`
		Capacity int `json:"capacity"`
	}
	decode(t, s.do("GET", "/favorites", sid, "").Body.Bytes(), &list)
	if len(list.Favorites) != 4 || list.Capacity != 5 || list.Favorites[0].Name != "p" {
		t.Errorf("favorites = %+v", list)
	}
}

func TestFavorites_SeparateSessions(t *testing.T) {
	s := newTestStack(t, nil, nil)
	a := s.do("POST", "/favorites/toggle", "", `{"name":"Łódź","lat":51.75,"lon":19.45}`)
	b := s.do("GET", "/favorites", "", "")
	if a.Header().Get(SessionHeader) == b.Header().Get(SessionHeader) {
		t.Fatal("anonymous requests shared a session")
	}
	if !strings.Contains(b.Body.String(), `"favorites":[]`) {
		t.Errorf("second session favorites = %s, want empty", b.Body.String())
	}
}

func TestFavorites_ToggleInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"unknown field", `{"name":"x","lat":1,"lon":1,"extra":true}`},
		{"latitude out of range", `{"name":"x","lat":-91,"lon":1}`},
		{"longitude out of range", `{"name":"x","lat":1,"lon":181}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStack(t, nil, nil)
			w := s.do("POST", "/favorites/toggle", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var eb errorBody
			decode(t, w.Body.Bytes(), &eb)
			if eb.Error.Code != "INVALID_LOCATION" {
				t.Errorf("code = %q", eb.Error.Code)
			}
		})
	}
}

func TestFavorites_WrongMethod(t *testing.T) {
	s := newTestStack(t, nil, nil)
	if w := s.do("GET", "/favorites/toggle", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /favorites/toggle status = %d, want 405", w.Code)
	}
}

func TestGetHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestStack(t, nil, &HealthConfig{
			CachePing: func() error { return nil },
			StorePing: func() error { return errors.New("disk gone") },
		})
		w := s.do("GET", "/health", "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decode(t, w.Body.Bytes(), &body)
		if body.Status != "healthy" || body.Checks["cache"] != "healthy" || body.Checks["favoritesStore"] != "unhealthy" {
			t.Errorf("body = %+v", body)
		}
		if w.Header().Get(SessionHeader) != "" {
			t.Error("/health created a session")
		}
	})

	t.Run("invalid api key", func(t *testing.T) {
		s := newTestStack(t, nil, nil)
		s.client.apiKeyErr = errors.New("invalid api key")
		w := s.do("GET", "/health", "", "")
		if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"degraded"`) {
			t.Errorf("status = %d body %s", w.Code, w.Body.String())
		}
	})

	t.Run("circuit open", func(t *testing.T) {
		cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour, Component: "health_test"})
		_ = cb.Call(context.Background(), func() error { return errUpstream })
		s := newTestStack(t, nil, &HealthConfig{Breaker: cb})
		w := s.do("GET", "/health", "", "")
		if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"circuitBreaker":"open"`) {
			t.Errorf("status = %d body %s", w.Code, w.Body.String())
		}
	})

	t.Run("shutting down", func(t *testing.T) {
		s := newTestStack(t, nil, nil)
		lifecycle.SetShuttingDown(true)
		defer lifecycle.SetShuttingDown(false)
		w := s.do("GET", "/health", "", "")
		if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"shutting-down"`) {
			t.Errorf("status = %d body %s", w.Code, w.Body.String())
		}
	})
}
