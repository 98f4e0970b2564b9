package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/circuitbreaker"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// WeatherClient fetches raw snapshots and resolves place names.
type WeatherClient interface {
	Snapshot(ctx context.Context, loc models.Location, lang string) (models.WeatherSnapshot, error)
	Geocode(ctx context.Context, name, lang string) (models.Location, error)
	ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (models.Location, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// Endpoint labels used in metrics and logs.
const (
	EndpointOneCall        = "onecall"
	EndpointAirPollution   = "air_pollution"
	EndpointGeocode        = "geocode"
	EndpointReverseGeocode = "reverse_geocode"
)

var endpointPaths = map[string]string{
	EndpointOneCall:        "/data/3.0/onecall",
	EndpointAirPollution:   "/data/2.5/air_pollution",
	EndpointGeocode:        "/geo/1.0/direct",
	EndpointReverseGeocode: "/geo/1.0/reverse",
}

// OneCallClient talks to the OpenWeather One Call 3.0, air pollution and
// geocoding APIs.
type OneCallClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewOneCallClient(apiKey, apiURL string, timeout time.Duration) (*OneCallClient, error) {
	return NewOneCallClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOneCallClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OneCallClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	return &OneCallClient{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WithBreaker routes every upstream attempt through cb. Only upstream and
// transport failures count against it.
func (c *OneCallClient) WithBreaker(cb *circuitbreaker.CircuitBreaker) *OneCallClient {
	c.breaker = cb
	return c
}

// IsBreakerFailure reports whether err indicates an unhealthy upstream.
func IsBreakerFailure(err error) bool {
	return !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, ErrInvalidAPIKey) && !errors.Is(err, context.Canceled)
}

// Snapshot fetches the One Call payload for loc, then the air quality index.
// Air quality is best effort: on failure the snapshot carries index 0.
func (c *OneCallClient) Snapshot(ctx context.Context, loc models.Location, lang string) (models.WeatherSnapshot, error) {
	params := coordParams(loc.Lat, loc.Lon)
	params.Set("units", "metric")
	if lang != "" {
		params.Set("lang", lang)
	}

	var snap models.WeatherSnapshot
	if err := c.get(ctx, EndpointOneCall, params, &snap); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch onecall %s: %w", loc.Key(), err)
	}
	snap.Location = loc

	aqi, err := c.airQuality(ctx, loc)
	if err == nil {
		snap.AirQuality = aqi
	} else {
		observability.LoggerFrom(ctx, nil).Debug("air quality unavailable",
			zap.String("location", loc.Key()), zap.Error(err))
	}
	return snap, nil
}

type airPollutionResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
	} `json:"list"`
}

func (c *OneCallClient) airQuality(ctx context.Context, loc models.Location) (int, error) {
	var resp airPollutionResponse
	if err := c.get(ctx, EndpointAirPollution, coordParams(loc.Lat, loc.Lon), &resp); err != nil {
		return 0, err
	}
	if len(resp.List) == 0 {
		return 0, fmt.Errorf("%w: empty air pollution list", ErrUpstreamFailure)
	}
	return resp.List[0].Main.AQI, nil
}

type geoResult struct {
	Name       string            `json:"name"`
	LocalNames map[string]string `json:"local_names"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Country    string            `json:"country"`
}

func (g geoResult) location(lang string) models.Location {
	name := g.Name
	if local, ok := g.LocalNames[lang]; ok && local != "" {
		name = local
	}
	return models.Location{Name: name, Lat: g.Lat, Lon: g.Lon}
}

// Geocode resolves a place name to its best match.
func (c *OneCallClient) Geocode(ctx context.Context, name, lang string) (models.Location, error) {
	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", "1")

	var results []geoResult
	if err := c.get(ctx, EndpointGeocode, params, &results); err != nil {
		return models.Location{}, fmt.Errorf("geocode %q: %w", name, err)
	}
	if len(results) == 0 {
		return models.Location{}, fmt.Errorf("geocode %q: %w", name, ErrLocationNotFound)
	}
	return results[0].location(lang), nil
}

// ReverseGeocode names the place at lat, lon. An empty result is not an
// error: the location is named by its coordinates.
func (c *OneCallClient) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (models.Location, error) {
	params := coordParams(lat, lon)
	params.Set("limit", "1")

	var results []geoResult
	if err := c.get(ctx, EndpointReverseGeocode, params, &results); err != nil {
		return models.Location{}, fmt.Errorf("reverse geocode %.4f,%.4f: %w", lat, lon, err)
	}
	loc := models.Location{Lat: lat, Lon: lon}
	if len(results) > 0 {
		loc.Name = results[0].location(lang).Name
	}
	if loc.Name == "" {
		loc.Name = loc.Key()
	}
	return loc, nil
}

func (c *OneCallClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var body []byte
		call := func() error {
			var err error
			body, err = c.callAPI(ctx, endpoint, params)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, call)
		} else {
			err = call()
		}
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("parse %s response: %w", endpoint, err)
			}
			return nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OneCallClient) callAPI(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (c *OneCallClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

func (c *OneCallClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OneCallClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	path, ok := endpointPaths[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpoint)
	}
	baseURL, err := url.Parse(c.apiURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	query := url.Values{}
	for k, v := range params {
		if len(v) > 0 && v[0] != "" {
			query[k] = v
		}
	}
	query.Set("appid", c.apiKey)
	baseURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OneCallClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: HTTP %d", resp.StatusCode)
	}
	return nil
}

// ValidateAPIKey makes one cheap geocoding call to confirm the key is active.
func (c *OneCallClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	params.Set("limit", "1")
	req, err := c.buildRequest(ctx, EndpointGeocode, params)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

func coordParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	return params
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
