package service

import (
	"context"
	"sync"
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
)

// inFlightRequest is one upstream fetch that several callers may wait for.
type inFlightRequest struct {
	done   chan struct{}
	result models.WeatherSnapshot
	err    error
}

// requestCoalescer shares one upstream fetch among concurrent cache misses
// for the same key.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key or starts fn as a new one. fn runs
// detached from any single caller so one caller giving up does not fail the
// others; each caller waits at most until its ctx or the coalescer timeout ends.
// shared reports whether the result came from another caller's fetch.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.WeatherSnapshot, error)) (snap models.WeatherSnapshot, shared bool, err error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if !exists {
		req = &inFlightRequest{done: make(chan struct{})}
		rc.inFlight[key] = req
		go rc.run(ctx, key, req, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.result, exists, req.err
	case <-waitCtx.Done():
		return models.WeatherSnapshot{}, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, req *inFlightRequest, fn func(context.Context) (models.WeatherSnapshot, error)) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()
	req.result, req.err = fn(fetchCtx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(req.done)
}
