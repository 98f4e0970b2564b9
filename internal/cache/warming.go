package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// Prefetcher fills the cache for one location and language. The service
// layer implements it, which keeps this package free of a service import.
type Prefetcher interface {
	Prefetch(ctx context.Context, loc models.Location, lang string) error
}

// Warmer prefetches snapshots for a fixed set of locations on a schedule.
type Warmer struct {
	fetcher   Prefetcher
	locations []models.Location
	languages []string
	timeout   time.Duration
	logger    *zap.Logger
	scheduler *gocron.Scheduler
}

// NewWarmer creates a Warmer for every location in every language. timeout
// bounds each prefetch; zero means 30s.
func NewWarmer(fetcher Prefetcher, locations []models.Location, languages []string, timeout time.Duration, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{
		fetcher:   fetcher,
		locations: locations,
		languages: languages,
		timeout:   timeout,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Warm prefetches every (location, language) pair concurrently and returns
// the joined errors of the failures.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("locations", len(w.locations)), zap.Strings("languages", w.languages))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loc := range w.locations {
		for _, lang := range w.languages {
			loc, lang := loc, lang
			wg.Add(1)
			go func() {
				defer wg.Done()
				fetchCtx, cancel := context.WithTimeout(ctx, w.timeout)
				defer cancel()
				if err := w.fetcher.Prefetch(fetchCtx, loc, lang); err != nil {
					observability.CacheWarmingTotal.WithLabelValues("error").Inc()
					mu.Lock()
					errs = append(errs, fmt.Errorf("warm %s (%s): %w", loc.Name, lang, err))
					mu.Unlock()
					return
				}
				observability.CacheWarmingTotal.WithLabelValues("success").Inc()
			}()
		}
	}
	wg.Wait()

	w.logger.Info("cache warming complete",
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", time.Since(start).Seconds()))
	return errors.Join(errs...)
}

// Start runs Warm immediately and then every interval until Stop. Nothing is
// scheduled when there are no locations.
func (w *Warmer) Start(interval time.Duration) error {
	if len(w.locations) == 0 || len(w.languages) == 0 {
		w.logger.Info("cache warming disabled: no locations configured")
		return nil
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	_, err := w.scheduler.Every(interval).Do(func() {
		if err := w.Warm(context.Background()); err != nil {
			w.logger.Warn("cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	w.scheduler.StartAsync()
	return nil
}

// Stop cancels future runs.
func (w *Warmer) Stop() {
	w.scheduler.Stop()
}
