// Package favorites keeps a bounded, insertion-ordered list of saved locations
// in a persisted key-value store.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// Capacity is the maximum number of favorites.
const Capacity = 5

// Store is the persisted key-value store the registry reads and replaces.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Result is the outcome of a Toggle.
type Result int

const (
	Added Result = iota + 1
	Removed
	// Rejected means the location was absent and the list is full. It is a
	// soft outcome, not an error.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MarshalText renders the result as its name in JSON.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Registry is the favorites list persisted under one key. Toggle runs
// load, mutate and save under the registry mutex, so concurrent toggles on the
// same Registry serialize. Separate processes sharing a key are last-write-wins.
type Registry struct {
	mu     sync.Mutex
	store  Store
	key    string
	logger *zap.Logger
}

// NewRegistry returns a Registry persisting under key. logger may be nil.
func NewRegistry(store Store, key string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, key: key, logger: logger}
}

// Load returns the persisted favorites. Absent, unreadable or malformed data
// yields an empty list; the caller never sees an error.
func (r *Registry) Load(ctx context.Context) []models.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Registry) load(ctx context.Context) []models.Location {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		r.logger.Warn("favorites load failed; treating as empty", zap.String("key", r.key), zap.Error(err))
		return []models.Location{}
	}
	if !ok {
		return []models.Location{}
	}
	var favs []models.Location
	if err := json.Unmarshal(raw, &favs); err != nil {
		r.logger.Warn("favorites malformed; treating as empty", zap.String("key", r.key), zap.Error(err))
		return []models.Location{}
	}
	if favs == nil {
		return []models.Location{}
	}
	if len(favs) > Capacity {
		r.logger.Warn("favorites over capacity; truncating", zap.String("key", r.key), zap.Int("count", len(favs)))
		favs = favs[:Capacity]
	}
	return favs
}

// Save replaces the persisted list with favs.
func (r *Registry) Save(ctx context.Context, favs []models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, favs)
}

func (r *Registry) save(ctx context.Context, favs []models.Location) error {
	if favs == nil {
		favs = []models.Location{}
	}
	raw, err := json.Marshal(favs)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := r.store.Put(ctx, r.key, raw); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	return nil
}

// Toggle removes loc if an entry with identical stored coordinates exists,
// otherwise appends it when below Capacity. A full list leaves everything
// unchanged and returns Rejected. The returned slice is the list after the call.
func (r *Registry) Toggle(ctx context.Context, loc models.Location) (Result, []models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	favs := r.load(ctx)
	next := make([]models.Location, 0, len(favs)+1)
	removed := false
	for _, f := range favs {
		if sameIdentity(f, loc) {
			removed = true
			continue
		}
		next = append(next, f)
	}

	result := Removed
	if !removed {
		if len(favs) >= Capacity {
			observability.RecordFavoriteToggle(Rejected.String())
			r.logger.Info("favorites full; toggle rejected", zap.String("key", r.key), zap.String("location", loc.Key()))
			return Rejected, favs, nil
		}
		next = append(next, loc)
		result = Added
	}

	if err := r.save(ctx, next); err != nil {
		return 0, nil, err
	}
	observability.RecordFavoriteToggle(result.String())
	r.logger.Debug("favorites toggled", zap.String("key", r.key), zap.Stringer("result", result), zap.Int("count", len(next)))
	return result, next, nil
}

// IsActive reports whether loc matches any favorite after rounding both to 4
// decimal places, unlike the exact identity Toggle uses.
func IsActive(loc models.Location, favs []models.Location) bool {
	for _, f := range favs {
		if f.SameRounded(loc) {
			return true
		}
	}
	return false
}

// sameIdentity compares coordinates by their shortest exact decimal text.
func sameIdentity(a, b models.Location) bool {
	return coordText(a.Lat) == coordText(b.Lat) && coordText(a.Lon) == coordText(b.Lon)
}

func coordText(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
