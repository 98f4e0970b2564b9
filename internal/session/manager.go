package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/favorites"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// favoritesKeyPrefix namespaces each session's favorites in the shared store.
const favoritesKeyPrefix = "favorites:"

// Manager creates, looks up and expires sessions.
type Manager struct {
	store    favorites.Store
	defaults Preferences
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a Manager whose sessions persist favorites in store and
// start with defaults. Sessions idle longer than ttl are removed by Sweep;
// ttl <= 0 disables expiry.
func NewManager(store favorites.Store, defaults Preferences, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		defaults: defaults,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, marking it as used. An empty or malformed
// id gets a fresh session; a well-formed unknown id is adopted so that
// favorites persisted under it are picked up again.
func (m *Manager) Get(id string) *Session {
	now := m.now()
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.touch(now)
		return s
	}
	reg := favorites.NewRegistry(m.store, favoritesKeyPrefix+id, m.logger.With(zap.String("session_id", id)))
	s := newSession(id, m.defaults, reg, now)
	m.sessions[id] = s
	observability.ActiveSessions.Set(float64(len(m.sessions)))
	m.logger.Debug("session created", zap.String("session_id", id))
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle past the TTL and returns how many were removed.
// Persisted favorites are kept.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	observability.ActiveSessions.Set(float64(len(m.sessions)))
	if removed > 0 {
		m.logger.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("remaining", len(m.sessions)))
	}
	return removed
}
