// Package session holds per-user mutable state: display preferences, the last
// query, the accepted view-model and the user's favorites.
package session

import (
	"sync"
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/favorites"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
)

// Preferences are the viewer's display settings.
type Preferences struct {
	Language string
	Location *time.Location
	Clock24  bool
}

// Ticket identifies one fetch started with Begin.
type Ticket struct {
	generation uint64
}

// Session is one user's context. All methods are safe for concurrent use.
type Session struct {
	id        string
	favorites *favorites.Registry

	mu         sync.Mutex
	prefs      Preferences
	generation uint64
	lastQuery  models.Query
	current    *models.ViewModel
	lastSeen   time.Time
}

func newSession(id string, prefs Preferences, reg *favorites.Registry, now time.Time) *Session {
	if prefs.Location == nil {
		prefs.Location = time.UTC
	}
	return &Session{id: id, favorites: reg, prefs: prefs, lastSeen: now}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Favorites returns the session's favorites registry.
func (s *Session) Favorites() *favorites.Registry { return s.favorites }

// Preferences returns a copy of the display settings.
func (s *Session) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// SetLanguage sets the language tag; empty leaves it unchanged.
func (s *Session) SetLanguage(tag string) {
	if tag == "" {
		return
	}
	s.mu.Lock()
	s.prefs.Language = tag
	s.mu.Unlock()
}

// SetLocation sets the display time zone; nil leaves it unchanged.
func (s *Session) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.prefs.Location = loc
	s.mu.Unlock()
}

// SetClock24 switches between 24-hour and 12-hour clock display.
func (s *Session) SetClock24(v bool) {
	s.mu.Lock()
	s.prefs.Clock24 = v
	s.mu.Unlock()
}

// Begin records q as the latest query and returns a ticket that supersedes
// every ticket issued before it.
func (s *Session) Begin(q models.Query) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.lastQuery = q
	return Ticket{generation: s.generation}
}

// Accept installs vm as the current view-model if t is still the latest
// ticket. It returns false, leaving the current view-model untouched, when a
// newer Begin has happened.
func (s *Session) Accept(t Ticket, vm models.ViewModel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.generation != s.generation {
		return false
	}
	s.current = &vm
	return true
}

// IsCurrent reports whether t is still the latest ticket.
func (s *Session) IsCurrent(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.generation == s.generation
}

// Current returns the accepted view-model, if any.
func (s *Session) Current() (models.ViewModel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.ViewModel{}, false
	}
	return *s.current, true
}

// LastQuery returns the query passed to the most recent Begin, or nil.
func (s *Session) LastQuery() models.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
