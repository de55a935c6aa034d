package diagnosis

import (
	"time"

	"diagnosis-refiner/internal/refinement"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type liveSession struct {
	session   *refinement.Session
	createdAt time.Time
}

// SessionStore keeps in-progress sessions in memory. Entries expire after
// ttl without access; the repository is the source of truth afterwards.
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (s *SessionStore) Get(id uuid.UUID) (*liveSession, bool) {
	if x, found := s.cache.Get(id.String()); found {
		live := x.(*liveSession)
		// Sliding expiration: touching a session keeps it alive.
		s.cache.Set(id.String(), live, cache.DefaultExpiration)
		return live, true
	}
	return nil, false
}

// Add stores live unless another entry already exists, in which case the
// existing one is returned.
func (s *SessionStore) Add(id uuid.UUID, live *liveSession) *liveSession {
	if err := s.cache.Add(id.String(), live, cache.DefaultExpiration); err != nil {
		if existing, ok := s.Get(id); ok {
			return existing
		}
		s.cache.Set(id.String(), live, cache.DefaultExpiration)
	}
	return live
}

func (s *SessionStore) Delete(id uuid.UUID) {
	s.cache.Delete(id.String())
}
