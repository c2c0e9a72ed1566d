package session

import (
	"context"
	"sync"
	"time"

	"sipac-backend/internal/components/chrono"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryKey = "cookies"

// MemoryStore is a Store for a single process, the cookie set lives in a one-slot
// expirable LRU so it is dropped by itself once its ttl passes.
type MemoryStore struct {
	cache *expirable.LRU[string, CookieSet]
	time  chrono.TimeAPI

	mutex           sync.Mutex
	failures        int
	failuresResetAt time.Time
}

// NewMemoryStore creates a MemoryStore whose entries are evicted after `ttl` at the latest,
// expiry of a set is otherwise judged against `time`.
func NewMemoryStore(ttl time.Duration, time chrono.TimeAPI) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, CookieSet](1, nil, ttl),
		time:  time,
	}
}

func (s *MemoryStore) Get(ctx context.Context) (CookieSet, error) {
	set, hit := s.cache.Get(memoryKey)
	if !hit {
		return CookieSet{}, ErrNotFound
	}
	if set.Expired(s.time.Now()) {
		s.cache.Remove(memoryKey)
		return CookieSet{}, ErrNotFound
	}
	return set, nil
}

func (s *MemoryStore) Set(ctx context.Context, set CookieSet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cache.Add(memoryKey, set)
	s.failures = 0
	return nil
}

func (s *MemoryStore) ClearCookies(ctx context.Context) error {
	s.cache.Remove(memoryKey)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cache.Remove(memoryKey)
	s.failures = 0
	return nil
}

// expireFailures must be called with the mutex held.
func (s *MemoryStore) expireFailures() {
	if s.failures > 0 && !s.time.Now().Before(s.failuresResetAt) {
		s.failures = 0
	}
}

func (s *MemoryStore) Failures(ctx context.Context) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.expireFailures()
	return s.failures, nil
}

func (s *MemoryStore) AddFailure(ctx context.Context, cooldown time.Duration) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.expireFailures()
	s.failures++
	s.failuresResetAt = s.time.Now().Add(cooldown)
	return s.failures, nil
}
