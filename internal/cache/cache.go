package cache

import (
	"path"
	"sync"
	"time"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/metrics"
	"pulsefeed/internal/model"
)

const (
	// sampleWindow is the number of response-time samples retained for
	// the average latency report.
	sampleWindow = 1000
	// sampleEvictBatch is how many old samples are dropped at once when
	// the window overflows.
	sampleEvictBatch = 100
)

type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// Store is one cache namespace: a TTL key-value store with hit/miss
// accounting. Keys are namespace-prefixed internally, so a key collision
// across namespaces is impossible by construction. Safe for concurrent
// use; concurrent sets to the same key are last-writer-wins.
type Store struct {
	namespace  string
	defaultTTL time.Duration
	logger     *logger.Logger

	mu      sync.RWMutex
	entries map[string]entry
	hits    uint64
	misses  uint64
	samples []float64 // response times in ms, rolling window
}

func newStore(namespace string, defaultTTL time.Duration, log *logger.Logger) *Store {
	return &Store{
		namespace:  namespace,
		defaultTTL: defaultTTL,
		logger:     log.With("cache", namespace),
		entries:    make(map[string]entry),
	}
}

func (s *Store) key(k string) string {
	return s.namespace + ":" + k
}

// Get returns the live value for key, or false on miss or expiry.
func (s *Store) Get(key string) (any, bool) {
	start := time.Now()
	defer s.observe(start)

	s.mu.RLock()
	e, ok := s.entries[s.key(key)]
	s.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		s.miss()
		if ok {
			// Lazy expiry: drop the stale entry on the next write path.
			s.Del(key)
		}
		return nil, false
	}
	s.hit()
	return e.value, true
}

// Set stores value under key. ttl <= 0 uses the namespace default.
// Entries are always replaced wholesale, never partially updated.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	s.entries[s.key(key)] = entry{value: value, insertedAt: time.Now(), ttl: ttl}
	size := len(s.entries)
	s.mu.Unlock()
	metrics.CacheEntries.WithLabelValues(s.namespace).Set(float64(size))
}

// MGet returns the live values for the given keys.
func (s *Store) MGet(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// MSet stores all values with a shared ttl.
func (s *Store) MSet(values map[string]any, ttl time.Duration) {
	for k, v := range values {
		s.Set(k, v, ttl)
	}
}

// Del removes keys and returns how many existed.
func (s *Store) Del(keys ...string) int {
	s.mu.Lock()
	count := 0
	for _, k := range keys {
		full := s.key(k)
		if _, ok := s.entries[full]; ok {
			delete(s.entries, full)
			count++
		}
	}
	size := len(s.entries)
	s.mu.Unlock()
	metrics.CacheEntries.WithLabelValues(s.namespace).Set(float64(size))
	return count
}

// Has reports whether key holds a live entry. Does not count as a hit
// or miss.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	e, ok := s.entries[s.key(key)]
	s.mu.RUnlock()
	return ok && !e.expired(time.Now())
}

// GetOrSet returns the cached value for key or computes, stores, and
// returns it. compute runs once per call on a miss; concurrent misses
// each compute (request coalescing is the resilience layer's concern).
// A compute failure propagates and nothing is cached.
func (s *Store) GetOrSet(key string, compute func() (any, error), ttl time.Duration) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	start := time.Now()
	v, err := compute()
	s.observe(start)
	if err != nil {
		return nil, &model.CacheComputeError{Key: s.key(key), Err: err}
	}
	s.Set(key, v, ttl)
	return v, nil
}

// InvalidatePattern deletes all keys whose namespace-prefixed name
// matches the glob pattern and returns the count deleted.
func (s *Store) InvalidatePattern(pattern string) int {
	s.mu.Lock()
	count := 0
	for full := range s.entries {
		if matched, err := path.Match(pattern, full); err == nil && matched {
			delete(s.entries, full)
			count++
		}
	}
	size := len(s.entries)
	s.mu.Unlock()

	if count > 0 {
		s.logger.Info("Invalidated", count, "entries matching", pattern)
	}
	metrics.CacheEntries.WithLabelValues(s.namespace).Set(float64(size))
	return count
}

// Len returns the number of entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) hit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
	metrics.CacheHits.WithLabelValues(s.namespace).Inc()
}

func (s *Store) miss() {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
	metrics.CacheMisses.WithLabelValues(s.namespace).Inc()
}

// observe records one response-time sample. When the window overflows,
// old samples are evicted in batches rather than one at a time.
func (s *Store) observe(start time.Time) {
	ms := float64(time.Since(start).Microseconds()) / 1000.0

	s.mu.Lock()
	s.samples = append(s.samples, ms)
	if len(s.samples) > sampleWindow {
		s.samples = append(s.samples[:0], s.samples[sampleEvictBatch:]...)
	}
	s.mu.Unlock()
}

// GetAs retrieves a typed value from the store.
func GetAs[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
