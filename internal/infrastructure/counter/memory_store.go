package counter

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore implements Store with an in-process map guarded by a mutex.
// Counts are only consistent within one instance; it is meant for
// single-instance deployments and as the fallback when Redis is down.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	janitorInterval time.Duration
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// MemoryOption configures MemoryStore
type MemoryOption func(*MemoryStore)

// WithJanitorInterval sets how often expired entries are swept (default 5m)
func WithJanitorInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.janitorInterval = interval }
}

// NewMemoryStore creates an in-process counter store. Call Start to run the
// expiry janitor and Stop to release it.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]*memoryEntry),
		janitorInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background janitor that evicts expired entries
func (s *MemoryStore) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired(time.Now())
			}
		}
	}()
}

// Stop cancels the janitor and waits for it to exit
func (s *MemoryStore) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Increment atomically increments the counter, setting the TTL on first use
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = entry
	}
	entry.value++
	return entry.value, time.Until(entry.expiresAt), nil
}

// Get returns the current counter value
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, ErrKeyNotFound
	}
	return entry.value, nil
}

// Set stores a value with a TTL
func (s *MemoryStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes a key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
