package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowRecord is one key's live window.
type windowRecord struct {
	count   int
	resetAt time.Time
	mu      sync.Mutex
}

// MemoryStore is the default in-process store. A map-level RWMutex guards
// record creation; each record then serializes its own increments, so two
// racing hits on the same key cannot lose an update.
type MemoryStore struct {
	records map[string]*windowRecord
	mu      sync.RWMutex
	done    chan struct{}
}

// NewMemoryStore creates an in-memory fixed-window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*windowRecord),
		done:    make(chan struct{}),
	}
}

// Hit increments the key's window counter, resetting the window first if its
// deadline has passed.
func (s *MemoryStore) Hit(ctx context.Context, key string, rule Rule) (Decision, error) {
	record := s.getRecord(key, rule)

	record.mu.Lock()
	defer record.mu.Unlock()

	now := time.Now()
	if now.After(record.resetAt) {
		record.count = 0
		record.resetAt = now.Add(rule.Window)
	}

	record.count++

	remaining := rule.Max - record.count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Limited:   record.count > rule.Max,
		Remaining: remaining,
		ResetIn:   record.resetAt.Sub(now),
	}, nil
}

// getRecord gets or creates the record for a key
func (s *MemoryStore) getRecord(key string, rule Rule) *windowRecord {
	s.mu.RLock()
	record, exists := s.records[key]
	s.mu.RUnlock()

	if exists {
		return record
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if record, exists := s.records[key]; exists {
		return record
	}

	record = &windowRecord{resetAt: time.Now().Add(rule.Window)}
	s.records[key] = record
	return record
}

// Sweep removes records whose window expired more than a full window ago.
// Without it, a key used once would hold its entry until process restart.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0

	for key, record := range s.records {
		record.mu.Lock()
		expired := now.After(record.resetAt)
		record.mu.Unlock()
		if expired {
			delete(s.records, key)
			removed++
		}
	}

	return removed
}

// StartSweep starts a background routine that sweeps expired records.
func (s *MemoryStore) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Len returns the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close stops the sweep routine.
func (s *MemoryStore) Close() error {
	close(s.done)
	return nil
}
