package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in a map. It is safe for concurrent use.
//
// With a TTL, a background goroutine drops snapshots whose GeneratedAt is
// older than the TTL; call Stop to end it.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	ttl       time.Duration

	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store without expiry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// NewMemoryStoreWithTTL creates a store that expires snapshots after ttl,
// checking every cleanupInterval (default one minute).
//
// Panics if ttl <= 0.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{
		snapshots: make(map[string]Snapshot),
		ttl:       ttl,
		ticker:    time.NewTicker(cleanupInterval),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Stop ends the cleanup goroutine and waits for it. Safe to call more than
// once and on stores without TTL.
func (s *MemoryStore) Stop() {
	if s.ticker == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.ticker.Stop()
	})
}

func (s *MemoryStore) janitor() {
	defer close(s.done)
	for {
		select {
		case <-s.ticker.C:
			s.expire(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for series, snap := range s.snapshots {
		if now.Sub(snap.GeneratedAt) > s.ttl {
			delete(s.snapshots, series)
		}
	}
}

// Put replaces the snapshot for snapshot.Series.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateSeries(snapshot.Series); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Series] = snapshot
	return nil
}

// GetLatest returns the snapshot for series and whether one exists.
func (s *MemoryStore) GetLatest(ctx context.Context, series string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[series]
	return snap, ok, nil
}

// Series returns the names with a stored snapshot, sorted.
func (s *MemoryStore) Series() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes the snapshot for series and reports whether one existed.
func (s *MemoryStore) Delete(series string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.snapshots[series]
	delete(s.snapshots, series)
	return ok
}
