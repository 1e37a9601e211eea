package store

import (
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/metrics"
)

// memoryStore keeps snapshots in process memory. It backs the
// persistence-off mode and tests, with the same key and duplicate
// semantics as the sqlite store. Retention pruning bounds its size.
type memoryStore struct {
	mu        sync.RWMutex
	snapshots map[int64]*metrics.Snapshot
}

func NewMemory() metrics.Store {
	return &memoryStore{
		snapshots: make(map[int64]*metrics.Snapshot),
	}
}

func (s *memoryStore) Insert(snapshot *metrics.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(errors.ErrInvalidArgument)
	}

	key := snapshot.Timestamp.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapshots[key]; exists {
		return errFactory.WithData(ErrDuplicateKey, key)
	}

	stored := *snapshot
	s.snapshots[key] = &stored

	return nil
}

func (s *memoryStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key := range s.snapshots {
		if key < cutoffMs {
			delete(s.snapshots, key)
			deleted++
		}
	}

	return deleted, nil
}

func (s *memoryStore) List() ([]*metrics.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]*metrics.Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		copied := *snapshot
		snapshots = append(snapshots, &copied)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	return snapshots, nil
}

func (s *memoryStore) Latest() (*metrics.Snapshot, error) {
	errFactory := errors.New()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *metrics.Snapshot
	for _, snapshot := range s.snapshots {
		if latest == nil || snapshot.Timestamp.After(latest.Timestamp) {
			latest = snapshot
		}
	}

	if latest == nil {
		return nil, errFactory.New(ErrNotFound)
	}

	copied := *latest

	return &copied, nil
}

func (*memoryStore) Close() error {
	return nil
}
