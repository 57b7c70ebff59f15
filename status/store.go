package status

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"interoprelay/types"
)

// Store keeps one RelayStatus per key. Implementations only need single-key atomic writes.
type Store interface {
	// Get returns nil, nil when there is no record for key
	Get(ctx context.Context, key types.StatusKey) (*types.RelayStatus, error)
	Set(ctx context.Context, rec *types.RelayStatus) error
	ListByStatus(ctx context.Context, status types.Status) ([]*types.RelayStatus, error)
}

// MemoryStore is the process-local store. Records of running flows are kept until
// the flow reaches a terminal state; terminal records expire after ttl and the least
// recently used ones are evicted beyond capacity.
type MemoryStore struct {
	mu       sync.RWMutex
	active   map[types.StatusKey]*types.RelayStatus
	terminal *expirable.LRU[types.StatusKey, *types.RelayStatus]
}

func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		active:   make(map[types.StatusKey]*types.RelayStatus),
		terminal: expirable.NewLRU[types.StatusKey, *types.RelayStatus](capacity, nil, ttl),
	}
}

func (s *MemoryStore) Get(_ context.Context, key types.StatusKey) (*types.RelayStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.active[key]; ok {
		return rec.Clone(), nil
	}
	rec, ok := s.terminal.Get(key)
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, rec *types.RelayStatus) error {
	if err := checkStorable(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if rec.Status.Terminal() {
		s.terminal.Add(key, rec.Clone())
		delete(s.active, key)
		return nil
	}
	s.active[key] = rec.Clone()
	s.terminal.Remove(key)
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status types.Status) ([]*types.RelayStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*types.RelayStatus, 0)
	if status.Terminal() {
		for _, rec := range s.terminal.Values() {
			if rec.Status == status {
				list = append(list, rec.Clone())
			}
		}
		return list, nil
	}
	for _, rec := range s.active {
		if rec.Status == status {
			list = append(list, rec.Clone())
		}
	}
	return list, nil
}

// Len counts running and terminal records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active) + s.terminal.Len()
}
