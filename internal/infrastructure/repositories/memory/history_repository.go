package memory

import (
	"context"
	"sync"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
)

// MemoryHistoryRepository keeps the most recent ended conferences, newest first.
type MemoryHistoryRepository struct {
	limit int
	items []*domain.Conference
	mu    sync.RWMutex
}

func NewMemoryHistoryRepository(limit int) ports.HistoryStore {
	if limit <= 0 {
		limit = domain.HistoryLimit
	}
	return &MemoryHistoryRepository{limit: limit}
}

// Append puts conf at the front and evicts the oldest entries beyond the limit.
// Re-archiving an id replaces the earlier entry.
func (r *MemoryHistoryRepository) Append(ctx context.Context, conf *domain.Conference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]*domain.Conference, 0, r.limit)
	items = append(items, conf.Clone())
	for _, c := range r.items {
		if len(items) == r.limit {
			break
		}
		if c.ID != conf.ID {
			items = append(items, c)
		}
	}
	r.items = items
	return nil
}

func (r *MemoryHistoryRepository) List(ctx context.Context) ([]*domain.Conference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Conference, len(r.items))
	for i, c := range r.items {
		out[i] = c.Clone()
	}
	return out, nil
}

func (r *MemoryHistoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	return nil
}
