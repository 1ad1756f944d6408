package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
)

// MemoryConferenceRepository is an in-process directory store used when no
// remote directory is configured. Joins are recorded for the local user.
type MemoryConferenceRepository struct {
	caller      domain.UserID
	conferences map[domain.ConferenceID]*domain.Conference
	mu          sync.RWMutex
}

func NewMemoryConferenceRepository(caller domain.UserID) ports.DirectoryStore {
	return &MemoryConferenceRepository{
		caller:      caller,
		conferences: make(map[domain.ConferenceID]*domain.Conference),
	}
}

func (r *MemoryConferenceRepository) Create(ctx context.Context, conf *domain.Conference) error {
	if err := conf.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conferences[conf.ID]; exists {
		return fmt.Errorf("conference already exists: %s", conf.ID)
	}

	r.conferences[conf.ID] = conf.Clone()
	return nil
}

func (r *MemoryConferenceRepository) List(ctx context.Context) ([]*domain.Conference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Conference, 0, len(r.conferences))
	for _, c := range r.conferences {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryConferenceRepository) Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conf, exists := r.conferences[id]
	if !exists {
		return nil, domain.ErrConferenceNotFound
	}
	return conf.Clone(), nil
}

func (r *MemoryConferenceRepository) Join(ctx context.Context, id domain.ConferenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conf, exists := r.conferences[id]
	if !exists {
		return domain.ErrConferenceNotFound
	}
	if !conf.IsActive() {
		return domain.ErrConferenceEnded
	}
	conf.AddParticipant(r.caller)
	return nil
}

func (r *MemoryConferenceRepository) SetFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conf, exists := r.conferences[id]
	if !exists {
		return domain.ErrConferenceNotFound
	}
	conf.IsFavorite = favorite
	return nil
}

// End keeps the duration computed by the caller so both sides agree on it.
func (r *MemoryConferenceRepository) End(ctx context.Context, id domain.ConferenceID, durationSeconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conf, exists := r.conferences[id]
	if !exists {
		return domain.ErrConferenceNotFound
	}
	ended := conf.Clone()
	if err := ended.End(r.caller, conf.CreatedAt.Add(secondsToDuration(durationSeconds))); err != nil {
		return err
	}
	ended.Duration = durationSeconds
	r.conferences[id] = ended
	return nil
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
