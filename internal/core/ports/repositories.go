package ports

import (
	"context"

	"confline/internal/core/domain"
)

// DirectoryStore is the remote conference directory. Implementations return
// domain.ErrConferenceNotFound for unknown ids and wrap transport failures.
type DirectoryStore interface {
	Create(ctx context.Context, conf *domain.Conference) error
	List(ctx context.Context) ([]*domain.Conference, error)
	Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error)
	Join(ctx context.Context, id domain.ConferenceID) error
	SetFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) error
	End(ctx context.Context, id domain.ConferenceID, durationSeconds int64) error
}

// HistoryStore keeps the most recent ended conferences, newest first,
// never more than its configured limit.
type HistoryStore interface {
	Append(ctx context.Context, conf *domain.Conference) error
	List(ctx context.Context) ([]*domain.Conference, error)
	Clear(ctx context.Context) error
}
