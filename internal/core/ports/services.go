package ports

import (
	"context"

	"confline/internal/core/domain"
)

type ConferenceService interface {
	Create(ctx context.Context, name string, participants []domain.UserID) (*domain.Conference, error)
	Join(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error)
	Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error)
	ResolveRoomLink(ctx context.Context, link string) (*domain.Conference, error)
	ListActive(ctx context.Context) ([]*domain.Conference, error)
	ListOwn(ctx context.Context) ([]*domain.Conference, error)
	ListFavorites(ctx context.Context) ([]*domain.Conference, error)
	ListHistory(ctx context.Context) ([]*domain.Conference, error)
	ToggleFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) (*domain.Conference, error)
	End(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error)
	UpdateParticipantCount(id domain.ConferenceID, n int)
	ParticipantCount(id domain.ConferenceID) int
	IsCreator(id domain.ConferenceID) bool
	Subscribe(buffer int) (<-chan domain.ConferenceEvent, func())
}

type SessionService interface {
	Devices(ctx context.Context) (domain.DeviceList, error)
	OpenCalibration(ctx context.Context, sel domain.DeviceSelection) error
	CloseCalibration()
	AudioLevels() (<-chan float64, func())
	StartCall(ctx context.Context, roomID domain.ConferenceID, displayName string) (*domain.Conference, error)
	EndCall(ctx context.Context) error
	Snapshot() domain.SessionSnapshot
	Close()
}

// MetricsRecorder receives the controller's operational signals.
type MetricsRecorder interface {
	SetNetworkQuality(q domain.NetworkQuality)
	SetConstraintTier(t domain.QualityTier)
	IncConstraintApply(result string)
	SetAudioLevel(level float64)
	SetParticipants(n int)
	IncConferenceEvent(t domain.EventType)
	ObserveDirectoryRequest(action, status string, seconds float64)
	SetCircuitState(dependency string, state int)
}
