package http

import (
	"context"

	"confline/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockConferenceService struct {
	mock.Mock
}

func (m *MockConferenceService) Create(ctx context.Context, name string, participants []domain.UserID) (*domain.Conference, error) {
	args := m.Called(ctx, name, participants)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conference), args.Error(1)
}

func (m *MockConferenceService) Join(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	return m.conference(m.Called(ctx, id))
}

func (m *MockConferenceService) Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	return m.conference(m.Called(ctx, id))
}

func (m *MockConferenceService) ResolveRoomLink(ctx context.Context, link string) (*domain.Conference, error) {
	return m.conference(m.Called(ctx, link))
}

func (m *MockConferenceService) ListActive(ctx context.Context) ([]*domain.Conference, error) {
	return m.list(m.Called(ctx))
}

func (m *MockConferenceService) ListOwn(ctx context.Context) ([]*domain.Conference, error) {
	return m.list(m.Called(ctx))
}

func (m *MockConferenceService) ListFavorites(ctx context.Context) ([]*domain.Conference, error) {
	return m.list(m.Called(ctx))
}

func (m *MockConferenceService) ListHistory(ctx context.Context) ([]*domain.Conference, error) {
	return m.list(m.Called(ctx))
}

func (m *MockConferenceService) ToggleFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) (*domain.Conference, error) {
	return m.conference(m.Called(ctx, id, favorite))
}

func (m *MockConferenceService) End(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	return m.conference(m.Called(ctx, id))
}

func (m *MockConferenceService) UpdateParticipantCount(id domain.ConferenceID, n int) {
	m.Called(id, n)
}

func (m *MockConferenceService) ParticipantCount(id domain.ConferenceID) int {
	return m.Called(id).Int(0)
}

func (m *MockConferenceService) IsCreator(id domain.ConferenceID) bool {
	return m.Called(id).Bool(0)
}

func (m *MockConferenceService) Subscribe(buffer int) (<-chan domain.ConferenceEvent, func()) {
	ch := make(chan domain.ConferenceEvent)
	return ch, func() {}
}

func (m *MockConferenceService) conference(args mock.Arguments) (*domain.Conference, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conference), args.Error(1)
}

func (m *MockConferenceService) list(args mock.Arguments) ([]*domain.Conference, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conference), args.Error(1)
}

type MockSessionService struct {
	mock.Mock
	levels chan float64
}

func (m *MockSessionService) Devices(ctx context.Context) (domain.DeviceList, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.DeviceList), args.Error(1)
}

func (m *MockSessionService) OpenCalibration(ctx context.Context, sel domain.DeviceSelection) error {
	return m.Called(ctx, sel).Error(0)
}

func (m *MockSessionService) CloseCalibration() {
	m.Called()
}

func (m *MockSessionService) AudioLevels() (<-chan float64, func()) {
	return m.levels, func() {}
}

func (m *MockSessionService) StartCall(ctx context.Context, roomID domain.ConferenceID, displayName string) (*domain.Conference, error) {
	args := m.Called(ctx, roomID, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conference), args.Error(1)
}

func (m *MockSessionService) EndCall(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSessionService) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{State: domain.SessionIdle, Network: domain.NetworkHigh}
}

func (m *MockSessionService) Close() {}
