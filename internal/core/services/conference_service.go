package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	apperrors "confline/pkg/errors"
	"confline/pkg/utils"
	"confline/pkg/validation"

	"go.uber.org/zap"
)

// ConferenceManager owns the local projection of conferences and is the single
// writer of live participant counts.
type ConferenceManager struct {
	directory ports.DirectoryStore
	history   ports.HistoryStore
	identity  domain.Identity
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	mu         sync.RWMutex
	projection map[domain.ConferenceID]*domain.Conference
	counts     map[domain.ConferenceID]int

	// serializes favorite writes so a rollback never clobbers a newer toggle
	favoriteMu sync.Mutex

	events *broadcaster[domain.ConferenceEvent]
}

func NewConferenceManager(
	directory ports.DirectoryStore,
	history ports.HistoryStore,
	identity domain.Identity,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *ConferenceManager {
	return &ConferenceManager{
		directory:  directory,
		history:    history,
		identity:   identity,
		metrics:    metrics,
		logger:     logger,
		projection: make(map[domain.ConferenceID]*domain.Conference),
		counts:     make(map[domain.ConferenceID]int),
		events:     newBroadcaster[domain.ConferenceEvent](),
	}
}

func (s *ConferenceManager) Create(ctx context.Context, name string, participants []domain.UserID) (*domain.Conference, error) {
	if err := validation.ValidateConferenceName(name); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	ids := make([]int64, len(participants))
	for i, p := range participants {
		ids[i] = int64(p)
	}
	if err := validation.ValidateParticipantIDs(ids); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	conf := domain.NewConference(
		domain.ConferenceID(utils.GenerateRoomID()),
		strings.TrimSpace(name),
		s.identity.UserID,
		s.identity.DisplayName,
		participants,
		utils.Now().UTC(),
	)

	if err := s.directory.Create(ctx, conf); err != nil {
		s.logger.Warnw("directory rejected conference", "conference_id", conf.ID, "error", err)
		return nil, classifyDirectoryError("create", conf.ID, err)
	}

	s.mu.Lock()
	s.projection[conf.ID] = conf.Clone()
	s.mu.Unlock()

	s.logger.Infow("conference created",
		"conference_id", conf.ID,
		"name", conf.Name,
		"participants", len(conf.Participants),
	)
	s.publish(domain.EventConferenceCreated, conf)
	return conf, nil
}

func (s *ConferenceManager) Join(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	conf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conf.IsActive() {
		return nil, apperrors.WrapError(domain.ErrConferenceEnded, apperrors.ErrCodeNotFound,
			"conference has already ended", http.StatusNotFound).WithContext("conference_id", string(id))
	}

	if err := s.directory.Join(ctx, id); err != nil {
		return nil, classifyDirectoryError("join", id, err)
	}

	conf.AddParticipant(s.identity.UserID)

	s.mu.Lock()
	s.projection[id] = conf.Clone()
	s.mu.Unlock()

	s.logger.Infow("conference joined", "conference_id", id)
	s.publish(domain.EventConferenceJoined, conf)
	return conf, nil
}

func (s *ConferenceManager) Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	if err := validation.ValidateRoomID(string(id)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	conf, err := s.directory.Get(ctx, id)
	if err != nil {
		return nil, classifyDirectoryError("get", id, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, apperrors.NewDirectoryError("get", err).WithContext("conference_id", string(id))
	}

	s.mu.Lock()
	s.projection[id] = conf.Clone()
	s.mu.Unlock()
	return conf, nil
}

// ResolveRoomLink joins the conference named by the room query parameter of a shareable link.
func (s *ConferenceManager) ResolveRoomLink(ctx context.Context, link string) (*domain.Conference, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "malformed room link", http.StatusBadRequest)
	}
	room := u.Query().Get("room")
	if room == "" {
		return nil, apperrors.WrapError(domain.ErrInvalidRoomLink, apperrors.ErrCodeInvalidInput,
			domain.ErrInvalidRoomLink.Error(), http.StatusBadRequest)
	}
	return s.Join(ctx, domain.ConferenceID(room))
}

func (s *ConferenceManager) ListActive(ctx context.Context) ([]*domain.Conference, error) {
	return s.list(ctx, func(c *domain.Conference) bool { return c.IsActive() })
}

func (s *ConferenceManager) ListOwn(ctx context.Context) ([]*domain.Conference, error) {
	return s.list(ctx, func(c *domain.Conference) bool {
		return c.IsActive() && c.IsCreator(s.identity.UserID)
	})
}

func (s *ConferenceManager) ListFavorites(ctx context.Context) ([]*domain.Conference, error) {
	return s.list(ctx, func(c *domain.Conference) bool { return c.IsFavorite })
}

// ListHistory returns at most domain.HistoryLimit ended conferences, newest first.
func (s *ConferenceManager) ListHistory(ctx context.Context) ([]*domain.Conference, error) {
	items, err := s.history.List(ctx)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to read history", http.StatusInternalServerError)
	}
	if len(items) > domain.HistoryLimit {
		items = items[:domain.HistoryLimit]
	}
	return items, nil
}

func (s *ConferenceManager) list(ctx context.Context, keep func(*domain.Conference) bool) ([]*domain.Conference, error) {
	all, err := s.directory.List(ctx)
	if err != nil {
		return nil, classifyDirectoryError("list", "", err)
	}

	fresh := make(map[domain.ConferenceID]*domain.Conference, len(all))
	out := make([]*domain.Conference, 0, len(all))
	for _, c := range all {
		if err := c.Validate(); err != nil {
			s.logger.Warnw("skipping malformed directory entry", "conference_id", c.ID, "error", err)
			continue
		}
		fresh[c.ID] = c.Clone()
		if keep(c) {
			out = append(out, c)
		}
	}

	s.mu.Lock()
	s.projection = fresh
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ToggleFavorite sets the favorite flag locally, then remotely. A failed remote
// write restores the flag it had before this call.
func (s *ConferenceManager) ToggleFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) (*domain.Conference, error) {
	s.favoriteMu.Lock()
	defer s.favoriteMu.Unlock()

	s.mu.RLock()
	_, known := s.projection[id]
	s.mu.RUnlock()
	if !known {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	conf, ok := s.projection[id]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("conference").WithContext("conference_id", string(id))
	}
	previous := conf.IsFavorite
	if previous == favorite {
		snapshot := conf.Clone()
		s.mu.Unlock()
		return snapshot, nil
	}
	conf.IsFavorite = favorite
	s.mu.Unlock()

	if err := s.directory.SetFavorite(ctx, id, favorite); err != nil {
		s.mu.Lock()
		if c, ok := s.projection[id]; ok {
			c.IsFavorite = previous
		}
		s.mu.Unlock()
		s.logger.Warnw("favorite update failed, rolled back",
			"conference_id", id,
			"favorite", favorite,
			"error", err,
		)
		return nil, classifyDirectoryError("favorite", id, err)
	}

	s.mu.RLock()
	snapshot := s.projection[id].Clone()
	s.mu.RUnlock()

	s.publish(domain.EventFavoriteChanged, snapshot)
	return snapshot, nil
}

// End is creator-only. The check runs against the local projection so a
// non-creator is rejected before anything is sent to the directory.
func (s *ConferenceManager) End(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	s.mu.RLock()
	conf, ok := s.projection[id]
	var ended *domain.Conference
	if ok {
		ended = conf.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		return nil, apperrors.NewNotFoundError("conference").WithContext("conference_id", string(id))
	}

	if err := ended.End(s.identity.UserID, utils.Now().UTC()); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotCreator):
			return nil, apperrors.WrapError(err, apperrors.ErrCodeForbidden, err.Error(), http.StatusForbidden).
				WithContext("conference_id", string(id))
		case errors.Is(err, domain.ErrConferenceEnded):
			return nil, apperrors.WrapError(err, apperrors.ErrCodeConflict, err.Error(), http.StatusConflict).
				WithContext("conference_id", string(id))
		default:
			return nil, apperrors.NewInternalError(err.Error())
		}
	}

	if err := s.directory.End(ctx, id, ended.Duration); err != nil {
		return nil, classifyDirectoryError("end", id, err)
	}

	s.mu.Lock()
	s.projection[id] = ended.Clone()
	delete(s.counts, id)
	s.mu.Unlock()

	if err := s.history.Append(ctx, ended); err != nil {
		s.logger.Warnw("failed to archive conference", "conference_id", id, "error", err)
	}

	s.logger.Infow("conference ended", "conference_id", id, "duration_s", ended.Duration)
	s.publish(domain.EventConferenceEnded, ended)
	return ended, nil
}

// UpdateParticipantCount records the live room size reported by the session surface.
func (s *ConferenceManager) UpdateParticipantCount(id domain.ConferenceID, n int) {
	if validation.ValidateParticipantCount(n) != nil {
		return
	}

	s.mu.Lock()
	if s.counts[id] == n {
		s.mu.Unlock()
		return
	}
	s.counts[id] = n
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetParticipants(n)
	}
	s.events.Publish(domain.ConferenceEvent{
		Type:         domain.EventParticipantsChanged,
		ConferenceID: id,
		Participants: n,
		At:           utils.Now(),
	})
	if s.metrics != nil {
		s.metrics.IncConferenceEvent(domain.EventParticipantsChanged)
	}
}

// ParticipantCount is the live count when known, otherwise the invitee count, never below 1.
func (s *ConferenceManager) ParticipantCount(id domain.ConferenceID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.counts[id]; ok {
		return n
	}
	if c, ok := s.projection[id]; ok && len(c.Participants) > 0 {
		return len(c.Participants)
	}
	return 1
}

func (s *ConferenceManager) IsCreator(id domain.ConferenceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.projection[id]
	return ok && c.IsCreator(s.identity.UserID)
}

func (s *ConferenceManager) Subscribe(buffer int) (<-chan domain.ConferenceEvent, func()) {
	return s.events.Subscribe(buffer)
}

// Close ends every subscription.
func (s *ConferenceManager) Close() {
	s.events.Close()
}

func (s *ConferenceManager) publish(t domain.EventType, conf *domain.Conference) {
	s.events.Publish(domain.ConferenceEvent{
		Type:         t,
		ConferenceID: conf.ID,
		Conference:   conf.Clone(),
		At:           utils.Now(),
	})
	if s.metrics != nil {
		s.metrics.IncConferenceEvent(t)
	}
}

// classifyDirectoryError converts store failures into the error taxonomy.
func classifyDirectoryError(action string, id domain.ConferenceID, err error) error {
	if errors.Is(err, domain.ErrConferenceNotFound) {
		appErr := apperrors.WrapError(err, apperrors.ErrCodeNotFound, "conference not found", http.StatusNotFound)
		if id != "" {
			appErr.WithContext("conference_id", string(id))
		}
		return appErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewDirectoryError(action, fmt.Errorf("request aborted: %w", err))
	}
	appErr := apperrors.NewDirectoryError(action, err)
	if id != "" {
		appErr.WithContext("conference_id", string(id))
	}
	return appErr
}
