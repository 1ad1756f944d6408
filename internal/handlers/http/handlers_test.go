package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/services"
	"confline/internal/infrastructure/monitoring"
	"confline/pkg/config"
	apperrors "confline/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var me = domain.Identity{UserID: 10, DisplayName: "Ada"}

type testAPI struct {
	router      *gin.Engine
	conferences *MockConferenceService
	session     *MockSessionService
	tokens      *services.TokenService
	health      *monitoring.HealthChecker
}

func newTestAPI(t *testing.T, mutate func(*config.Config)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Control.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	api := &testAPI{
		conferences: &MockConferenceService{},
		session:     &MockSessionService{levels: make(chan float64, 4)},
		tokens:      services.NewTokenService("secret", time.Hour),
		health:      monitoring.NewHealthChecker(),
	}
	api.router = NewRouter(RouterDeps{
		Config:      cfg,
		Identity:    me,
		Tokens:      api.tokens,
		Conferences: api.conferences,
		Session:     api.session,
		Health:      api.health,
		Logger:      zap.NewNop().Sugar(),
	})
	return api
}

func (a *testAPI) do(method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sampleConference() *domain.Conference {
	return domain.NewConference("abc123", "Weekly sync", me.UserID, me.DisplayName, []domain.UserID{11}, time.Unix(1700000000, 0).UTC())
}

func TestCreateConference(t *testing.T) {
	api := newTestAPI(t, nil)
	api.conferences.On("Create", mock.Anything, "Weekly sync", []domain.UserID{11}).Return(sampleConference(), nil)

	w := api.do(http.MethodPost, "/api/v1/conferences", gin.H{"name": "Weekly sync", "participants": []int{11}}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	conf := decode(t, w)["conference"].(map[string]interface{})
	assert.Equal(t, "abc123", conf["id"])

	w = api.do(http.MethodPost, "/api/v1/conferences", gin.H{"participants": []int{11}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w)["error"])
}

func TestListConferences(t *testing.T) {
	api := newTestAPI(t, nil)
	api.conferences.On("ListActive", mock.Anything).Return(nil, nil)
	api.conferences.On("ListOwn", mock.Anything).Return([]*domain.Conference{sampleConference()}, nil)
	api.conferences.On("ListHistory", mock.Anything).Return([]*domain.Conference{}, nil)

	w := api.do(http.MethodGet, "/api/v1/conferences", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conferences":[]}`, w.Body.String())

	w = api.do(http.MethodGet, "/api/v1/conferences?filter=own", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["conferences"], 1)

	w = api.do(http.MethodGet, "/api/v1/conferences?filter=everything", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/history", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConferenceErrorsCarryTaxonomy(t *testing.T) {
	api := newTestAPI(t, nil)
	api.conferences.On("Get", mock.Anything, domain.ConferenceID("missing")).
		Return(nil, apperrors.NewNotFoundError("conference"))
	api.conferences.On("End", mock.Anything, domain.ConferenceID("abc123")).
		Return(nil, apperrors.NewForbiddenError("only the creator can end a conference"))
	api.conferences.On("Join", mock.Anything, domain.ConferenceID("abc123")).
		Return(nil, apperrors.NewDirectoryError("join", assert.AnError))

	w := api.do(http.MethodGet, "/api/v1/conferences/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["error"])

	w = api.do(http.MethodPost, "/api/v1/conferences/abc123/end", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/api/v1/conferences/abc123/join", nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "DIRECTORY_ERROR", body["error"])
	assert.Equal(t, true, body["recoverable"])
}

func TestGetConferenceIncludesLiveCount(t *testing.T) {
	api := newTestAPI(t, nil)
	api.conferences.On("Get", mock.Anything, domain.ConferenceID("abc123")).Return(sampleConference(), nil)
	api.conferences.On("ParticipantCount", domain.ConferenceID("abc123")).Return(4)

	w := api.do(http.MethodGet, "/api/v1/conferences/abc123", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.0, decode(t, w)["participants"])
}

func TestToggleFavorite(t *testing.T) {
	api := newTestAPI(t, nil)
	fav := sampleConference()
	fav.IsFavorite = true
	api.conferences.On("ToggleFavorite", mock.Anything, domain.ConferenceID("abc123"), true).Return(fav, nil)

	w := api.do(http.MethodPut, "/api/v1/conferences/abc123/favorite", gin.H{"is_favorite": true}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPut, "/api/v1/conferences/abc123/favorite", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	api.conferences.AssertNumberOfCalls(t, "ToggleFavorite", 1)
}

func TestResolveLink(t *testing.T) {
	api := newTestAPI(t, nil)
	api.conferences.On("ResolveRoomLink", mock.Anything, "https://meet.example/join?room=abc123").Return(sampleConference(), nil)

	w := api.do(http.MethodGet, "/api/v1/rooms/resolve?link=https%3A%2F%2Fmeet.example%2Fjoin%3Froom%3Dabc123", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/v1/rooms/resolve", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	devices := domain.DeviceList{Microphones: []domain.DeviceDescriptor{{ID: "mic-1", Kind: domain.DeviceMicrophone}}}
	api.session.On("Devices", mock.Anything).Return(devices, nil)
	api.session.On("OpenCalibration", mock.Anything, domain.DeviceSelection{MicrophoneID: "mic-1", AudioOnly: true}).Return(nil)
	api.session.On("CloseCalibration").Return()
	api.session.On("StartCall", mock.Anything, domain.ConferenceID("abc123"), "Ada").Return(sampleConference(), nil)
	api.session.On("EndCall", mock.Anything).Return(nil)

	w := api.do(http.MethodGet, "/api/v1/session/devices", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio_only", decode(t, w)["readiness"])

	w = api.do(http.MethodPost, "/api/v1/session/calibration", gin.H{"microphone_id": "mic-1", "audio_only": true}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/session/calibration", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/api/v1/session/call", gin.H{"room_id": "abc123", "display_name": "Ada"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/api/v1/session/call", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/session/call", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/v1/session", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode(t, w)["session"].(map[string]interface{})["state"])

	api.session.AssertExpectations(t)
}

func TestCalibrationPermissionDenied(t *testing.T) {
	api := newTestAPI(t, nil)
	api.session.On("OpenCalibration", mock.Anything, domain.DeviceSelection{}).
		Return(apperrors.NewPermissionDeniedError(domain.ErrPermissionDenied))

	w := api.do(http.MethodPost, "/api/v1/session/calibration", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "PERMISSION_DENIED", decode(t, w)["error"])
}

func TestRequireToken(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.Control.RequireToken = true })
	api.session.On("EndCall", mock.Anything).Return(nil)

	w := api.do(http.MethodDelete, "/api/v1/session/call", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, "/api/v1/token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["access_token"].(string)

	w = api.do(http.MethodDelete, "/api/v1/session/call", nil, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	api := newTestAPI(t, nil)
	healthy := true
	api.health.AddCheck("history", func(ctx context.Context) error {
		if !healthy {
			return assert.AnError
		}
		return nil
	}, time.Second)

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/ready", nil, nil).Code)

	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, api.do(http.MethodGet, "/ready", nil, nil).Code)
}

func TestStreamAudioLevels(t *testing.T) {
	api := newTestAPI(t, nil)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/session/calibration/levels", nil)
	require.NoError(t, err)
	defer conn.Close()

	api.session.levels <- 42.5
	var msg struct {
		Level float64 `json:"level"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 42.5, msg.Level)

	close(api.session.levels)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
