package http

import (
	"net/http"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var levelUpgrader = websocket.Upgrader{
	ReadBufferSize:  256,
	WriteBufferSize: 1024,
}

type SessionHandler struct {
	session ports.SessionService
	logger  *zap.SugaredLogger
}

var _ ports.SessionHTTPHandler = (*SessionHandler)(nil)

func NewSessionHandler(session ports.SessionService, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{session: session, logger: logger}
}

func (h *SessionHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/session")
	{
		api.GET("", h.Status)
		api.GET("/devices", h.ListDevices)
		api.POST("/calibration", h.OpenCalibration)
		api.DELETE("/calibration", h.CloseCalibration)
		api.GET("/calibration/levels", h.StreamAudioLevels)
		api.POST("/call", h.StartCall)
		api.DELETE("/call", h.EndCall)
	}
}

type StartCallRequest struct {
	RoomID      domain.ConferenceID `json:"room_id" binding:"required,max=64"`
	DisplayName string              `json:"display_name" binding:"max=100"`
}

func (h *SessionHandler) ListDevices(c *gin.Context) {
	list, err := h.session.Devices(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":   list,
		"readiness": list.Readiness(),
	})
}

func (h *SessionHandler) OpenCalibration(c *gin.Context) {
	var sel domain.DeviceSelection
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&sel); err != nil {
			_ = c.Error(errors.NewInvalidInputError("invalid device selection"))
			return
		}
	}

	if err := h.session.OpenCalibration(c.Request.Context(), sel); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.session.Snapshot()})
}

func (h *SessionHandler) CloseCalibration(c *gin.Context) {
	h.session.CloseCalibration()
	c.JSON(http.StatusOK, gin.H{"session": h.session.Snapshot()})
}

// StreamAudioLevels pushes every calibration level reading over a WebSocket
// until the client goes away.
func (h *SessionHandler) StreamAudioLevels(c *gin.Context) {
	conn, err := levelUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("audio level upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	levels, cancel := h.session.AudioLevels()
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case level, ok := <-levels:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "calibration closed"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(gin.H{"level": level}); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("room_id is required"))
		return
	}

	conf, err := h.session.StartCall(c.Request.Context(), req.RoomID, req.DisplayName)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conference": conf,
		"session":    h.session.Snapshot(),
	})
}

func (h *SessionHandler) EndCall(c *gin.Context) {
	if err := h.session.EndCall(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.session.Snapshot()})
}

func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"session": h.session.Snapshot()})
}
