package http

import (
	"net/http"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ConferenceHandler struct {
	conferences ports.ConferenceService
}

var _ ports.HTTPHandler = (*ConferenceHandler)(nil)

func NewConferenceHandler(conferences ports.ConferenceService) *ConferenceHandler {
	return &ConferenceHandler{conferences: conferences}
}

func (h *ConferenceHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/conferences", h.CreateConference)
		api.GET("/conferences", h.ListConferences)
		api.GET("/conferences/:id", h.GetConference)
		api.POST("/conferences/:id/join", h.JoinConference)
		api.PUT("/conferences/:id/favorite", h.ToggleFavorite)
		api.POST("/conferences/:id/end", h.EndConference)
		api.GET("/history", h.ListHistory)
		api.GET("/rooms/resolve", h.ResolveLink)
	}
}

type CreateConferenceRequest struct {
	Name         string          `json:"name" binding:"required,max=200"`
	Participants []domain.UserID `json:"participants" binding:"max=500"`
}

type FavoriteRequest struct {
	IsFavorite *bool `json:"is_favorite" binding:"required"`
}

func (h *ConferenceHandler) CreateConference(c *gin.Context) {
	var req CreateConferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	conf, err := h.conferences.Create(c.Request.Context(), req.Name, req.Participants)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conference": conf})
}

func (h *ConferenceHandler) GetConference(c *gin.Context) {
	conf, err := h.conferences.Get(c.Request.Context(), domain.ConferenceID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conference":   conf,
		"participants": h.conferences.ParticipantCount(conf.ID),
	})
}

func (h *ConferenceHandler) JoinConference(c *gin.Context) {
	conf, err := h.conferences.Join(c.Request.Context(), domain.ConferenceID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conference": conf})
}

// ListConferences serves the three directory views selected by ?filter=.
func (h *ConferenceHandler) ListConferences(c *gin.Context) {
	var (
		list []*domain.Conference
		err  error
	)
	switch c.DefaultQuery("filter", "active") {
	case "active":
		list, err = h.conferences.ListActive(c.Request.Context())
	case "own":
		list, err = h.conferences.ListOwn(c.Request.Context())
	case "favorites":
		list, err = h.conferences.ListFavorites(c.Request.Context())
	default:
		_ = c.Error(errors.NewInvalidInputError("filter must be active, own or favorites"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conferences": nonNil(list)})
}

func (h *ConferenceHandler) ListHistory(c *gin.Context) {
	list, err := h.conferences.ListHistory(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conferences": nonNil(list)})
}

func (h *ConferenceHandler) ToggleFavorite(c *gin.Context) {
	var req FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("is_favorite is required"))
		return
	}

	conf, err := h.conferences.ToggleFavorite(c.Request.Context(), domain.ConferenceID(c.Param("id")), *req.IsFavorite)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conference": conf})
}

func (h *ConferenceHandler) EndConference(c *gin.Context) {
	conf, err := h.conferences.End(c.Request.Context(), domain.ConferenceID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conference": conf})
}

func (h *ConferenceHandler) ResolveLink(c *gin.Context) {
	link := c.Query("link")
	if link == "" {
		_ = c.Error(errors.NewInvalidInputError("link query parameter is required"))
		return
	}

	conf, err := h.conferences.ResolveRoomLink(c.Request.Context(), link)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conference": conf})
}

func nonNil(list []*domain.Conference) []*domain.Conference {
	if list == nil {
		return []*domain.Conference{}
	}
	return list
}
