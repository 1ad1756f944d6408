package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	CreateConference(c *gin.Context)
	GetConference(c *gin.Context)
	JoinConference(c *gin.Context)
	ListConferences(c *gin.Context)
	ListHistory(c *gin.Context)
	ToggleFavorite(c *gin.Context)
	EndConference(c *gin.Context)
	ResolveLink(c *gin.Context)
}

type SessionHTTPHandler interface {
	ListDevices(c *gin.Context)
	OpenCalibration(c *gin.Context)
	CloseCalibration(c *gin.Context)
	StreamAudioLevels(c *gin.Context)
	StartCall(c *gin.Context)
	EndCall(c *gin.Context)
	Status(c *gin.Context)
}
