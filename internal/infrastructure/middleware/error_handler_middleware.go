package middleware

import (
	"net/http"

	"confline/pkg/errors"
	"confline/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last handler error as a JSON body
// carrying the error code and whether the caller can carry on.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		reqLog := logger.FromContext(c.Request.Context(), log)

		appErr := errors.GetAppError(err)
		if appErr == nil {
			reqLog.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":       string(errors.ErrCodeInternal),
				"message":     "Internal server error",
				"recoverable": false,
			})
			return
		}

		logFn := reqLog.Warnw
		if appErr.HTTPStatus >= 500 {
			logFn = reqLog.Errorw
		}
		logFn("application error",
			"code", appErr.Code,
			"message", appErr.Message,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"context", appErr.Context,
			"cause", appErr.Cause,
		)

		c.JSON(appErr.HTTPStatus, gin.H{
			"error":       string(appErr.Code),
			"message":     appErr.Message,
			"details":     appErr.Context,
			"recoverable": appErr.Recoverable(),
		})
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context(), log).Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":       string(errors.ErrCodeInternal),
					"message":     "Internal server error",
					"recoverable": false,
				})
			}
		}()

		c.Next()
	}
}
