package middleware

import (
	"net/http"
	"strings"

	"confline/internal/core/domain"
	"confline/internal/core/services"
	"confline/pkg/logger"

	"github.com/gin-gonic/gin"
)

const ContextUserID = "user_id"

// AuthMiddleware requires a bearer token issued for the local user. With
// required false every request passes and only a valid token is recorded.
func AuthMiddleware(tokens *services.TokenService, user domain.UserID, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
				return
			}
			c.Next()
			return
		}

		claims, err := tokens.ValidateFor(token, user)
		if err != nil {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.Next()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), int64(claims.UserID)))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
