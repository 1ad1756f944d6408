package http

import (
	"net/http"

	"confline/internal/core/domain"
	"confline/internal/core/services"
	"confline/pkg/errors"

	"github.com/gin-gonic/gin"
)

// TokenHandler hands out the local user's bearer token for the control API.
type TokenHandler struct {
	tokens   *services.TokenService
	identity domain.Identity
}

func NewTokenHandler(tokens *services.TokenService, identity domain.Identity) *TokenHandler {
	return &TokenHandler{tokens: tokens, identity: identity}
}

func (h *TokenHandler) SetupRoutes(router gin.IRouter) {
	router.POST("/api/v1/token", h.IssueToken)
}

func (h *TokenHandler) IssueToken(c *gin.Context) {
	token, err := h.tokens.Issue(h.identity)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to issue token", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"user_id":      h.identity.UserID,
	})
}
