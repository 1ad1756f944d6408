package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/services"
	apperrors "confline/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := services.NewTokenService("secret", time.Hour)
	mine, err := tokens.Issue(domain.Identity{UserID: 10, DisplayName: "Ada"})
	require.NoError(t, err)
	theirs, err := tokens.Issue(domain.Identity{UserID: 11})
	require.NoError(t, err)

	router := gin.New()
	router.Use(AuthMiddleware(tokens, 10, true))
	router.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.MustGet(ContextUserID)})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token " + mine, http.StatusUnauthorized},
		{"other user", "Bearer " + theirs, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"own token", "Bearer " + mine, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(services.NewTokenService("secret", time.Hour), 10, false))
	router.GET("/open", func(c *gin.Context) {
		_, authed := c.Get(ContextUserID)
		c.JSON(http.StatusOK, gin.H{"authed": authed})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer junk")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authed":false}`, w.Body.String())
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t).Sugar()

	router := gin.New()
	router.Use(RequestIDMiddleware(), RecoveryMiddleware(log), ErrorHandlerMiddleware(log))
	router.GET("/forbidden", func(c *gin.Context) {
		_ = c.Error(apperrors.NewForbiddenError("only the creator can end a conference"))
	})
	router.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/forbidden", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	body := decodeBody(t, w)
	assert.Equal(t, "FORBIDDEN", body["error"])
	assert.Equal(t, true, body["recoverable"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/plain", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, false, decodeBody(t, w)["recoverable"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeBody(t, w)["error"])
}
