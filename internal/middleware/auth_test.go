package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-fusion-backend/internal/config"
	"fabric-fusion-backend/internal/middleware"
)

const testSecret = "test-secret-key-for-jwt-signing-must-be-long-enough"

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{SupabaseJWTSecret: testSecret}

	router := gin.New()
	router.Use(middleware.AuthMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		userID, _ := c.Get(middleware.UserIDKey)
		c.JSON(http.StatusOK, gin.H{"user": userID})
	})
	return router
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tokenString, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	w := serve(newAuthRouter(t), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	w := serve(newAuthRouter(t), "Bearer invalid-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokenString := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "user-123"})

	w := serve(newAuthRouter(t), "Bearer "+tokenString)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-123")
}

func TestAuthMiddleware_URLEncodedToken(t *testing.T) {
	tokenString := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "user-123"})

	w := serve(newAuthRouter(t), "Bearer "+url.QueryEscape(tokenString))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, "another-secret", jwt.MapClaims{"sub": "user-123"}),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "user-123"}),
		"missing sub":  signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "authenticated"}),
		"expired": signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}),
	}
	router := newAuthRouter(t)
	for name, tokenString := range cases {
		t.Run(name, func(t *testing.T) {
			w := serve(router, "Bearer "+tokenString)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthMiddleware_RequiresBearerScheme(t *testing.T) {
	tokenString := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "user-123"})

	w := serve(newAuthRouter(t), "Token "+tokenString)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
