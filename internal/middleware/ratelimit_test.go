package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestExtractIP(t *testing.T) {
	assert.Equal(t, "198.51.100.10", extractIP("198.51.100.10:1234"))
	assert.Equal(t, "2001:db8::2", extractIP(net.JoinHostPort("2001:db8::2", "443")))
	assert.Equal(t, "203.0.113.1", extractIP("203.0.113.1"))
}

func TestRateLimit_BlocksAfterBurstPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(0.001, 2))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusOK, do("203.0.113.1:1001").Code)

	blocked := do("203.0.113.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "1", blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("203.0.113.2:1000").Code)
}
