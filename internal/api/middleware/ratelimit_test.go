package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kaanagar1/equimarket-sub000/internal/api/middleware"
	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/config"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

const testSecret = "test-secret"

func setupLimitedEngine(t *testing.T, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{RateLimitBucketSize: burst, RateLimitRefillRate: 1}
	rl := middleware.NewRateLimiterMiddleware(ctx, cfg, zaptest.NewLogger(t))

	r := gin.New()
	r.Use(middleware.OptionalAuthMiddleware(testSecret), rl.Limit())
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	return r
}

func doRequest(r *gin.Engine, remoteAddr, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	r := setupLimitedEngine(t, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1:1234", "").Code, "request %d", i)
	}
	w := doRequest(r, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Rate limit exceeded"}`, w.Body.String())

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.2:1234", "").Code)
}

func TestRateLimiter_KeysAuthenticatedUsersByID(t *testing.T) {
	r := setupLimitedEngine(t, 1)
	token, err := auth.GenerateJWT(utils.NewSixID(), auth.RoleUser, testSecret, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1:1", token).Code)
	// Same user from another address shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "10.0.0.9:1", token).Code)
	// Anonymous traffic from the first address is keyed separately.
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1:1", "").Code)
}
