package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tripnotify/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("middleware-test-secret")
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/admin", JWTAuthAdminMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("adminID"))
	})
	r.GET("/me", JWTAuthUserMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})
	return r
}

func request(t *testing.T, r http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminMiddleware(t *testing.T) {
	r := authRouter()
	admin, err := utils.GenerateToken("ops-1", utils.RoleAdmin, time.Hour)
	require.NoError(t, err)
	user, err := utils.GenerateToken("u-1", utils.RoleUser, time.Hour)
	require.NoError(t, err)

	w := request(t, r, "/admin", admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops-1", w.Body.String())

	assert.Equal(t, http.StatusForbidden, request(t, r, "/admin", user).Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/admin", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/admin", "garbage").Code)
}

func TestUserMiddlewareScopesByToken(t *testing.T) {
	r := authRouter()
	user, err := utils.GenerateToken("u-42", utils.RoleUser, time.Hour)
	require.NoError(t, err)

	w := request(t, r, "/me", user)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-42", w.Body.String())

	expired, err := utils.GenerateToken("u-42", utils.RoleUser, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/me", expired).Code)
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
