package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/", Auth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	w := get(protectedRouter(""), "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth(t *testing.T) {
	r := protectedRouter("s3cret")

	token, err := IssueToken("s3cret", "alice", time.Hour)
	require.NoError(t, err)

	w := get(r, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", w.Body.String())

	other, err := IssueToken("other", "alice", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "alice", -time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic " + token,
		"empty token":  "Bearer ",
		"wrong key":    "Bearer " + other,
		"expired":      "Bearer " + expired,
		"garbage":      "Bearer not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			w := get(r, header)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Contains(t, w.Body.String(), `"code":401`)
		})
	}

	_, err = IssueToken("", "alice", time.Hour)
	require.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"), "clients are limited separately")

	now = now.Add(time.Minute)
	require.True(t, rl.Allow("a"), "window slid past the old requests")
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(1, time.Hour), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, get(r, "").Code)
	require.Equal(t, http.StatusTooManyRequests, get(r, "").Code)

	open := gin.New()
	open.GET("/", RateLimit(0, time.Hour), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(open, "").Code)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Logger(logger))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/?x=1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.Contains(t, out, `"level":"WARN"`)
	require.Contains(t, out, `"path":"/?x=1"`)
	require.Contains(t, out, `"status":418`)
}
