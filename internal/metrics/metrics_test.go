package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/tracks/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/tracks/:id", "200"))
	for _, path := range []string{"/tracks/1", "/tracks/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/tracks/:id", "200"))
	require.Equal(t, 2.0, after-before)

	unmatched := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, unmatched+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestUpdateDBStats(t *testing.T) {
	UpdateDBStats(sql.DBStats{OpenConnections: 3, InUse: 1, WaitCount: 7})
	require.Equal(t, 3.0, testutil.ToFloat64(DBConnsOpen))
	require.Equal(t, 1.0, testutil.ToFloat64(DBConnsInUse))
	require.Equal(t, 7.0, testutil.ToFloat64(DBWaitCount))
}
