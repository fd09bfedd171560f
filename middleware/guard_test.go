package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serve runs one GET from ip against r and returns the recorder.
func serve(r *gin.Engine, path, ip string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Real-IP", ip)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPWhitelist(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		ip      string
		want    int
	}{
		{"no list admits everyone", nil, "203.0.113.9", http.StatusOK},
		{"listed operator", []string{"192.168.1.10"}, "192.168.1.10", http.StatusOK},
		{"second listed host", []string{"10.0.0.1", "10.0.0.2"}, "10.0.0.2", http.StatusOK},
		{"unlisted host", []string{"10.0.0.1", "10.0.0.2"}, "10.0.0.3", http.StatusForbidden},
		{"operator subnet", []string{"192.168.1.0/24"}, "192.168.1.77", http.StatusOK},
		{"outside subnet", []string{"192.168.1.0/24"}, "192.168.2.1", http.StatusForbidden},
		{"ipv6 loopback", []string{"::1"}, "::1", http.StatusOK},
		{"invalid entries skipped", []string{"not-an-ip", "10.0.0.1"}, "10.0.0.9", http.StatusForbidden},
		{"only invalid entries", []string{"not-an-ip"}, "10.0.0.9", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			admin := r.Group("/api/admin", IPWhitelist(tc.allowed))
			admin.GET("/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := serve(r, "/api/admin/sessions", tc.ip)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func newTraceRouter() *gin.Engine {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/api/status", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})
	return r
}

func TestTraceID(t *testing.T) {
	r := newTraceRouter()

	t.Run("generated", func(t *testing.T) {
		w := serve(r, "/api/status", "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code)
		id := w.Body.String()
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Header().Get(TraceIDHeader))
	})

	t.Run("client supplied is echoed", func(t *testing.T) {
		w := serve(r, "/api/status", "10.0.0.1", TraceIDHeader, "dash-42")
		assert.Equal(t, "dash-42", w.Body.String())
		assert.Equal(t, "dash-42", w.Header().Get(TraceIDHeader))
	})

	t.Run("oversized is replaced", func(t *testing.T) {
		w := serve(r, "/api/status", "10.0.0.1", TraceIDHeader, strings.Repeat("a", 100))
		assert.Len(t, w.Body.String(), 36)
	})

	t.Run("unsafe characters are replaced", func(t *testing.T) {
		w := serve(r, "/api/status", "10.0.0.1", TraceIDHeader, "abc\" onload=\"x")
		assert.Len(t, w.Body.String(), 36)
		assert.NotContains(t, w.Body.String(), "onload")
	})

	t.Run("fresh per request", func(t *testing.T) {
		a := serve(r, "/api/status", "10.0.0.1").Body.String()
		b := serve(r, "/api/status", "10.0.0.1").Body.String()
		assert.NotEqual(t, a, b)
	})
}

func TestGetTraceID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}

func newLimitedRouter(burst int) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(0.001, burst, "/health", "/ws"))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/health", ok)
	r.GET("/ws", ok)
	r.GET("/api/logs", ok)
	return r
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := newLimitedRouter(3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/api/logs", "10.0.1.1").Code, "request %d", i+1)
	}
	w := serve(r, "/api/logs", "10.0.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Retry-After"))
}

func TestBuckets_SweepsIdleClients(t *testing.T) {
	now := time.Now()
	bs := &buckets{r: 1, b: 1, clients: make(map[string]*bucket), lastSweep: now}
	assert.True(t, bs.allow("10.3.3.3", now))
	assert.False(t, bs.allow("10.3.3.3", now))

	later := now.Add(bucketIdle + sweepEvery + time.Second)
	assert.True(t, bs.allow("10.3.3.4", later))
	assert.NotContains(t, bs.clients, "10.3.3.3", "idle bucket dropped on the next sweep")
	assert.Contains(t, bs.clients, "10.3.3.4")
}

func TestRateLimit_BucketPerClient(t *testing.T) {
	r := newLimitedRouter(1)
	assert.Equal(t, http.StatusOK, serve(r, "/api/logs", "10.1.1.1").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/api/logs", "10.1.1.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/api/logs", "10.1.1.1").Code)
}

func TestRateLimit_ExemptRoutes(t *testing.T) {
	r := newLimitedRouter(1)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/health", "10.2.2.2").Code, "health check %d", i+1)
		assert.Equal(t, http.StatusOK, serve(r, "/ws", "10.2.2.2").Code, "socket upgrade %d", i+1)
	}
	assert.Equal(t, http.StatusOK, serve(r, "/api/logs", "10.2.2.2").Code, "exempt hits never drain the bucket")
}
