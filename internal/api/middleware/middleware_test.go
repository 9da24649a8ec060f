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

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/tracing"
)

func setupTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "success"}) }
	router.GET("/extensions", ok)
	router.GET("/health", ok)
	return router
}

func get(router *gin.Engine, path, remote string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter(CORS(DefaultCORSConfig()))

	tests := []struct {
		name           string
		method         string
		origin         string
		wantStatus     int
		wantCORSHeader bool
	}{
		{"simple GET with origin", http.MethodGet, "http://localhost:5173", http.StatusOK, true},
		{"preflight", http.MethodOptions, "http://localhost:5173", http.StatusNoContent, true},
		{"no origin header", http.MethodGet, "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/extensions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCORSHeader {
				assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSExposesTraceHeaders(t *testing.T) {
	router := setupTestRouter(CORS(DefaultCORSConfig()))
	w := get(router, "/extensions", "", http.Header{"Origin": {"http://localhost:5173"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Expose-Headers")), strings.ToLower(tracing.TraceHeader))
}

func TestCORSWithOrigins(t *testing.T) {
	cfg := DefaultCORSConfig().WithOrigins([]string{"https://console.example.com"})
	assert.Equal(t, []string{"https://console.example.com"}, cfg.AllowOrigins)
	assert.Equal(t, DefaultCORSConfig().AllowOrigins, DefaultCORSConfig().WithOrigins(nil).AllowOrigins)

	router := setupTestRouter(CORS(cfg))

	w := get(router, "/extensions", "", http.Header{"Origin": {"https://console.example.com"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(router, "/extensions", "", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))

	for i := 0; i < 2; i++ {
		w := get(router, "/extensions", "192.168.1.1:1234", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}

	w := get(router, "/extensions", "192.168.1.1:1234", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitDifferentClients(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, get(router, "/extensions", "192.168.1.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, get(router, "/extensions", "192.168.1.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/extensions", "192.168.1.1:1234", nil).Code)
}

func TestRateLimitExemptPaths(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Exempt: []string{"/health"}}))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(router, "/health", "192.168.1.1:1234", nil).Code)
	}
	assert.Equal(t, http.StatusOK, get(router, "/extensions", "192.168.1.1:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/extensions", "192.168.1.1:1234", nil).Code)
}

func TestIdleVisitorsAreEvicted(t *testing.T) {
	set := &limiterSet{
		cfg:      RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		visitors: make(map[string]*visitor),
		swept:    time.Now(),
	}
	start := time.Now()
	set.get("10.0.0.1", start)
	set.get("10.0.0.2", start.Add(idleAfter/2))
	assert.Equal(t, 2, set.size())

	set.get("10.0.0.3", start.Add(idleAfter+time.Minute))
	assert.Equal(t, 2, set.size(), "10.0.0.1 was idle past the window")
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(router, "/extensions", "192.168.1.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, get(router, "/extensions", "192.168.1.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/extensions", "192.168.1.3:1234", nil).Code)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, 100, cfg.RequestsPerSecond)
	assert.Equal(t, 200, cfg.Burst)
	assert.Contains(t, cfg.Exempt, "/stream")
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter(RateLimit(DefaultRateLimitConfig()))
	req := httptest.NewRequest(http.MethodGet, "/extensions", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
}
