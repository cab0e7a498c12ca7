package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
	"manuscript-ingest/config"
	"manuscript-ingest/handler"
	"manuscript-ingest/service"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Server: config.Server{RateLimit: 5, RateBurst: 10}}
	registry := prometheus.NewRegistry()
	service.NewMetrics(registry)
	ctx := zerolog.Nop().WithContext(context.Background())
	return newRouter(ctx, cfg, handler.NewHttpHandler(nil, nil, nil, 1024), registry)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "podcast_ingest_upload_bytes")
	assert.Contains(t, w.Body.String(), "podcast_ingest_gateway_duration_seconds")
}

func TestRateLimiterPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(rate.Limit(0), 1).Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestApiRoutesAreRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Server: config.Server{RateLimit: 0, RateBurst: 0}}
	r := newRouter(zerolog.Nop().WithContext(context.Background()), cfg, handler.NewHttpHandler(nil, nil, nil, 1024), prometheus.NewRegistry())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/podcasts/not-a-uuid", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(rate.Limit(1), 1)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	rl.limiter("10.0.0.1")
	rl.limiter("10.0.0.2")
	assert.Len(t, rl.clients, 2)

	now = now.Add(5 * time.Minute)
	rl.limiter("10.0.0.2")

	now = now.Add(6 * time.Minute)
	rl.limiter("10.0.0.3")
	assert.Len(t, rl.clients, 2)
	assert.NotContains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")
	assert.Contains(t, rl.clients, "10.0.0.3")
}
