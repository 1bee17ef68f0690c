package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
	"bustrack/internal/handlers"
	"bustrack/internal/metrics"
)

func TestRouterAppliesMiddleware(t *testing.T) {
	cfg := &config.AppConfig{
		Environment:      "test",
		HTTP:             config.HTTPConfig{Host: "127.0.0.1", Port: 0},
		Session:          config.SessionConfig{CookieName: "bus_session"},
		AllowCORSOrigins: []string{"https://campus.example"},
	}
	collector := metrics.NewCollector()
	h := handlers.NewHandlerSet(handlers.Dependencies{Config: cfg, Log: zerolog.Nop(), Metrics: collector.Handler()})
	srv := NewHTTPServer(cfg, zerolog.Nop(), h)

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("Origin", "https://campus.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, "https://campus.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
