package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
	"bustrack/internal/models"
	"bustrack/internal/ratelimit"
	"bustrack/internal/service"
)

type stubAuth map[string]models.Session

func (s stubAuth) Authenticate(_ context.Context, token string) (models.Session, error) {
	if token == "broken" {
		return models.Session{}, errors.New("redis: connection refused")
	}
	session, ok := s[token]
	if !ok {
		return models.Session{}, service.ErrUnauthenticated
	}
	return session, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	auth := stubAuth{
		"admin-token":   {ID: "s1", RiderID: "a1", Role: models.RiderRoleAdmin},
		"student-token": {ID: "s2", RiderID: "u1", Role: models.RiderRoleStudent},
	}
	r.Use(RequestID(zerolog.Nop()), Session("bus_session", auth, zerolog.Nop()))
	r.GET("/x", append(handlers, func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if ok {
			c.String(http.StatusOK, string(session.Role))
			return
		}
		c.String(http.StatusOK, "anonymous")
	})...)
	return r
}

func get(r http.Handler, cookie string, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "bus_session", Value: cookie})
	}
	if header != "" {
		req.Header.Set("Authorization", "Bearer "+header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSessionResolution(t *testing.T) {
	r := newRouter()

	assert.Equal(t, "anonymous", get(r, "", "").Body.String())
	assert.Equal(t, "admin", get(r, "admin-token", "").Body.String())
	assert.Equal(t, "student", get(r, "", "student-token").Body.String())
	assert.Equal(t, "anonymous", get(r, "forged", "").Body.String())
	assert.Equal(t, http.StatusInternalServerError, get(r, "broken", "").Code)
	assert.NotEmpty(t, get(r, "", "").Header().Get("X-Request-Id"))
}

func TestRequireSessionAndRoles(t *testing.T) {
	r := newRouter(RequireSession(), RequireRoles(models.RiderRoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, get(r, "", "").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "student-token", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "admin-token", "").Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(config.RateLimitConfig{Capacity: 2, Window: time.Hour})
	r := newRouter(RateLimit(limiter, "login", zerolog.Nop()))

	assert.Equal(t, http.StatusOK, get(r, "", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "", "").Code)
	rec := get(r, "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://campus.example"}))
	r.OPTIONS("/x", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://campus.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://campus.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestLoggerRecordsRouteAndRider(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	auth := stubAuth{"driver-token": {ID: "s3", RiderID: "d1", Role: models.RiderRoleDriver}}

	r := gin.New()
	r.Use(RequestID(log), Logger(log), Session("bus_session", auth, log))
	r.GET("/buses/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/buses/bus-7", nil)
	req.Header.Set("X-Request-Id", "req-42")
	req.AddCookie(&http.Cookie{Name: "bus_session", Value: "driver-token"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "/buses/:id", entry["route"])
	assert.Equal(t, "/buses/bus-7", entry["path"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "d1", entry["rider_id"])
	assert.Equal(t, "driver", entry["role"])
	assert.Equal(t, float64(http.StatusNoContent), entry["status"])
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestID(log))
	r.GET("/x", func(c *gin.Context) {
		reqLog := RequestLogger(c, zerolog.Nop())
		reqLog.Info().Msg("from handler")
		zerolog.Ctx(c.Request.Context()).Info().Msg("from context")
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	id := rec.Header().Get("X-Request-Id")
	require.NotEmpty(t, id)
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	for _, entry := range lines {
		assert.Equal(t, id, entry["request_id"])
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	var fallbackBuf bytes.Buffer
	fallbackLog := RequestLogger(c, zerolog.New(&fallbackBuf))
	fallbackLog.Info().Msg("fallback")
	assert.Contains(t, fallbackBuf.String(), "fallback")
}

func TestRecoveryUsesFailureBody(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestID(log), Recovery(log))
	r.GET("/boom", func(c *gin.Context) { panic("nil bus") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"success": false, "message": "internal server error"}, body)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "nil bus", lines[0]["panic"])
	assert.Equal(t, rec.Header().Get("X-Request-Id"), lines[0]["request_id"])
}

func TestCORSOnlyCredentialsAllowedOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://campus.example/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://campus.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "https://campus.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}
