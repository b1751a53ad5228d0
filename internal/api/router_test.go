package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/postplan/postplan/internal/middleware"
)

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"handler": body, "request_id": mw.GetRequestID(r.Context())})
	}
}

func newTestRouter(t *testing.T, h HandlerSet, cfg RouterConfig) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if h.Generate == nil {
		h.Generate = okHandler("generate")
	}
	if h.Usage == nil {
		h.Usage = okHandler("usage")
	}
	return NewRouter(Dependencies{Redis: client}, cfg, h), mr
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "9.9.9.9:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router, mr := newTestRouter(t, HandlerSet{}, RouterConfig{})

	rec := serve(router, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "healthy", health["redis"])
	assert.Equal(t, "not configured", health["database"])
	assert.Equal(t, "not configured", health["nats"])

	mr.Close()
	rec = serve(router, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
	assert.Equal(t, "unhealthy", health["redis"])
}

func TestRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(t, HandlerSet{ListUsageEvents: okHandler("events")}, RouterConfig{})

	tests := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/v1/generate", "generate"},
		{http.MethodGet, "/api/v1/usage?userId=u1", "usage"},
		{http.MethodGet, "/api/v1/usage/events?userId=u1", "events"},
	}
	for _, tt := range tests {
		rec := serve(router, tt.method, tt.path)
		require.Equal(t, http.StatusOK, rec.Code, tt.path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.want, body["handler"])
		_, err := uuid.Parse(body["request_id"])
		assert.NoError(t, err, "request id should be a uuid")
	}

	rec := serve(router, http.MethodGet, "/api/v1/generate")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "postplan_http_requests_total")
}

func TestRouter_CommonHeaders(t *testing.T) {
	router, _ := newTestRouter(t, HandlerSet{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	inbound := uuid.NewString()
	req.Header.Set("X-Request-ID", inbound)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, inbound, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "not a uuid\r\n")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestRouter_AuthMiddlewareGuardsAPIOnly(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HandleError(w, ErrUnauthorized)
		})
	}
	router, _ := newTestRouter(t, HandlerSet{AuthMiddleware: deny}, RouterConfig{})

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/api/v1/generate").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/v1/usage").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live").Code)
}

func TestRouter_GenerateRateLimitedSeparately(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := mw.NewRateLimiter(client, "generate", 1, 60)
	router := NewRouter(Dependencies{Redis: client}, RouterConfig{GenerateRateLimiter: limiter.Middleware}, HandlerSet{
		Generate: okHandler("generate"),
		Usage:    okHandler("usage"),
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/api/v1/generate").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/api/v1/generate").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/usage?userId=u1").Code)
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	router, _ := newTestRouter(t, HandlerSet{Generate: func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}}, RouterConfig{})

	rec := serve(router, http.MethodPost, "/api/v1/generate")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, ErrOwnershipViolation)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"access denied: user mismatch"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HandleError(rec, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	JSONErrorUsage(rec, http.StatusTooManyRequests, "limit", map[string]int{"current": 3, "limit": 3})
	assert.JSONEq(t, `{"error":"limit","usage":{"current":3,"limit":3}}`, rec.Body.String())
}
