package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postplan/postplan/internal/auth"
)

const coffeeShopBody = `{"niche":"Coffee shop","audience":"college students","platform":"instagram","goal":"engagement","userId":"u1"}`

func postGenerate(h *Handler, body string, claims *auth.Claims) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	h.Generate(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func subject(sub string) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
}

func TestHandler_GenerateSuccess(t *testing.T) {
	store := newMemStore()
	store.seed("u1", 0, 30)
	h := NewHandler(newTestService(store, &fakeBackend{content: validPlan}, nil, false))

	rec := postGenerate(h, coffeeShopBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Schedule, 7)
	assert.Equal(t, "Weekdays 7 AM - 9 AM", res.BestPostTime)

	body := decodeBody(t, rec)
	assert.NotContains(t, body, "data")
	assert.NotContains(t, body, "error")
}

func TestHandler_GenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*memStore, *fakeBackend)
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid json",
			body:       `{"niche":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing fields",
			body:       `{"userId":"u1","niche":"Coffee shop"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing fields: platform, goal",
		},
		{
			name:       "quota exceeded",
			body:       coffeeShopBody,
			setup:      func(s *memStore, _ *fakeBackend) { s.seed("u1", 30, 30) },
			wantStatus: http.StatusTooManyRequests,
			wantError:  "Monthly limit reached. Upgrade to Pro for more.",
		},
		{
			name:       "profile creation failure",
			body:       coffeeShopBody,
			setup:      func(s *memStore, _ *fakeBackend) { s.createErr = errors.New("denied") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to create user profile",
		},
		{
			name:       "backend failure",
			body:       coffeeShopBody,
			setup:      func(_ *memStore, b *fakeBackend) { b.err = errors.New("upstream 502") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal Server Error",
		},
		{
			name:       "malformed response",
			body:       coffeeShopBody,
			setup:      func(_ *memStore, b *fakeBackend) { b.content = "not json" },
			wantStatus: http.StatusInternalServerError,
			wantError:  "Invalid AI Response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			backend := &fakeBackend{content: validPlan}
			if tt.setup != nil {
				tt.setup(store, backend)
			}
			h := NewHandler(newTestService(store, backend, nil, false))

			rec := postGenerate(h, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			if tt.wantStatus == http.StatusTooManyRequests {
				assert.Equal(t, map[string]any{"current": float64(30), "limit": float64(30)}, body["usage"])
			} else {
				assert.NotContains(t, body, "usage")
			}
		})
	}
}

func TestHandler_GenerateWithIdentity(t *testing.T) {
	t.Run("subject fills missing userId", func(t *testing.T) {
		store := newMemStore()
		h := NewHandler(newTestService(store, &fakeBackend{content: validPlan}, nil, false))

		body := `{"niche":"Coffee shop","platform":"instagram","goal":"sales"}`
		rec := postGenerate(h, body, subject("token-user"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, store.get("token-user").PlanUsage)
	})

	t.Run("mismatched userId is forbidden", func(t *testing.T) {
		store := newMemStore()
		backend := &fakeBackend{content: validPlan}
		h := NewHandler(newTestService(store, backend, nil, false))

		rec := postGenerate(h, coffeeShopBody, subject("someone-else"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Zero(t, backend.callCount())
		assert.Nil(t, store.get("u1"))
	})
}

func TestHandler_Usage(t *testing.T) {
	store := newMemStore()
	store.seed("u1", 12, 30)
	h := NewHandler(newTestService(store, &fakeBackend{}, nil, false))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage?userId=u1", nil)
	rec := httptest.NewRecorder()
	h.Usage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current":12,"limit":30}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	rec = httptest.NewRecorder()
	h.Usage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), subject("u1")))
	rec = httptest.NewRecorder()
	h.Usage(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current":12,"limit":30}`, rec.Body.String())
}
