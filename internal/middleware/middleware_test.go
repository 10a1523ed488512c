package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/aria-characters/internal/auth"
	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/observability"
	"github.com/hongminglow/aria-characters/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envelopeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = io.WriteString(w, id.UserID)
	})
}

func TestAuth(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", "aria-test", time.Hour)
	good, err := tokens.Generate(models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "a@example.com"})
	require.NoError(t, err)
	other, err := tokens.Generate(models.User{ID: "22222222-2222-2222-2222-222222222222", Email: "b@example.com"})
	require.NoError(t, err)
	foreign, err := auth.NewTokenManager("other-secret", "aria-test", time.Hour).
		Generate(models.User{ID: "33333333-3333-3333-3333-333333333333"})
	require.NoError(t, err)

	handler := Auth(tokens, "token", discardLogger())(identityEcho())

	tests := []struct {
		name     string
		cookie   string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "no credentials", wantCode: http.StatusUnauthorized},
		{name: "cookie", cookie: good, wantCode: http.StatusOK, wantBody: "11111111-1111-1111-1111-111111111111"},
		{name: "bearer header", header: "Bearer " + good, wantCode: http.StatusOK, wantBody: "11111111-1111-1111-1111-111111111111"},
		{name: "lowercase scheme", header: "bearer " + good, wantCode: http.StatusOK, wantBody: "11111111-1111-1111-1111-111111111111"},
		{name: "cookie wins over header", cookie: good, header: "Bearer " + other, wantCode: http.StatusOK, wantBody: "11111111-1111-1111-1111-111111111111"},
		{name: "wrong secret", header: "Bearer " + foreign, wantCode: http.StatusUnauthorized},
		{name: "garbage", cookie: "not-a-jwt", wantCode: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic Zm9vOmJhcg==", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/characters", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHENTICATED", envelopeError(t, rec))
			} else {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestIdentityFromEmptyContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFrom(WithIdentity(context.Background(), auth.Identity{}))
	assert.False(t, ok)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("listed origin gets credentials", func(t *testing.T) {
		h := CORS([]string{"https://app.example.com"}, next)
		req := httptest.NewRequest(http.MethodGet, "/characters", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unlisted origin gets nothing", func(t *testing.T) {
		h := CORS([]string{"https://app.example.com"}, next)
		req := httptest.NewRequest(http.MethodGet, "/characters", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		h := CORS([]string{"*"}, next)
		req := httptest.NewRequest(http.MethodGet, "/characters", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		called := false
		h := CORS([]string{"https://app.example.com"}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
		req := httptest.NewRequest(http.MethodOptions, "/characters", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "PUT")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, called)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	})
}

func TestBodyLimit(t *testing.T) {
	var readErr error
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	require.NoError(t, readErr)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much too long")))
	var tooLarge *http.MaxBytesError
	assert.True(t, errors.As(readErr, &tooLarge))
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/characters", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", envelopeError(t, rec))
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestLoggingRecordsRouteTemplate(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	metrics := observability.NewMetrics()

	r := mux.NewRouter()
	r.Use(Logging(logger, metrics))
	r.HandleFunc("/characters/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/characters/abc?secret=1", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "/characters/abc", entry["path"])
	assert.Equal(t, "/characters/{id}", entry["route"])
	assert.EqualValues(t, 404, entry["status"])
	assert.EqualValues(t, 4, entry["size"])
	assert.NotContains(t, logs.String(), "secret")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/characters/{id}", "404")), 0)
}

type stubLimiter struct {
	res ratelimit.Result
	err error
}

func (s stubLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	return s.res, s.err
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RateLimit(stubLimiter{res: ratelimit.Result{Allowed: true}}, discardLogger())(ok).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("limited", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RateLimit(stubLimiter{res: ratelimit.Result{RetryAfter: 1500 * time.Millisecond}}, discardLogger())(ok).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Equal(t, "RATE_LIMITED", envelopeError(t, rec))
	})

	t.Run("limiter failure lets request through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RateLimit(stubLimiter{err: errors.New("redis down")}, discardLogger())(ok).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", clientAddr(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientAddr(req))
}
