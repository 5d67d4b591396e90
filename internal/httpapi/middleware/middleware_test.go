package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/token"
)

type staticValidator map[string]*token.Claims

func (v staticValidator) ValidateAccessToken(tok string) (*token.Claims, error) {
	c, ok := v[tok]
	if !ok {
		return nil, errors.New("bad token")
	}
	return c, nil
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestRequireAuthAndRole(t *testing.T) {
	t.Parallel()

	auth := NewAuth(staticValidator{
		"admin":   {Role: model.UserTypeAdmin},
		"student": {Role: model.UserTypeStudent},
	})
	h := auth.RequireAuth(RequireRole(model.UserTypeAdmin)(ok))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer student", http.StatusForbidden},
		{"admin", "bearer admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[key]++
	return m.hits[key], nil
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	counter := &memCounter{hits: map[string]int64{}}
	limiter := NewRateLimiter(counter, "attest", zap.NewNop())
	h := limiter.Limit("login", 2, time.Minute, func(r *http.Request) string { return r.RemoteAddr })(ok)

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1"); code != http.StatusNoContent {
			t.Fatalf("call %d status = %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third call status = %d, want 429", code)
	}
	if code := call("10.0.0.2"); code != http.StatusNoContent {
		t.Errorf("other client status = %d", code)
	}
	if _, found := counter.hits["attest:ratelimit:login:10.0.0.1"]; !found {
		t.Errorf("keys = %v", counter.hits)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiter(&memCounter{err: errors.New("redis down")}, "attest", zap.NewNop())
	h := limiter.Limit("code", 1, time.Minute, func(*http.Request) string { return "k" })(ok)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	}
}
