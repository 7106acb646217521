package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusride/internal/auth"
)

// fakeResponseStore is an in-memory idempotency store with error injection.
type fakeResponseStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	GetErr error
}

func newFakeResponseStore() *fakeResponseStore {
	return &fakeResponseStore{data: make(map[string][]byte)}
}

func (s *fakeResponseStore) GetResponse(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, false, s.GetErr
	}
	data, ok := s.data[key]
	return data, ok, nil
}

func (s *fakeResponseStore) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		s.data[key] = data
	}
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	store := newFakeResponseStore()
	var calls atomic.Int64

	r := gin.New()
	r.Use(Idempotency(store, zap.NewNop()))
	r.POST("/top-up", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})
	r.POST("/flaky", func(c *gin.Context) {
		calls.Add(1)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy"})
	})

	key := map[string]string{IdempotencyHeader: "k1"}
	first := serve(r, http.MethodPost, "/top-up", key)
	second := serve(r, http.MethodPost, "/top-up", key)

	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("replay = %d %s, want %d %s", second.Code, second.Body.String(), first.Code, first.Body.String())
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Error("replayed response is not marked")
	}

	serve(r, http.MethodPost, "/top-up", map[string]string{IdempotencyHeader: "k2"})
	serve(r, http.MethodPost, "/top-up", nil)
	if calls.Load() != 3 {
		t.Errorf("handler ran %d times, want 3 for a new key and no key", calls.Load())
	}

	serve(r, http.MethodPost, "/flaky", key)
	serve(r, http.MethodPost, "/flaky", key)
	if calls.Load() != 5 {
		t.Errorf("handler ran %d times, want server errors to run again", calls.Load())
	}
}

func TestIdempotencyStoreFailureProceeds(t *testing.T) {
	store := newFakeResponseStore()
	store.GetErr = errors.New("redis down")
	var calls atomic.Int64

	r := gin.New()
	r.Use(Idempotency(store, zap.NewNop()))
	r.POST("/x", func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusNoContent)
	})

	serve(r, http.MethodPost, "/x", map[string]string{IdempotencyHeader: "k"})
	serve(r, http.MethodPost, "/x", map[string]string{IdempotencyHeader: "k"})
	if calls.Load() != 2 {
		t.Errorf("handler ran %d times, want 2", calls.Load())
	}
}

func TestAuthenticate(t *testing.T) {
	issuer, err := auth.NewIssuer("middleware-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	token, _ := issuer.Issue("user-7", "rider")

	r := gin.New()
	r.GET("/me", Authenticate(issuer, zap.NewNop()), func(c *gin.Context) {
		c.String(http.StatusOK, CallerID(c))
	})

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, "/me", map[string]string{"Authorization": tt.header})
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.code == http.StatusOK && w.Body.String() != "user-7" {
				t.Errorf("caller = %q, want user-7", w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(2, zap.NewNop()))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if w := serve(r, http.MethodPost, "/x", nil); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: status = %d, want 204", i, w.Code)
		}
	}
	w := serve(r, http.MethodPost, "/x", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("status = %d, want 429 with Retry-After", w.Code)
	}
	if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Errorf("reads are limited: status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.campus.edu"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/x", map[string]string{"Origin": "https://app.campus.edu"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.campus.edu" {
		t.Errorf("allowed origin = %q", got)
	}

	w = serve(r, http.MethodGet, "/x", map[string]string{"Origin": "https://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d, want 403", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}

	w = serve(r, http.MethodOptions, "/x", map[string]string{
		"Origin":                         "https://app.campus.edu",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": IdempotencyHeader,
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, IdempotencyHeader) {
		t.Errorf("preflight allow headers = %q, want %s", got, IdempotencyHeader)
	}

	if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Errorf("request without origin: status = %d", w.Code)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"*"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/x", map[string]string{"Origin": "https://anything.example"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q, want *", got)
	}
}
