package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSAllowedOrigin(t *testing.T) {
	h := NewCORSMiddleware([]string{"http://localhost:3000/", "https://pulse.example"}).Handler(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestCORSRejectsSuffixMatch(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://pulse.example"}).Handler(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/articles", nil)
	req.Header.Set("Origin", "https://evil-pulse.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want empty", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewCORSMiddleware([]string{"*"}).Handler(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/purchases", nil)
	req.Header.Set("Origin", "https://any.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.NewDiscard())
	h := rl.Handler(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client status = %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, 5, logging.NewDiscard())
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.getLimiter("a")
	now = now.Add(time.Minute)
	rl.getLimiter("b")

	rl.Cleanup(30 * time.Second)
	if _, ok := rl.limiters["a"]; ok {
		t.Error("idle limiter not evicted")
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Error("active limiter evicted")
	}
}

func TestTracingPropagatesTraceID(t *testing.T) {
	var seen string
	h := NewTracingMiddleware(logging.NewDiscard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "trace-123" || rec.Header().Get("X-Trace-ID") != "trace-123" {
		t.Fatalf("trace id = %q, header = %q", seen, rec.Header().Get("X-Trace-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("trace id not generated")
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logging.NewDiscard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
