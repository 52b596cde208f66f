package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// --- Rate limiter ---

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	l := &rateLimiter{
		entries:     make(map[string]*rateLimitEntry),
		maxRequests: 3,
		window:      time.Minute,
		now:         func() time.Time { return now },
	}

	for i := 0; i < 3; i++ {
		if !l.allow("203.0.113.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.allow("203.0.113.7") {
		t.Error("fourth request in the window should be refused")
	}
	if !l.allow("198.51.100.1") {
		t.Error("another address has its own budget")
	}

	now = now.Add(61 * time.Second)
	if !l.allow("203.0.113.7") {
		t.Error("a new window should reset the budget")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	l := &rateLimiter{
		entries:     make(map[string]*rateLimitEntry),
		maxRequests: 3,
		window:      time.Minute,
		now:         func() time.Time { return now },
	}
	l.allow("203.0.113.7")

	now = now.Add(90 * time.Second)
	l.allow("198.51.100.1")
	l.sweep()
	if len(l.entries) != 2 {
		t.Fatalf("expected both entries kept, got %d", len(l.entries))
	}

	now = now.Add(60 * time.Second)
	l.sweep()
	if _, ok := l.entries["203.0.113.7"]; ok {
		t.Error("expected the stale entry to be swept")
	}
	if _, ok := l.entries["198.51.100.1"]; !ok {
		t.Error("expected the recent entry to survive")
	}
}

// --- IP extraction ---

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct client", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"untrusted peer cannot spoof", "203.0.113.7:5555", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.7"},
		{"trusted proxy forwarded", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "198.51.100.9, 10.1.2.3"}, "198.51.100.9"},
		{"trusted proxy real ip", "10.1.2.3:80", map[string]string{"X-Real-IP": "198.51.100.10"}, "198.51.100.10"},
		{"trusted proxy without headers", "10.1.2.3:80", nil, "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := extract(req); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// --- Content negotiation ---

func TestWantsJSON(t *testing.T) {
	e := echo.New()
	cases := []struct {
		path, accept string
		want         bool
	}{
		{"/api/auth/login", "", true},
		{"/api", "", true},
		{"/ws", "", true},
		{"/apiary", "", false},
		{"/storage/assets/logo.png", "", false},
		{"/storage/assets/logo.png", "application/json", true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.accept != "" {
			req.Header.Set(echo.HeaderAccept, tc.accept)
		}
		c := e.NewContext(req, httptest.NewRecorder())
		if got := WantsJSON(c); got != tc.want {
			t.Errorf("WantsJSON(%s, %q) = %v, want %v", tc.path, tc.accept, got, tc.want)
		}
	}
}
