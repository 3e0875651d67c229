package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/perchd/perchd/internal/config"
	"github.com/perchd/perchd/internal/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mk("a"), mk("b"), mk("c"))(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ""); got != "abc" {
		t.Errorf("Expected middleware order abc, got %q", got)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}

	var resp types.ScrapeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error envelope: %v", err)
	}
	if resp.Success || resp.Error == "" || resp.Timestamp.IsZero() {
		t.Errorf("Malformed error envelope: %+v", resp)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Expected specific origin echoed, got %q", got)
	}
}

func TestCORSRejectedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Unexpected CORS header for rejected origin: %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/scrape", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Preflight should return 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Max-Age") == "" {
		t.Error("Preflight should set Access-Control-Max-Age")
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, false)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Fourth request in window should be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Different IP should have its own bucket")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond, false)
	defer rl.Close()

	if !rl.Allow("10.0.0.1") {
		t.Fatal("First request should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("Second request in window should be rejected")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Error("Request after window reset should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	m := NewRateLimitMiddleware(1, false)
	defer m.Close()
	handler := m.Handler()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("First request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
}

func TestAPIKey(t *testing.T) {
	cfg := &config.Config{APIKeyEnabled: true, APIKey: "secret-key"}
	handler := APIKey(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/scrape", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Missing key should get 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/scrape", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Valid key should pass, got %d", rec.Code)
	}

	// Health endpoint is exempt
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Health endpoint should bypass auth, got %d", rec.Code)
	}
}

func TestAPIKeyDisabled(t *testing.T) {
	handler := APIKey(&config.Config{APIKeyEnabled: false})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/scrape", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Disabled auth should pass requests, got %d", rec.Code)
	}
}

func TestMaskIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"192.168.1.42:8080", "192.168.1.0/24"},
		{"192.168.1.42", "192.168.1.0/24"},
		{"not-an-ip", "[redacted]"},
	}

	for _, tc := range cases {
		if got := maskIP(tc.in); got != tc.want {
			t.Errorf("maskIP(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := maskIP("[2001:db8:abcd:1234::1]:443"); !strings.HasSuffix(got, "/48") {
		t.Errorf("IPv6 mask should end in /48, got %q", got)
	}
}

func TestSanitizeURLForLogging(t *testing.T) {
	got := sanitizeURLForLogging("/scrape?api_key=secret&username=jane")
	if strings.Contains(got, "secret") {
		t.Errorf("Secret leaked into log URL: %q", got)
	}
	if !strings.Contains(got, "username=jane") {
		t.Errorf("Non-sensitive params should survive: %q", got)
	}

	plain := "/stats"
	if got := sanitizeURLForLogging(plain); got != plain {
		t.Errorf("URL without query should pass through, got %q", got)
	}
}

func TestLoggingCapturesStatus(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Status should pass through wrapper, got %d", rec.Code)
	}
}

func TestGetClientIPProxyTrust(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := getClientIP(req, false); got != "10.0.0.1" {
		t.Errorf("Untrusted proxy should use RemoteAddr, got %q", got)
	}
	if got := getClientIP(req, true); got != "203.0.113.7" {
		t.Errorf("Trusted proxy should use first forwarded IP, got %q", got)
	}
}
