package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/perchd/perchd/internal/config"
)

func TestParseCookies(t *testing.T) {
	blob := []byte(`[
		{"name": "auth_token", "value": "abc123", "domain": ".example.com", "expirationDate": 1893456000, "httpOnly": true, "secure": true},
		{"name": "ct0", "value": "def456", "domain": ".example.com", "path": "/api"}
	]`)

	cookies, err := ParseCookies(blob)
	if err != nil {
		t.Fatalf("Failed to parse cookies: %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("Expected 2 cookies, got %d", len(cookies))
	}

	first := cookies[0]
	if first.Name != "auth_token" || first.Value != "abc123" || first.Domain != ".example.com" {
		t.Errorf("Unexpected first cookie: %+v", first)
	}
	if first.Path != "/" {
		t.Errorf("Expected default path /, got %q", first.Path)
	}
	if !first.HTTPOnly || !first.Secure {
		t.Error("Expected httpOnly and secure flags preserved")
	}
	if first.Expires == 0 {
		t.Error("Expected expiration to be set")
	}
	if cookies[1].Path != "/api" {
		t.Errorf("Expected explicit path preserved, got %q", cookies[1].Path)
	}
}

func TestParseCookiesRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		blob string
	}{
		{"missing name", `[{"value": "v", "domain": ".example.com"}]`},
		{"missing domain", `[{"name": "n", "value": "v"}]`},
		{"not json", `auth_token=abc123`},
		{"not an array", `{"name": "n", "domain": "d"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseCookies([]byte(tc.blob)); err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadCookiesNoSource(t *testing.T) {
	cookies, err := LoadCookies(&config.Config{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cookies != nil {
		t.Errorf("Expected nil cookies with no source, got %d", len(cookies))
	}
}

func TestLoadCookiesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	blob := `[{"name": "auth_token", "value": "v", "domain": ".example.com"}]`
	if err := os.WriteFile(path, []byte(blob), 0o600); err != nil {
		t.Fatalf("Failed to write cookie file: %v", err)
	}

	cookies, err := LoadCookies(&config.Config{CookiesFile: path})
	if err != nil {
		t.Fatalf("Failed to load cookies: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Name != "auth_token" {
		t.Errorf("Unexpected cookies: %+v", cookies)
	}
}

func TestLoadCookiesInlineTakesPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	fileBlob := `[{"name": "from_file", "value": "v", "domain": ".example.com"}]`
	if err := os.WriteFile(path, []byte(fileBlob), 0o600); err != nil {
		t.Fatalf("Failed to write cookie file: %v", err)
	}

	cfg := &config.Config{
		CookiesJSON: `[{"name": "from_env", "value": "v", "domain": ".example.com"}]`,
		CookiesFile: path,
	}
	cookies, err := LoadCookies(cfg)
	if err != nil {
		t.Fatalf("Failed to load cookies: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Name != "from_env" {
		t.Errorf("Inline COOKIES should win over COOKIES_FILE, got %+v", cookies)
	}
}

func TestLoadCookiesMissingFile(t *testing.T) {
	cfg := &config.Config{CookiesFile: filepath.Join(t.TempDir(), "absent.json")}
	if _, err := LoadCookies(cfg); err == nil {
		t.Error("Expected error for missing cookie file")
	}
}
