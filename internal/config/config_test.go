package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HOST", "PORT", "HEADLESS", "BROWSER_PATH",
		"MAX_PAGES", "MAX_CONCURRENT_SCRAPES", "SLOT_WAIT_TIMEOUT",
		"HEALTH_CHECK_INTERVAL", "STALE_LEASE_AGE",
		"NAVIGATION_TIMEOUT", "SELECTOR_TIMEOUT", "FRESHNESS_WINDOW_DAYS",
		"DEFAULT_POSTS_PER_ACCOUNT", "ACCOUNT_DELAY", "BATCH_DELAY",
		"DEFAULT_BATCH_SIZE", "COOKIES", "COOKIES_FILE",
		"LOG_LEVEL", "RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "TRUST_PROXY",
		"CORS_ALLOWED_ORIGINS", "API_KEY_ENABLED", "API_KEY",
		"METRICS_ENABLED", "METRICS_PORT",
		"SELECTORS_PATH", "SELECTORS_HOT_RELOAD",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}

	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.BrowserPath != "" {
		t.Errorf("Expected empty BrowserPath by default, got %q", cfg.BrowserPath)
	}

	if cfg.MaxPages != 5 {
		t.Errorf("Expected default MaxPages 5, got %d", cfg.MaxPages)
	}
	if cfg.MaxConcurrentScrapes != 3 {
		t.Errorf("Expected default MaxConcurrentScrapes 3, got %d", cfg.MaxConcurrentScrapes)
	}
	if cfg.SlotWaitTimeout != 30*time.Second {
		t.Errorf("Expected default slot wait 30s, got %v", cfg.SlotWaitTimeout)
	}
	if cfg.HealthCheckInterval != 5*time.Minute {
		t.Errorf("Expected default health interval 5m, got %v", cfg.HealthCheckInterval)
	}
	if cfg.StaleLeaseAge != 10*time.Minute {
		t.Errorf("Expected default stale lease age 10m, got %v", cfg.StaleLeaseAge)
	}

	if cfg.NavigationTimeout != 60*time.Second {
		t.Errorf("Expected default navigation timeout 60s, got %v", cfg.NavigationTimeout)
	}
	if cfg.DefaultPostsPerAccount != 20 {
		t.Errorf("Expected default posts per account 20, got %d", cfg.DefaultPostsPerAccount)
	}
	if cfg.DefaultBatchSize != 5 {
		t.Errorf("Expected default batch size 5, got %d", cfg.DefaultBatchSize)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}

	if !cfg.RateLimitEnabled {
		t.Error("Expected RateLimitEnabled to be true by default")
	}
	if cfg.TrustProxy {
		t.Error("Expected TrustProxy to be false by default")
	}
	if cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be false by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)

	os.Setenv("HOST", "0.0.0.0")
	os.Setenv("PORT", "9000")
	os.Setenv("MAX_PAGES", "8")
	os.Setenv("MAX_CONCURRENT_SCRAPES", "4")
	os.Setenv("SLOT_WAIT_TIMEOUT", "45s")
	os.Setenv("HEADLESS", "false")
	os.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	defer clearEnv(t)

	cfg := Load()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %q", cfg.Host)
	}
	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Port)
	}
	if cfg.MaxPages != 8 {
		t.Errorf("Expected MaxPages 8, got %d", cfg.MaxPages)
	}
	if cfg.MaxConcurrentScrapes != 4 {
		t.Errorf("Expected MaxConcurrentScrapes 4, got %d", cfg.MaxConcurrentScrapes)
	}
	if cfg.SlotWaitTimeout != 45*time.Second {
		t.Errorf("Expected slot wait 45s, got %v", cfg.SlotWaitTimeout)
	}
	if cfg.Headless {
		t.Error("Expected Headless false")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://a.example" {
		t.Errorf("Expected 2 trimmed origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestValidateCapsOutOfRangeValues(t *testing.T) {
	cfg := &Config{
		Port:                   70000,
		MaxPages:               100,
		MaxConcurrentScrapes:   50,
		SlotWaitTimeout:        10 * time.Millisecond,
		HealthCheckInterval:    time.Second,
		StaleLeaseAge:          time.Second,
		NavigationTimeout:      time.Second,
		SelectorTimeout:        time.Millisecond,
		FreshnessWindowDays:    500,
		DefaultPostsPerAccount: 0,
		AccountDelay:           -time.Second,
		BatchDelay:             -time.Second,
		DefaultBatchSize:       99,
		LogLevel:               "verbose",
		RateLimitEnabled:       true,
		RateLimitRPM:           999999,
	}

	cfg.Validate()

	if cfg.Port != 8080 {
		t.Errorf("Expected port reset to 8080, got %d", cfg.Port)
	}
	if cfg.MaxPages != 20 {
		t.Errorf("Expected MaxPages capped to 20, got %d", cfg.MaxPages)
	}
	if cfg.MaxConcurrentScrapes != 10 {
		t.Errorf("Expected MaxConcurrentScrapes capped to 10, got %d", cfg.MaxConcurrentScrapes)
	}
	if cfg.SlotWaitTimeout != time.Second {
		t.Errorf("Expected SlotWaitTimeout raised to 1s, got %v", cfg.SlotWaitTimeout)
	}
	if cfg.HealthCheckInterval != 10*time.Second {
		t.Errorf("Expected HealthCheckInterval raised to 10s, got %v", cfg.HealthCheckInterval)
	}
	if cfg.StaleLeaseAge != time.Minute {
		t.Errorf("Expected StaleLeaseAge raised to 1m, got %v", cfg.StaleLeaseAge)
	}
	if cfg.NavigationTimeout != 5*time.Second {
		t.Errorf("Expected NavigationTimeout raised to 5s, got %v", cfg.NavigationTimeout)
	}
	if cfg.FreshnessWindowDays != 90 {
		t.Errorf("Expected FreshnessWindowDays capped to 90, got %d", cfg.FreshnessWindowDays)
	}
	if cfg.DefaultPostsPerAccount != 20 {
		t.Errorf("Expected DefaultPostsPerAccount reset to 20, got %d", cfg.DefaultPostsPerAccount)
	}
	if cfg.AccountDelay != 0 || cfg.BatchDelay != 0 {
		t.Error("Expected negative delays clamped to zero")
	}
	if cfg.DefaultBatchSize != 5 {
		t.Errorf("Expected DefaultBatchSize reset to 5, got %d", cfg.DefaultBatchSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level reset to 'info', got %q", cfg.LogLevel)
	}
	if cfg.RateLimitRPM != 10000 {
		t.Errorf("Expected RateLimitRPM capped to 10000, got %d", cfg.RateLimitRPM)
	}
}

func TestValidatePathTraversal(t *testing.T) {
	cfg := &Config{
		Port:                   8080,
		MaxPages:               5,
		MaxConcurrentScrapes:   3,
		SlotWaitTimeout:        30 * time.Second,
		HealthCheckInterval:    5 * time.Minute,
		StaleLeaseAge:          10 * time.Minute,
		NavigationTimeout:      60 * time.Second,
		SelectorTimeout:        15 * time.Second,
		FreshnessWindowDays:    7,
		DefaultPostsPerAccount: 20,
		DefaultBatchSize:       5,
		LogLevel:               "info",
		BrowserPath:            "/opt/../etc/passwd",
		CookiesFile:            "../cookies.json",
		SelectorsPath:          "../../selectors.yaml",
	}

	cfg.Validate()

	if cfg.BrowserPath != "" {
		t.Errorf("Expected BrowserPath cleared, got %q", cfg.BrowserPath)
	}
	if cfg.CookiesFile != "" {
		t.Errorf("Expected CookiesFile cleared, got %q", cfg.CookiesFile)
	}
	if cfg.SelectorsPath != "" {
		t.Errorf("Expected SelectorsPath cleared, got %q", cfg.SelectorsPath)
	}
}

func TestValidateDisablesConflictingMetricsPort(t *testing.T) {
	cfg := &Config{
		Port:                   9090,
		MaxPages:               5,
		MaxConcurrentScrapes:   3,
		SlotWaitTimeout:        30 * time.Second,
		HealthCheckInterval:    5 * time.Minute,
		StaleLeaseAge:          10 * time.Minute,
		NavigationTimeout:      60 * time.Second,
		SelectorTimeout:        15 * time.Second,
		FreshnessWindowDays:    7,
		DefaultPostsPerAccount: 20,
		DefaultBatchSize:       5,
		LogLevel:               "info",
		MetricsEnabled:         true,
		MetricsPort:            9090,
	}

	cfg.Validate()

	if cfg.MetricsEnabled {
		t.Error("Expected metrics disabled when ports conflict")
	}
}

func TestValidateDisablesHotReloadWithoutPath(t *testing.T) {
	cfg := &Config{
		Port:                   8080,
		MaxPages:               5,
		MaxConcurrentScrapes:   3,
		SlotWaitTimeout:        30 * time.Second,
		HealthCheckInterval:    5 * time.Minute,
		StaleLeaseAge:          10 * time.Minute,
		NavigationTimeout:      60 * time.Second,
		SelectorTimeout:        15 * time.Second,
		FreshnessWindowDays:    7,
		DefaultPostsPerAccount: 20,
		DefaultBatchSize:       5,
		LogLevel:               "info",
		SelectorsHotReload:     true,
	}

	cfg.Validate()

	if cfg.SelectorsHotReload {
		t.Error("Expected hot-reload disabled without a selectors path")
	}
}

func TestFreshnessWindow(t *testing.T) {
	cfg := &Config{FreshnessWindowDays: 7}
	if got := cfg.FreshnessWindow(); got != 7*24*time.Hour {
		t.Errorf("Expected 168h freshness window, got %v", got)
	}
}

func TestHasCookieSource(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"none", Config{}, false},
		{"inline", Config{CookiesJSON: `[]`}, true},
		{"file", Config{CookiesFile: "/tmp/cookies.json"}, true},
		{"both", Config{CookiesJSON: `[]`, CookiesFile: "/tmp/cookies.json"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.HasCookieSource(); got != tt.want {
				t.Errorf("HasCookieSource() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_STRING", "hello")
	os.Setenv("TEST_INT", "42")
	os.Setenv("TEST_INT_BAD", "nope")
	os.Setenv("TEST_BOOL", "true")
	os.Setenv("TEST_DURATION", "90s")
	os.Setenv("TEST_DURATION_BAD", "soon")
	defer func() {
		for _, k := range []string{"TEST_STRING", "TEST_INT", "TEST_INT_BAD", "TEST_BOOL", "TEST_DURATION", "TEST_DURATION_BAD"} {
			os.Unsetenv(k)
		}
	}()

	if got := getEnvString("TEST_STRING", "def"); got != "hello" {
		t.Errorf("getEnvString = %q", got)
	}
	if got := getEnvString("TEST_MISSING", "def"); got != "def" {
		t.Errorf("getEnvString default = %q", got)
	}
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("TEST_INT_BAD", 1); got != 1 {
		t.Errorf("getEnvInt bad value = %d, want default", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool = false, want true")
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}
	if got := getEnvDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Errorf("getEnvDuration bad value = %v, want default", got)
	}
}
