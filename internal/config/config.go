// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxMaxPages             = 20
	maxConcurrentScrapesCap = 10
	maxSlotWaitTimeout      = 5 * time.Minute
	maxNavigationTimeout    = 5 * time.Minute
	maxFreshnessWindowDays  = 90
	maxRateLimitRPM         = 10000
	minAPIKeyLength         = 16
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// Pool settings
	MaxPages             int
	MaxConcurrentScrapes int
	SlotWaitTimeout      time.Duration
	HealthCheckInterval  time.Duration
	StaleLeaseAge        time.Duration

	// Scrape settings
	NavigationTimeout      time.Duration
	SelectorTimeout        time.Duration
	FreshnessWindowDays    int
	DefaultPostsPerAccount int
	AccountDelay           time.Duration
	BatchDelay             time.Duration
	DefaultBatchSize       int

	// Authentication cookies (JSON array of {name,value,domain,...})
	CookiesJSON string
	CookiesFile string

	// Logging
	LogLevel string

	// Security
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxy         bool
	CORSAllowedOrigins []string
	APIKeyEnabled      bool
	APIKey             string

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors
}

// Load loads configuration from environment variables.
// A .env file in the working directory is honored when present.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	return &Config{
		// Server - default to localhost for security (prevents accidental exposure)
		// Set HOST=0.0.0.0 explicitly to bind to all interfaces
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8080),

		// Browser
		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		// Pool
		MaxPages:             getEnvInt("MAX_PAGES", 5),
		MaxConcurrentScrapes: getEnvInt("MAX_CONCURRENT_SCRAPES", 3),
		SlotWaitTimeout:      getEnvDuration("SLOT_WAIT_TIMEOUT", 30*time.Second),
		HealthCheckInterval:  getEnvDuration("HEALTH_CHECK_INTERVAL", 5*time.Minute),
		StaleLeaseAge:        getEnvDuration("STALE_LEASE_AGE", 10*time.Minute),

		// Scraping
		NavigationTimeout:      getEnvDuration("NAVIGATION_TIMEOUT", 60*time.Second),
		SelectorTimeout:        getEnvDuration("SELECTOR_TIMEOUT", 15*time.Second),
		FreshnessWindowDays:    getEnvInt("FRESHNESS_WINDOW_DAYS", 7),
		DefaultPostsPerAccount: getEnvInt("DEFAULT_POSTS_PER_ACCOUNT", 20),
		AccountDelay:           getEnvDuration("ACCOUNT_DELAY", 2*time.Second),
		BatchDelay:             getEnvDuration("BATCH_DELAY", 5*time.Second),
		DefaultBatchSize:       getEnvInt("DEFAULT_BATCH_SIZE", 5),

		// Cookies
		CookiesJSON: getEnvString("COOKIES", ""),
		CookiesFile: getEnvString("COOKIES_FILE", ""),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),

		// Security
		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		APIKeyEnabled:      getEnvBool("API_KEY_ENABLED", false),
		APIKey:             getEnvString("API_KEY", ""),

		// Metrics
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnvInt("METRICS_PORT", 9090),

		// Selectors
		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// FreshnessWindow returns the freshness window as a duration.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowDays) * 24 * time.Hour
}

// HasCookieSource returns true if an authentication cookie source is configured.
func (c *Config) HasCookieSource() bool {
	return c.CookiesJSON != "" || c.CookiesFile != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8080")
		c.Port = 8080
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	// Page map bound
	if c.MaxPages < 1 {
		log.Warn().Int("max_pages", c.MaxPages).Msg("Invalid MAX_PAGES, using default 5")
		c.MaxPages = 5
	} else if c.MaxPages > maxMaxPages {
		log.Warn().
			Int("max_pages", c.MaxPages).
			Int("max", maxMaxPages).
			Msg("MAX_PAGES too large, capping to maximum")
		c.MaxPages = maxMaxPages
	}

	// Concurrency ceiling
	if c.MaxConcurrentScrapes < 1 {
		log.Warn().Int("max_scrapes", c.MaxConcurrentScrapes).Msg("Invalid MAX_CONCURRENT_SCRAPES, using default 3")
		c.MaxConcurrentScrapes = 3
	} else if c.MaxConcurrentScrapes > maxConcurrentScrapesCap {
		log.Warn().
			Int("max_scrapes", c.MaxConcurrentScrapes).
			Int("max", maxConcurrentScrapesCap).
			Msg("MAX_CONCURRENT_SCRAPES too large, capping to maximum")
		c.MaxConcurrentScrapes = maxConcurrentScrapesCap
	}

	// Slot wait bound (minimum 1 second)
	if c.SlotWaitTimeout < time.Second {
		log.Warn().Dur("timeout", c.SlotWaitTimeout).Msg("SLOT_WAIT_TIMEOUT too short, using minimum 1s")
		c.SlotWaitTimeout = time.Second
	} else if c.SlotWaitTimeout > maxSlotWaitTimeout {
		log.Warn().
			Dur("timeout", c.SlotWaitTimeout).
			Dur("max", maxSlotWaitTimeout).
			Msg("SLOT_WAIT_TIMEOUT too long, capping to maximum")
		c.SlotWaitTimeout = maxSlotWaitTimeout
	}

	// Health check interval (minimum 10s so the sweep cannot thrash)
	const minHealthInterval = 10 * time.Second
	if c.HealthCheckInterval < minHealthInterval {
		log.Warn().
			Dur("interval", c.HealthCheckInterval).
			Dur("min", minHealthInterval).
			Msg("HEALTH_CHECK_INTERVAL too short, using minimum")
		c.HealthCheckInterval = minHealthInterval
	}

	// Stale lease age must exceed the health interval for the sweep to matter
	if c.StaleLeaseAge < time.Minute {
		log.Warn().Dur("age", c.StaleLeaseAge).Msg("STALE_LEASE_AGE too short, using minimum 1m")
		c.StaleLeaseAge = time.Minute
	}

	// Navigation timeout
	if c.NavigationTimeout < 5*time.Second {
		log.Warn().Dur("timeout", c.NavigationTimeout).Msg("NAVIGATION_TIMEOUT too short, using minimum 5s")
		c.NavigationTimeout = 5 * time.Second
	} else if c.NavigationTimeout > maxNavigationTimeout {
		log.Warn().
			Dur("timeout", c.NavigationTimeout).
			Dur("max", maxNavigationTimeout).
			Msg("NAVIGATION_TIMEOUT too long, capping to maximum")
		c.NavigationTimeout = maxNavigationTimeout
	}

	// Selector wait
	if c.SelectorTimeout < time.Second {
		log.Warn().Dur("timeout", c.SelectorTimeout).Msg("SELECTOR_TIMEOUT too short, using minimum 1s")
		c.SelectorTimeout = time.Second
	}

	// Freshness window
	if c.FreshnessWindowDays < 1 {
		log.Warn().Int("days", c.FreshnessWindowDays).Msg("Invalid FRESHNESS_WINDOW_DAYS, using default 7")
		c.FreshnessWindowDays = 7
	} else if c.FreshnessWindowDays > maxFreshnessWindowDays {
		log.Warn().
			Int("days", c.FreshnessWindowDays).
			Int("max", maxFreshnessWindowDays).
			Msg("FRESHNESS_WINDOW_DAYS too large, capping to maximum")
		c.FreshnessWindowDays = maxFreshnessWindowDays
	}

	// Per-account post count default
	if c.DefaultPostsPerAccount < 1 || c.DefaultPostsPerAccount > 100 {
		log.Warn().Int("posts", c.DefaultPostsPerAccount).Msg("Invalid DEFAULT_POSTS_PER_ACCOUNT, using default 20")
		c.DefaultPostsPerAccount = 20
	}

	// Inter-account / inter-batch delays
	if c.AccountDelay < 0 {
		c.AccountDelay = 0
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.DefaultBatchSize < 1 || c.DefaultBatchSize > 10 {
		log.Warn().Int("batch_size", c.DefaultBatchSize).Msg("Invalid DEFAULT_BATCH_SIZE, using default 5")
		c.DefaultBatchSize = 5
	}

	// Cookies file validation
	if c.CookiesFile != "" {
		if strings.Contains(c.CookiesFile, "..") {
			log.Error().
				Str("path", c.CookiesFile).
				Msg("CookiesFile contains path traversal sequence (..), ignoring")
			c.CookiesFile = ""
		} else if _, err := os.Stat(c.CookiesFile); os.IsNotExist(err) {
			log.Warn().Str("path", c.CookiesFile).Msg("CookiesFile does not exist")
		}
	}
	if c.CookiesJSON != "" && c.CookiesFile != "" {
		log.Warn().Msg("Both COOKIES and COOKIES_FILE set - COOKIES takes priority")
	}

	// Rate limit validation with upper bound
	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().
				Int("rpm", c.RateLimitRPM).
				Int("max", maxRateLimitRPM).
				Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	// API key validation with minimum length enforcement
	if c.APIKeyEnabled {
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("min_required", minAPIKeyLength).
				Msg("API_KEY is too short for adequate security")
		}
	}

	// Metrics port conflict
	if c.MetricsEnabled && c.MetricsPort == c.Port {
		log.Error().Int("port", c.MetricsPort).Msg("METRICS_PORT conflicts with PORT, disabling metrics server")
		c.MetricsEnabled = false
	}

	// Selectors path validation
	if c.SelectorsPath != "" {
		if strings.Contains(c.SelectorsPath, "..") {
			log.Error().
				Str("path", c.SelectorsPath).
				Msg("SelectorsPath contains path traversal sequence (..), ignoring")
			c.SelectorsPath = ""
		} else if c.SelectorsHotReload {
			if _, err := os.Stat(c.SelectorsPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.SelectorsPath).
					Msg("SelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}
	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}

	// CORS security warning
	if len(c.CORSAllowedOrigins) == 0 {
		log.Debug().Msg("CORS_ALLOWED_ORIGINS not set - cross-origin requests will be rejected")
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the environment variable parsed as int or a default.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return def
	}
	return n
}

// getEnvBool returns the environment variable parsed as bool or a default.
func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean in environment, using default")
		return def
	}
	return b
}

// getEnvDuration returns the environment variable parsed as a duration or a default.
// Accepts Go duration syntax ("30s", "5m") or a plain number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration in environment, using default")
	return def
}

// getEnvStringSlice returns the environment variable split on commas or a default.
func getEnvStringSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
