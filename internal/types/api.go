package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Request validation limits.
const (
	MaxAccountsPerRequest = 10
	MaxAccountsPerBatch   = 50
	MaxAccountLength      = 64
	MaxURLLength          = 2048
	MaxPostsPerAccount    = 100
	MaxBatchSize          = 10
)

// Freshness classifications for extracted posts.
const (
	FreshnessFresh   = "fresh"
	FreshnessStale   = "stale"
	FreshnessUnknown = "unknown"
)

// PostRecord is one extracted post from a profile timeline.
// ID and Link are always consistent: the link ends in /status/<id>.
type PostRecord struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	Link        string    `json:"link"`
	Likes       int       `json:"likes"`
	Reposts     int       `json:"reposts"`
	Replies     int       `json:"replies"`
	Timestamp   time.Time `json:"timestamp"`
	Freshness   string    `json:"freshness"`
	Pinned      bool      `json:"pinned"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// ScrapeRequest is the body of POST /scrape (single account).
// Exactly one of URL or Username must be provided.
type ScrapeRequest struct {
	URL             string `json:"url,omitempty"`
	Username        string `json:"username,omitempty"`
	PostsPerAccount int    `json:"tweetsPerAccount,omitempty"`
}

// MultiScrapeRequest is the body of POST /scrape-multiple.
type MultiScrapeRequest struct {
	Accounts        []string `json:"accounts"`
	PostsPerAccount int      `json:"tweetsPerAccount,omitempty"`
}

// BatchScrapeRequest is the body of POST /scrape-batch.
type BatchScrapeRequest struct {
	Accounts        []string `json:"accounts"`
	PostsPerAccount int      `json:"tweetsPerAccount,omitempty"`
	BatchSize       int      `json:"batchSize,omitempty"`
}

// AccountResult is the per-account entry of a multi/batch response.
// A failed account carries Error and Suggestion; the request as a whole
// still succeeds (partial success).
type AccountResult struct {
	Account    string       `json:"account"`
	Success    bool         `json:"success"`
	Posts      []PostRecord `json:"posts,omitempty"`
	PostCount  int          `json:"post_count"`
	Error      string       `json:"error,omitempty"`
	Suggestion string       `json:"suggestion,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

// ScrapeResponse is the envelope for all scrape endpoints.
type ScrapeResponse struct {
	Success    bool            `json:"success"`
	Timestamp  time.Time       `json:"timestamp"`
	Results    []AccountResult `json:"results,omitempty"`
	Error      string          `json:"error,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// SingleScrapeResponse reshapes a one-account result for POST /scrape.
type SingleScrapeResponse struct {
	Success    bool         `json:"success"`
	Timestamp  time.Time    `json:"timestamp"`
	Account    string       `json:"account,omitempty"`
	Posts      []PostRecord `json:"posts,omitempty"`
	PostCount  int          `json:"post_count"`
	Error      string       `json:"error,omitempty"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// PoolSnapshot is the pool stats shape returned by GET / and GET /stats.
type PoolSnapshot struct {
	InstanceID           string    `json:"instance_id"`
	BrowserConnected     bool      `json:"browser_connected"`
	ActivePages          int       `json:"active_pages"`
	MaxPages             int       `json:"max_pages"`
	ActiveScrapes        int       `json:"active_scrapes"`
	MaxConcurrentScrapes int       `json:"max_concurrent_scrapes"`
	CookiesLoaded        bool      `json:"cookies_loaded"`
	LastHealthCheck      time.Time `json:"last_health_check"`
}

// NormalizeAccount strips a profile URL or @-prefixed handle down to the
// bare account handle. Returns an error for anything that does not look
// like a handle.
func NormalizeAccount(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("account is empty")
	}
	if len(s) > MaxURLLength {
		return "", fmt.Errorf("account exceeds maximum length of %d", MaxURLLength)
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid profile url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("profile url scheme must be http or https, got: %s", u.Scheme)
		}
		s = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimPrefix(s, "@")

	if s == "" {
		return "", fmt.Errorf("could not derive an account handle from %q", raw)
	}
	if len(s) > MaxAccountLength {
		return "", fmt.Errorf("account handle exceeds maximum length of %d", MaxAccountLength)
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return "", fmt.Errorf("account handle contains invalid character %q", r)
		}
	}
	return s, nil
}

// Validate checks a single-scrape request.
func (r *ScrapeRequest) Validate() error {
	if r.URL == "" && r.Username == "" {
		return fmt.Errorf("%w: url or username is required", ErrInvalidRequest)
	}
	if r.URL != "" && r.Username != "" {
		return fmt.Errorf("%w: provide url or username, not both", ErrInvalidRequest)
	}
	if r.PostsPerAccount < 0 || r.PostsPerAccount > MaxPostsPerAccount {
		return fmt.Errorf("%w: tweetsPerAccount must be between 0 and %d", ErrInvalidRequest, MaxPostsPerAccount)
	}
	return nil
}

// Validate checks a multi-scrape request.
func (r *MultiScrapeRequest) Validate() error {
	if err := validateAccounts(r.Accounts, MaxAccountsPerRequest); err != nil {
		return err
	}
	if r.PostsPerAccount < 0 || r.PostsPerAccount > MaxPostsPerAccount {
		return fmt.Errorf("%w: tweetsPerAccount must be between 0 and %d", ErrInvalidRequest, MaxPostsPerAccount)
	}
	return nil
}

// Validate checks a batch-scrape request.
func (r *BatchScrapeRequest) Validate() error {
	if err := validateAccounts(r.Accounts, MaxAccountsPerBatch); err != nil {
		return err
	}
	if r.PostsPerAccount < 0 || r.PostsPerAccount > MaxPostsPerAccount {
		return fmt.Errorf("%w: tweetsPerAccount must be between 0 and %d", ErrInvalidRequest, MaxPostsPerAccount)
	}
	if r.BatchSize < 0 || r.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batchSize must be between 0 and %d", ErrInvalidRequest, MaxBatchSize)
	}
	return nil
}

func validateAccounts(accounts []string, limit int) error {
	if len(accounts) == 0 {
		return ErrNoAccounts
	}
	if len(accounts) > limit {
		return fmt.Errorf("%w: at most %d accounts per request", ErrInvalidRequest, limit)
	}
	for i, a := range accounts {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: accounts[%d] is empty", ErrInvalidRequest, i)
		}
		if len(a) > MaxURLLength {
			return fmt.Errorf("%w: accounts[%d] exceeds maximum length", ErrInvalidRequest, i)
		}
	}
	return nil
}
