// Package stats provides per-account statistics tracking for scrape outcomes.
package stats

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perchd/perchd/internal/types"
)

// maxAccounts is the maximum number of accounts to track before LRU eviction.
const maxAccounts = 10000

// evictionBatchSize is the number of accounts to evict at once to reduce
// eviction overhead.
const evictionBatchSize = 100

// AccountStats tracks scrape outcomes for a single account.
type AccountStats struct {
	ScrapeCount    int64
	SuccessCount   int64
	ErrorCount     int64
	RateLimitCount int64
	AuthWallCount  int64

	totalLatencyMs int64
	totalPosts     int64

	LastScrapeTime  time.Time
	LastSuccessTime time.Time
	LastRateLimited time.Time
	lastAccess      time.Time // For LRU eviction
}

// AccountStatsJSON is the JSON-serializable representation of AccountStats.
type AccountStatsJSON struct {
	ScrapeCount     int64     `json:"scrape_count"`
	SuccessCount    int64     `json:"success_count"`
	ErrorCount      int64     `json:"error_count"`
	RateLimitCount  int64     `json:"rate_limit_count,omitempty"`
	AuthWallCount   int64     `json:"auth_wall_count,omitempty"`
	AvgLatencyMs    int64     `json:"avg_latency_ms"`
	AvgPosts        int64     `json:"avg_posts"`
	SuccessRate     float64   `json:"success_rate"`
	LastScrapeTime  time.Time `json:"last_scrape_time,omitempty"`
	LastSuccessTime time.Time `json:"last_success_time,omitempty"`
	LastRateLimited time.Time `json:"last_rate_limited,omitempty"`
}

// Registry tracks scrape statistics across accounts with LRU eviction.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*AccountStats
}

// NewRegistry creates an empty stats registry.
func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[string]*AccountStats),
	}
}

// RecordSuccess records a completed scrape for an account.
func (r *Registry) RecordSuccess(account string, posts int, duration time.Duration) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getLocked(account, now)
	s.ScrapeCount++
	s.SuccessCount++
	s.totalLatencyMs += duration.Milliseconds()
	s.totalPosts += int64(posts)
	s.LastScrapeTime = now
	s.LastSuccessTime = now
}

// RecordError records a failed scrape for an account, classifying
// rate-limit and auth-wall outcomes separately.
func (r *Registry) RecordError(account string, err error, duration time.Duration) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getLocked(account, now)
	s.ScrapeCount++
	s.ErrorCount++
	s.totalLatencyMs += duration.Milliseconds()
	s.LastScrapeTime = now

	switch {
	case errors.Is(err, types.ErrRateLimited):
		s.RateLimitCount++
		s.LastRateLimited = now
	case errors.Is(err, types.ErrAuthWall):
		s.AuthWallCount++
	}
}

// getLocked returns the stats entry for an account, creating it and
// evicting stale entries as needed. Must be called with r.mu held.
func (r *Registry) getLocked(account string, now time.Time) *AccountStats {
	s, ok := r.accounts[account]
	if !ok {
		if len(r.accounts) >= maxAccounts {
			r.evictLocked()
		}
		s = &AccountStats{}
		r.accounts[account] = s
	}
	s.lastAccess = now
	return s
}

// evictLocked removes the least recently used accounts in one batch.
// Must be called with r.mu held.
func (r *Registry) evictLocked() {
	type entry struct {
		account string
		access  time.Time
	}
	entries := make([]entry, 0, len(r.accounts))
	for account, s := range r.accounts {
		entries = append(entries, entry{account, s.lastAccess})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].access.Before(entries[j].access)
	})

	n := evictionBatchSize
	if n > len(entries) {
		n = len(entries)
	}
	for _, e := range entries[:n] {
		delete(r.accounts, e.account)
	}

	log.Debug().Int("evicted", n).Msg("Evicted least recently used account stats")
}

// Get returns a snapshot of one account's statistics.
func (r *Registry) Get(account string) (AccountStatsJSON, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.accounts[account]
	if !ok {
		return AccountStatsJSON{}, false
	}
	return s.toJSON(), true
}

// Snapshot returns the statistics of all tracked accounts.
func (r *Registry) Snapshot() map[string]AccountStatsJSON {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]AccountStatsJSON, len(r.accounts))
	for account, s := range r.accounts {
		out[account] = s.toJSON()
	}
	return out
}

// Len returns the number of tracked accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

func (s *AccountStats) toJSON() AccountStatsJSON {
	out := AccountStatsJSON{
		ScrapeCount:     s.ScrapeCount,
		SuccessCount:    s.SuccessCount,
		ErrorCount:      s.ErrorCount,
		RateLimitCount:  s.RateLimitCount,
		AuthWallCount:   s.AuthWallCount,
		LastScrapeTime:  s.LastScrapeTime,
		LastSuccessTime: s.LastSuccessTime,
		LastRateLimited: s.LastRateLimited,
	}
	if s.ScrapeCount > 0 {
		out.AvgLatencyMs = s.totalLatencyMs / s.ScrapeCount
		out.SuccessRate = float64(s.SuccessCount) / float64(s.ScrapeCount)
	}
	if s.SuccessCount > 0 {
		out.AvgPosts = s.totalPosts / s.SuccessCount
	}
	return out
}
