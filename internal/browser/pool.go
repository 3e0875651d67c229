// Package browser provides the pooled headless-browser driver.
// The pool owns one lazily-launched browser process and leases pages (tabs)
// to concurrent scrape operations. Browser startup dominates the cost of a
// scrape, so the process is reused across requests and only relaunched when
// it crashes or fails a health check.
//
// Lock discipline: mu guards all bookkeeping (lease map, active-scrape set,
// browser handle). It is never held across browser I/O; every entry point
// performs its state mutation atomically immediately before or after the
// slow call it guards.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/perchd/perchd/internal/chrome"
	"github.com/perchd/perchd/internal/config"
	"github.com/perchd/perchd/internal/types"
)

// Polling intervals for the two bounded waits. The initialization wait is
// short because launch completion is quick to observe; the slot wait is
// coarser because page turnover is measured in seconds.
const (
	initPollInterval = 100 * time.Millisecond
	slotPollInterval = time.Second
)

// Lease represents one checked-out browser tab. Exactly one scrape
// operation owns a lease at a time; leases are never shared.
type Lease struct {
	ID          string
	OperationID string
	Page        *rod.Page
	CreatedAt   time.Time
}

// PoolStats holds monotonic counters for monitoring.
type PoolStats struct {
	Acquired    atomic.Int64
	Released    atomic.Int64
	Rejected    atomic.Int64 // admission-gate fast fails
	Exhausted   atomic.Int64 // slot waits that timed out
	Reclaimed   atomic.Int64 // stale leases force-released by the sweep
	Restarts    atomic.Int64
	Disconnects atomic.Int64
}

// Pool manages a single browser process and a bounded set of leased pages.
//
// Invariants (hold under any interleaving):
//   - len(leases) <= MaxPages
//   - len(activeScrapes) <= MaxConcurrentScrapes
//   - browser == nil implies both maps are empty
//   - instanceID changes only via Restart, never during normal operation
type Pool struct {
	mu              sync.Mutex
	browser         *rod.Browser
	browserLauncher *launcher.Launcher
	initializing    bool
	leases          map[string]*Lease
	activeScrapes   map[string]struct{}
	cookiesLoaded   bool
	lastHealth      time.Time
	instanceID      string

	cookies []*proto.NetworkCookieParam
	config  *config.Config

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	stats PoolStats
}

// NewPool creates a browser pool. The browser itself is launched lazily on
// the first AcquirePage or explicit Initialize call. A background routine
// health-checks the browser on the configured interval.
func NewPool(cfg *config.Config) (*Pool, error) {
	cookies, err := LoadCookies(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		leases:        make(map[string]*Lease),
		activeScrapes: make(map[string]struct{}),
		instanceID:    NewInstanceID(),
		cookies:       cookies,
		config:        cfg,
		stopCh:        make(chan struct{}),
	}

	p.wg.Add(1)
	go p.healthCheckRoutine()

	log.Info().
		Str("instance_id", p.instanceID).
		Int("max_pages", cfg.MaxPages).
		Int("max_concurrent_scrapes", cfg.MaxConcurrentScrapes).
		Bool("cookies_configured", len(cookies) > 0).
		Msg("Browser pool created")

	return p, nil
}

// Initialize returns a connected browser, launching one if needed.
//
// Guarantees: no more than one browser process is ever launched concurrently
// by this pool. Callers arriving during an in-flight launch poll until it
// completes. A handle that turns out to be disconnected is discarded and a
// relaunch is attempted. Launch failures propagate and leave the pool
// unstarted.
func (p *Pool) Initialize(ctx context.Context) (*rod.Browser, error) {
	for {
		if p.closed.Load() {
			return nil, types.ErrPoolClosed
		}

		p.mu.Lock()
		if b := p.browser; b != nil {
			p.mu.Unlock()
			// Liveness probe outside the lock; the reuse path is the
			// whole point of the pool.
			if _, err := b.Version(); err == nil {
				return b, nil
			}
			log.Warn().Msg("Browser handle unresponsive, discarding and relaunching")
			p.resetState(b)
			continue
		}

		if p.initializing {
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
			case <-p.stopCh:
				return nil, types.ErrPoolClosed
			case <-time.After(initPollInterval):
			}
			continue
		}

		p.initializing = true
		instanceID := p.instanceID
		p.mu.Unlock()

		browser, l, err := p.launchBrowser(ctx, instanceID)

		p.mu.Lock()
		p.initializing = false
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.browser = browser
		p.browserLauncher = l
		p.lastHealth = time.Now()
		p.mu.Unlock()

		p.wg.Add(1)
		go p.watchDisconnect(browser)

		log.Info().Str("instance_id", instanceID).Msg("Browser launched and connected")
		return browser, nil
	}
}

// launchBrowser starts a new browser process with a fresh per-instance
// profile directory. Distinct profile dirs avoid lock contention between
// overlapping pool instances; stale dirs are left to the container lifecycle.
func (p *Pool) launchBrowser(ctx context.Context, instanceID string) (*rod.Browser, *launcher.Launcher, error) {
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
	default:
	}

	path, err := chrome.Find(p.config.BrowserPath)
	if err != nil {
		// rod's launcher falls back to its own managed browser download.
		log.Warn().Err(err).Msg("No system browser found, deferring to launcher default")
	}

	l := launcher.New()
	if path != "" {
		l = l.Bin(path)
	}
	if p.config.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation").
		Set("accept-lang", "en-US,en;q=0.9").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-networking").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("window-size", "1920,1080")

	profileDir := filepath.Join(os.TempDir(), "perchd-profile-"+instanceID)
	l = l.UserDataDir(profileDir)

	url, err := l.Launch()
	if err != nil {
		return nil, nil, types.NewLaunchError(err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, types.NewLaunchError(err)
	}

	log.Debug().
		Str("control_url", url).
		Str("profile_dir", profileDir).
		Msg("Browser process started")
	return browser, l, nil
}

// watchDisconnect resets the pool when the browser's event stream closes,
// which happens when the process dies or the CDP connection drops.
func (p *Pool) watchDisconnect(b *rod.Browser) {
	defer p.wg.Done()

	events := b.Event()
	for {
		select {
		case _, ok := <-events:
			if !ok {
				if p.closed.Load() {
					return
				}
				log.Warn().Msg("Browser disconnected, purging pool state")
				p.stats.Disconnects.Add(1)
				p.resetState(b)
				return
			}
		case <-p.stopCh:
			return
		}
	}
}

// resetState clears all bookkeeping if b is still the current browser.
// The pointer comparison makes the reset idempotent: a disconnect event and
// a failed health check may both fire for the same handle. A nil handle
// never matches; there is nothing to reset for a browser that never ran.
func (p *Pool) resetState(b *rod.Browser) {
	if b == nil {
		return
	}
	p.mu.Lock()
	if p.browser != b {
		p.mu.Unlock()
		return
	}
	orphaned := len(p.leases)
	p.browser = nil
	p.browserLauncher = nil
	p.leases = make(map[string]*Lease)
	p.activeScrapes = make(map[string]struct{})
	p.cookiesLoaded = false
	p.mu.Unlock()

	if orphaned > 0 {
		log.Warn().Int("orphaned_leases", orphaned).Msg("Leases purged with disconnected browser")
	}
}

// AcquirePage leases a page to the given scrape operation.
//
// The concurrency gate fails fast: when MaxConcurrentScrapes operations are
// already active the caller gets an admission error immediately, before any
// browser work. Page-slot contention, by contrast, is waited out for up to
// SlotWaitTimeout before reporting exhaustion - overload becomes an
// explicit, retryable error instead of unbounded queueing.
//
// The caller MUST release the lease:
//
//	lease, err := pool.AcquirePage(ctx, opID)
//	if err != nil {
//	    return err
//	}
//	defer pool.ReleasePage(lease.ID, opID)
func (p *Pool) AcquirePage(ctx context.Context, operationID string) (*Lease, error) {
	if operationID == "" {
		return nil, types.ErrOperationIDMissing
	}
	if p.closed.Load() {
		return nil, types.ErrPoolClosed
	}

	// Admission gate. The scrape slot is reserved up front so the ceiling
	// holds under any interleaving; every failure path below returns it.
	p.mu.Lock()
	if _, held := p.activeScrapes[operationID]; !held && len(p.activeScrapes) >= p.config.MaxConcurrentScrapes {
		active := len(p.activeScrapes)
		p.mu.Unlock()
		p.stats.Rejected.Add(1)
		log.Debug().
			Str("operation_id", operationID).
			Int("active_scrapes", active).
			Msg("Scrape rejected at admission gate")
		return nil, types.NewAdmissionError(active, p.config.MaxConcurrentScrapes)
	}
	p.activeScrapes[operationID] = struct{}{}
	p.mu.Unlock()

	lease, err := p.acquirePage(ctx, operationID)
	if err != nil {
		p.mu.Lock()
		delete(p.activeScrapes, operationID)
		p.mu.Unlock()
		return nil, err
	}

	p.stats.Acquired.Add(1)
	log.Debug().
		Str("lease_id", lease.ID).
		Str("operation_id", operationID).
		Msg("Page leased")
	return lease, nil
}

func (p *Pool) acquirePage(ctx context.Context, operationID string) (*Lease, error) {
	browser, err := p.Initialize(ctx)
	if err != nil {
		return nil, err
	}

	// Bounded wait for a page slot. The reservation is written into the
	// lease map before the page exists so len(leases) is the one bound.
	deadline := time.Now().Add(p.config.SlotWaitTimeout)
	var leaseID string
	for {
		p.mu.Lock()
		if p.browser != browser {
			p.mu.Unlock()
			return nil, types.ErrBrowserDisconnect
		}
		if len(p.leases) < p.config.MaxPages {
			leaseID = newLeaseID()
			p.leases[leaseID] = &Lease{
				ID:          leaseID,
				OperationID: operationID,
				CreatedAt:   time.Now(),
			}
			p.mu.Unlock()
			break
		}
		inUse := len(p.leases)
		p.mu.Unlock()

		if time.Now().After(deadline) {
			p.stats.Exhausted.Add(1)
			return nil, types.NewExhaustionError(p.config.MaxPages)
		}
		log.Debug().
			Str("operation_id", operationID).
			Int("pages_in_use", inUse).
			Msg("Waiting for a page slot")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
		case <-p.stopCh:
			return nil, types.ErrPoolClosed
		case <-time.After(slotPollInterval):
		}
	}

	page, err := openPage(browser)
	if err != nil {
		p.mu.Lock()
		delete(p.leases, leaseID)
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	lease, ok := p.leases[leaseID]
	if !ok {
		// The pool reset while the page was opening.
		p.mu.Unlock()
		if cerr := page.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("Error closing page for vanished lease")
		}
		return nil, types.ErrBrowserDisconnect
	}
	lease.Page = page
	p.mu.Unlock()

	if err := p.injectCookiesOnce(browser); err != nil {
		log.Warn().Err(err).Msg("Cookie injection failed, continuing unauthenticated")
	}

	return lease, nil
}

// injectCookiesOnce loads the configured authentication cookies into the
// browser. Only the first lease per browser lifetime pays this cost; the
// flag re-arms on restart or disconnect.
func (p *Pool) injectCookiesOnce(browser *rod.Browser) error {
	p.mu.Lock()
	if p.cookiesLoaded || len(p.cookies) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.cookiesLoaded = true
	p.mu.Unlock()

	if err := browser.SetCookies(p.cookies); err != nil {
		p.mu.Lock()
		p.cookiesLoaded = false
		p.mu.Unlock()
		return err
	}

	log.Info().Int("count", len(p.cookies)).Msg("Authentication cookies injected")
	return nil
}

// ReleasePage closes a leased page and frees its slots. It is idempotent:
// unknown leases are ignored, so cleanup paths may call it unconditionally.
// Bookkeeping is removed before the close is attempted - a failing close
// must never leak a slot.
func (p *Pool) ReleasePage(leaseID, operationID string) {
	p.mu.Lock()
	lease, ok := p.leases[leaseID]
	if ok {
		delete(p.leases, leaseID)
		delete(p.activeScrapes, operationID)
	}
	p.mu.Unlock()

	if !ok {
		log.Debug().Str("lease_id", leaseID).Msg("Release of unknown lease ignored")
		return
	}

	if lease.Page != nil {
		if err := lease.Page.Close(); err != nil {
			log.Warn().
				Err(err).
				Str("lease_id", leaseID).
				Msg("Error closing leased page")
		}
	}

	p.stats.Released.Add(1)
	log.Debug().
		Str("lease_id", leaseID).
		Str("operation_id", operationID).
		Dur("held", time.Since(lease.CreatedAt)).
		Msg("Page lease released")
}

// HealthCheck verifies browser liveness and reclaims stale leases.
// A no-op while the pool is unstarted. A failed liveness probe is treated
// as a fatal pool fault and triggers a full restart.
func (p *Pool) HealthCheck() {
	p.mu.Lock()
	b := p.browser
	p.mu.Unlock()
	if b == nil {
		return
	}

	if _, err := b.Version(); err != nil {
		log.Error().Err(err).Msg("Browser liveness check failed, restarting pool")
		if _, rerr := p.Restart(context.Background()); rerr != nil {
			log.Error().Err(rerr).Msg("Pool restart after failed health check did not recover")
		}
		return
	}

	p.mu.Lock()
	p.lastHealth = time.Now()
	p.mu.Unlock()

	p.sweepStaleLeases()
}

// sweepStaleLeases force-releases leases held past StaleLeaseAge. This
// protects the page budget from callers that crashed or forgot to release.
func (p *Pool) sweepStaleLeases() {
	cutoff := time.Now().Add(-p.config.StaleLeaseAge)

	p.mu.Lock()
	var stale []*Lease
	for _, lease := range p.leases {
		if lease.CreatedAt.Before(cutoff) {
			stale = append(stale, lease)
		}
	}
	p.mu.Unlock()

	for _, lease := range stale {
		log.Warn().
			Str("lease_id", lease.ID).
			Str("operation_id", lease.OperationID).
			Dur("age", time.Since(lease.CreatedAt)).
			Msg("Reclaiming stale lease")
		p.stats.Reclaimed.Add(1)
		p.ReleasePage(lease.ID, lease.OperationID)
	}
}

// healthCheckRoutine drives periodic health checks until the pool closes.
func (p *Pool) healthCheckRoutine() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("Health check routine stopping")
			return
		case <-ticker.C:
			if p.closed.Load() {
				return
			}
			p.HealthCheck()
		}
	}
}

// Restart force-closes the browser, resets all bookkeeping, assigns a new
// instance identifier, and relaunches. This is the self-healing path and is
// also exposed via POST /restart-browser. The new instance id is returned
// even when the relaunch fails, since the identity rotation has already
// happened.
func (p *Pool) Restart(ctx context.Context) (string, error) {
	p.mu.Lock()
	old := p.browser
	leases := make([]*Lease, 0, len(p.leases))
	for _, lease := range p.leases {
		leases = append(leases, lease)
	}
	p.browser = nil
	p.browserLauncher = nil
	p.leases = make(map[string]*Lease)
	p.activeScrapes = make(map[string]struct{})
	p.cookiesLoaded = false
	p.instanceID = NewInstanceID()
	instanceID := p.instanceID
	p.mu.Unlock()

	p.stats.Restarts.Add(1)
	closeBrowser(old, leases)

	if p.closed.Load() {
		return instanceID, types.ErrPoolClosed
	}
	if _, err := p.Initialize(ctx); err != nil {
		return instanceID, err
	}

	log.Info().Str("instance_id", instanceID).Msg("Pool restarted")
	return instanceID, nil
}

// closeBrowser tears down a browser and its leased pages. All errors are
// logged and swallowed; teardown must never block state reset.
func closeBrowser(b *rod.Browser, leases []*Lease) {
	if b == nil {
		return
	}

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, lease := range leases {
		lease := lease
		eg.Go(func() error {
			if lease.Page != nil {
				if err := lease.Page.Close(); err != nil {
					log.Debug().
						Err(err).
						Str("lease_id", lease.ID).
						Msg("Error closing page during browser teardown")
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := b.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing browser")
	}
}

// Snapshot returns the pool stats shape served by GET / and GET /stats.
func (p *Pool) Snapshot() types.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.PoolSnapshot{
		InstanceID:           p.instanceID,
		BrowserConnected:     p.browser != nil,
		ActivePages:          len(p.leases),
		MaxPages:             p.config.MaxPages,
		ActiveScrapes:        len(p.activeScrapes),
		MaxConcurrentScrapes: p.config.MaxConcurrentScrapes,
		CookiesLoaded:        p.cookiesLoaded,
		LastHealthCheck:      p.lastHealth,
	}
}

// Counters returns a copy of the monotonic pool counters.
func (p *Pool) Counters() (acquired, released, rejected, exhausted, reclaimed, restarts, disconnects int64) {
	return p.stats.Acquired.Load(),
		p.stats.Released.Load(),
		p.stats.Rejected.Load(),
		p.stats.Exhausted.Load(),
		p.stats.Reclaimed.Load(),
		p.stats.Restarts.Load(),
		p.stats.Disconnects.Load()
}

// InstanceID returns the current pool instance identifier.
func (p *Pool) InstanceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instanceID
}

// Close shuts down the pool. The browser is forcibly closed and no further
// leases are granted. Safe to call multiple times.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	log.Info().Msg("Closing browser pool")
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Timeout waiting for pool background goroutines")
	}

	p.mu.Lock()
	b := p.browser
	leases := make([]*Lease, 0, len(p.leases))
	for _, lease := range p.leases {
		leases = append(leases, lease)
	}
	p.browser = nil
	p.browserLauncher = nil
	p.leases = make(map[string]*Lease)
	p.activeScrapes = make(map[string]struct{})
	p.mu.Unlock()

	closeBrowser(b, leases)

	log.Info().
		Int64("total_acquired", p.stats.Acquired.Load()).
		Int64("total_released", p.stats.Released.Load()).
		Int64("total_reclaimed", p.stats.Reclaimed.Load()).
		Msg("Browser pool closed")
	return nil
}
