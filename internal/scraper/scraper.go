// Package scraper drives a leased browser page through one profile scrape:
// navigate, wait for the timeline, scroll to load posts, extract.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/perchd/perchd/internal/config"
	"github.com/perchd/perchd/internal/extractor"
	"github.com/perchd/perchd/internal/humanize"
	"github.com/perchd/perchd/internal/selectors"
	"github.com/perchd/perchd/internal/types"
)

// Scraper fetches posts from public profile timelines.
type Scraper struct {
	config    *config.Config
	selectors *selectors.Manager
	extractor *extractor.Extractor
	timing    *humanize.Timing
}

// New creates a scraper sharing the given selector manager.
func New(cfg *config.Config, mgr *selectors.Manager) *Scraper {
	return &Scraper{
		config:    cfg,
		selectors: mgr,
		extractor: extractor.New(mgr, cfg.FreshnessWindow()),
		timing:    humanize.NewTiming(),
	}
}

// profileURL builds the canonical profile URL for a normalized handle.
func profileURL(account string) string {
	return "https://x.com/" + account
}

// maxScrollRounds caps the scroll loop; each round loads roughly one
// viewport of posts, and deep history is out of scope for timeline scrapes.
const maxScrollRounds = 12

// ScrapeAccount loads one profile on the given page and returns up to
// limit posts. Failures are returned as typed errors carrying an
// actionable suggestion for the API response.
func (s *Scraper) ScrapeAccount(ctx context.Context, page *rod.Page, account string, limit int) ([]types.PostRecord, error) {
	if limit <= 0 {
		limit = s.config.DefaultPostsPerAccount
	}
	if limit > types.MaxPostsPerAccount {
		limit = types.MaxPostsPerAccount
	}

	start := time.Now()
	page = page.Context(ctx).Timeout(s.config.NavigationTimeout)

	if err := page.Navigate(profileURL(account)); err != nil {
		return nil, types.NewTimeoutError(account, fmt.Errorf("navigation failed: %w", err))
	}
	if err := page.WaitLoad(); err != nil {
		return nil, types.NewTimeoutError(account, fmt.Errorf("page load timed out: %w", err))
	}

	humanize.SleepWithContext(ctx, s.timing.SettleDelay())

	if err := s.waitForTimeline(page, account); err != nil {
		return nil, err
	}

	posts, err := s.collectPosts(ctx, page, account, limit)
	if err != nil {
		return nil, err
	}

	// Newest first; posts without a usable timestamp sink to the end.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Timestamp.After(posts[j].Timestamp)
	})

	log.Info().
		Str("account", account).
		Int("posts", len(posts)).
		Dur("duration", time.Since(start)).
		Msg("Profile scraped")
	return posts, nil
}

// waitForTimeline blocks until at least one post renders, or classifies
// the page when the timeline never appears.
func (s *Scraper) waitForTimeline(page *rod.Page, account string) error {
	sel := s.selectors.Get()

	waitPage := page.Timeout(s.config.SelectorTimeout)
	if _, err := waitPage.Element(sel.Post); err != nil {
		pageHTML, herr := page.HTML()
		if herr != nil {
			return types.NewTimeoutError(account, fmt.Errorf("timeline did not render: %w", err))
		}
		cerr := s.extractor.ClassifyFailure(pageHTML, account)
		if errors.Is(cerr, types.ErrEmptyProfile) {
			// Nothing recognizable on the page either.
			return fmt.Errorf("%w for %s", types.ErrNoTimeline, account)
		}
		return cerr
	}
	return nil
}

// collectPosts scrolls the timeline until the post target is met, progress
// stalls, or the context expires. Each round snapshots the rendered DOM;
// the timeline virtualizes long lists, so snapshots are merged rather than
// re-read in full.
func (s *Scraper) collectPosts(ctx context.Context, page *rod.Page, account string, limit int) ([]types.PostRecord, error) {
	scroller := humanize.NewScroller(page)

	var posts []types.PostRecord
	stalled := 0
	for round := 0; round < maxScrollRounds; round++ {
		pageHTML, err := page.HTML()
		if err != nil {
			return nil, types.NewTimeoutError(account, fmt.Errorf("snapshot failed: %w", err))
		}

		fresh, err := s.extractor.ExtractPosts(pageHTML, account, 0)
		if err != nil {
			return nil, err
		}

		before := len(posts)
		posts = extractor.MergePosts(posts, fresh, limit)
		if len(posts) >= limit {
			break
		}

		if len(posts) == before {
			stalled++
			// Two rounds with no new posts means the timeline bottomed out.
			if stalled >= 2 {
				break
			}
		} else {
			stalled = 0
		}

		if err := scroller.ScrollRound(ctx); err != nil {
			log.Debug().Err(err).Str("account", account).Msg("Scroll round failed, stopping early")
			break
		}
		if !humanize.SleepWithContext(ctx, s.timing.ScrollDwell()) {
			return nil, fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
		}
	}

	if len(posts) == 0 {
		pageHTML, err := page.HTML()
		if err != nil {
			return nil, fmt.Errorf("%w for %s", types.ErrEmptyProfile, account)
		}
		return nil, s.extractor.ClassifyFailure(pageHTML, account)
	}
	return posts, nil
}
