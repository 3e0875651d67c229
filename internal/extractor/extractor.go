// Package extractor turns rendered profile markup into post records.
// It operates on page HTML snapshots; all DOM work happens here rather than
// through live browser queries, so one page fetch yields one parse pass.
package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/perchd/perchd/internal/selectors"
	"github.com/perchd/perchd/internal/types"
)

// Extractor parses timeline markup using the current selector set.
type Extractor struct {
	manager         *selectors.Manager
	freshnessWindow time.Duration
	now             func() time.Time
}

// New creates an extractor. The freshness window separates fresh posts from
// stale ones by age at scrape time.
func New(manager *selectors.Manager, freshnessWindow time.Duration) *Extractor {
	return &Extractor{
		manager:         manager,
		freshnessWindow: freshnessWindow,
		now:             time.Now,
	}
}

var handlePattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)

// ExtractPosts parses one page snapshot and returns up to limit posts in
// document order. Articles with neither body text nor a permalink are
// skipped; the timeline interleaves ads and placeholders that render as
// empty articles.
func (e *Extractor) ExtractPosts(pageHTML, account string, limit int) ([]types.PostRecord, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	sel := e.manager.Get()
	now := e.now()

	articles := findAll(doc, sel.Post)
	posts := make([]types.PostRecord, 0, len(articles))
	for _, article := range articles {
		if limit > 0 && len(posts) >= limit {
			break
		}

		post := e.extractPost(article, sel, account, now)
		if post.Text == "" && post.Link == "" {
			continue
		}
		posts = append(posts, post)
	}

	log.Debug().
		Str("account", account).
		Int("articles", len(articles)).
		Int("posts", len(posts)).
		Msg("Extracted posts from page snapshot")
	return posts, nil
}

// extractPost pulls one post record out of an article subtree.
func (e *Extractor) extractPost(article *html.Node, sel *selectors.Selectors, account string, now time.Time) types.PostRecord {
	post := types.PostRecord{
		Author:    account,
		ScrapedAt: now,
		Freshness: types.FreshnessUnknown,
	}

	if textNode := findFirst(article, sel.PostText); textNode != nil {
		post.Text = strings.TrimSpace(textContent(textNode))
	}

	if nameNode := findFirst(article, sel.UserName); nameNode != nil {
		raw := textContent(nameNode)
		if m := handlePattern.FindStringSubmatch(raw); m != nil {
			post.Author = m[1]
			if at := strings.Index(raw, "@"); at > 0 {
				post.DisplayName = strings.TrimSpace(raw[:at])
			}
		} else {
			post.DisplayName = strings.TrimSpace(raw)
		}
	}

	if timeNode := findFirst(article, sel.Timestamp); timeNode != nil {
		post.Timestamp = e.parseTimestamp(timeNode, now)
		if anchor := closestAnchor(timeNode, article); anchor != nil {
			post.Link = attrVal(anchor, "href")
			post.ID = postIDFromLink(post.Link)
		}
	}
	if !post.Timestamp.IsZero() {
		post.Freshness = e.classifyFreshness(post.Timestamp, now)
	}

	post.Replies = extractCount(article, sel.ReplyCount)
	post.Reposts = extractCount(article, sel.RepostCount)
	post.Likes = extractCount(article, sel.LikeCount)

	if scNode := findFirst(article, sel.SocialContext); scNode != nil {
		scText := textContent(scNode)
		for _, label := range sel.PinnedLabels {
			if containsFold(scText, label) {
				post.Pinned = true
				break
			}
		}
	}

	return post
}

// parseTimestamp reads the machine timestamp from a <time> element,
// falling back to reconstructing from the relative display label.
func (e *Extractor) parseTimestamp(timeNode *html.Node, now time.Time) time.Time {
	if dt := attrVal(timeNode, "datetime"); dt != "" {
		if ts, err := time.Parse(time.RFC3339, dt); err == nil {
			return ts
		}
		if ts, err := time.Parse("2006-01-02T15:04:05.000Z", dt); err == nil {
			return ts
		}
	}
	return ParseRelativeTime(textContent(timeNode), now)
}

// classifyFreshness buckets a post timestamp against the freshness window.
func (e *Extractor) classifyFreshness(ts, now time.Time) string {
	if ts.IsZero() {
		return types.FreshnessUnknown
	}
	if now.Sub(ts) <= e.freshnessWindow {
		return types.FreshnessFresh
	}
	return types.FreshnessStale
}

// extractCount reads one engagement count. The accessibility label carries
// the exact number; the visible text only has the abbreviated form.
func extractCount(article *html.Node, sel string) int {
	node := findFirst(article, sel)
	if node == nil {
		return 0
	}
	if label := attrVal(node, "aria-label"); label != "" {
		if n := ParseAriaCount(label); n > 0 {
			return int(n)
		}
	}
	return int(ParseCount(strings.TrimSpace(textContent(node))))
}

// postIDFromLink extracts the numeric post id from a permalink of the form
// /account/status/1234567890.
func postIDFromLink(link string) string {
	const marker = "/status/"
	idx := strings.Index(link, marker)
	if idx < 0 {
		return ""
	}
	id := link[idx+len(marker):]
	if slash := strings.IndexByte(id, '/'); slash >= 0 {
		id = id[:slash]
	}
	return id
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// MergePosts combines posts from successive page snapshots, preserving
// first-seen order and dropping duplicates. The timeline virtualizes its
// list while scrolling, so each snapshot sees a sliding window of posts.
func MergePosts(accumulated, fresh []types.PostRecord, limit int) []types.PostRecord {
	seen := make(map[string]struct{}, len(accumulated))
	for _, p := range accumulated {
		seen[postKey(p)] = struct{}{}
	}
	for _, p := range fresh {
		if limit > 0 && len(accumulated) >= limit {
			break
		}
		key := postKey(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		accumulated = append(accumulated, p)
	}
	return accumulated
}

// postKey identifies a post across snapshots. The permalink id is stable;
// posts without one fall back to their content.
func postKey(p types.PostRecord) string {
	if p.ID != "" {
		return p.ID
	}
	return p.Author + "|" + p.Text + "|" + p.Timestamp.Format(time.RFC3339)
}
