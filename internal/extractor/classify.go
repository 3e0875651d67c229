package extractor

import (
	"strings"

	"github.com/perchd/perchd/internal/types"
)

// ClassifyFailure inspects a page snapshot that yielded no posts and maps
// it to a typed error. Ordering matters: a rate-limit interstitial also
// mentions signing in, so the more specific patterns are checked first.
func (e *Extractor) ClassifyFailure(pageHTML, account string) error {
	sel := e.manager.Get()
	lower := strings.ToLower(pageHTML)

	for _, pattern := range sel.RateLimited {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return types.NewRateLimitedError(account)
		}
	}
	for _, pattern := range sel.NotFound {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return types.NewNotFoundError(account)
		}
	}
	for _, pattern := range sel.AuthWall {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return types.NewAuthWallError(account)
		}
	}
	return types.ErrEmptyProfile
}
