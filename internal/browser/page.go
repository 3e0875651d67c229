package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/perchd/perchd/pkg/version"
)

// standardHeaders returns the baseline HTTP headers applied to every leased
// page. Kept consistent with the fixed user agent so the fingerprint is
// coherent across requests.
func standardHeaders() proto.NetworkHeaders {
	return proto.NetworkHeaders{
		"Accept":          gson.New("text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"),
		"Accept-Language": gson.New("en-US,en;q=0.9"),
		"Sec-Fetch-Dest":  gson.New("document"),
		"Sec-Fetch-Mode":  gson.New("navigate"),
	}
}

// openPage creates a stealth page on the given browser and applies the
// baseline configuration: on-disk cache disabled, fixed user agent,
// standard headers. Header/cache failures are logged, not fatal - the page
// is still usable for extraction.
func openPage(browser *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      version.UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to set page user agent")
	}

	if err := (proto.NetworkSetCacheDisabled{CacheDisabled: true}).Call(page); err != nil {
		log.Warn().Err(err).Msg("Failed to disable page cache")
	}

	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: standardHeaders()}).Call(page); err != nil {
		log.Warn().Err(err).Msg("Failed to set standard page headers")
	}

	return page, nil
}
