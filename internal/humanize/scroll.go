package humanize

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// ScrollConfig contains configuration for humanized scroll behavior.
type ScrollConfig struct {
	// MinScrollSteps is the minimum number of wheel increments per round.
	MinScrollSteps int
	// MaxScrollSteps is the maximum number of wheel increments per round.
	MaxScrollSteps int
	// MinStepDelayMs is the minimum delay between wheel increments.
	MinStepDelayMs int
	// MaxStepDelayMs is the maximum delay between wheel increments.
	MaxStepDelayMs int
	// ViewportFractionMin is the smallest share of the viewport height one
	// scroll round covers.
	ViewportFractionMin float64
	// ViewportFractionMax is the largest share of the viewport height one
	// scroll round covers.
	ViewportFractionMax float64
}

// DefaultScrollConfig returns sensible defaults for human-like scrolling.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		MinScrollSteps:      6,
		MaxScrollSteps:      14,
		MinStepDelayMs:      20,
		MaxStepDelayMs:      60,
		ViewportFractionMin: 0.7,
		ViewportFractionMax: 1.1,
	}
}

// Scroller provides humanized scroll interactions for a browser page.
// Timelines load lazily; scrolling is how more posts are fetched.
type Scroller struct {
	page   *rod.Page
	config ScrollConfig
}

// NewScroller creates a humanized scroller for the given page.
func NewScroller(page *rod.Page) *Scroller {
	return &Scroller{
		page:   page,
		config: DefaultScrollConfig(),
	}
}

// NewScrollerWithConfig creates a humanized scroller with custom config.
func NewScrollerWithConfig(page *rod.Page, config ScrollConfig) *Scroller {
	return &Scroller{
		page:   page,
		config: config,
	}
}

// ScrollRound scrolls roughly one viewport further down the timeline, in
// small uneven wheel increments rather than a single jump.
func (s *Scroller) ScrollRound(ctx context.Context) error {
	height, err := s.viewportHeight()
	if err != nil {
		return err
	}

	fraction := s.config.ViewportFractionMin +
		rand.Float64()*(s.config.ViewportFractionMax-s.config.ViewportFractionMin)
	total := height * fraction

	steps := s.config.MinScrollSteps
	if s.config.MaxScrollSteps > steps {
		steps += rand.Intn(s.config.MaxScrollSteps - s.config.MinScrollSteps + 1)
	}

	remaining := total
	for i := 0; i < steps; i++ {
		if ctx.Err() != nil {
			return fmt.Errorf("scroll interrupted: %w", ctx.Err())
		}

		// Ease out: earlier increments are larger.
		delta := remaining / float64(steps-i)
		delta *= 0.8 + rand.Float64()*0.4
		if delta > remaining {
			delta = remaining
		}
		remaining -= delta

		if err := s.page.Mouse.Scroll(0, delta, 1); err != nil {
			return fmt.Errorf("wheel scroll failed: %w", err)
		}

		if !RandomWait(ctx, s.config.MinStepDelayMs, s.config.MaxStepDelayMs) {
			return ctx.Err()
		}
	}

	log.Debug().
		Float64("distance", total).
		Int("steps", steps).
		Msg("Timeline scroll round completed")
	return nil
}

// ScrollToTop jumps back to the top of the page. Used before extraction so
// pinned posts at the head of the timeline are in the rendered DOM.
func (s *Scroller) ScrollToTop() error {
	_, err := s.page.Eval(`() => window.scrollTo(0, 0)`)
	return err
}

// viewportHeight reads the current viewport height from the page.
func (s *Scroller) viewportHeight() (float64, error) {
	res, err := s.page.Eval(`() => window.innerHeight`)
	if err != nil {
		return 0, fmt.Errorf("failed to read viewport height: %w", err)
	}
	height := res.Value.Num()
	if height <= 0 {
		return 0, fmt.Errorf("viewport height unavailable")
	}
	return height, nil
}
