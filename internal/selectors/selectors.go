// Package selectors provides profile-markup selector loading and management.
package selectors

import (
	"embed"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors contains the DOM selectors and page-text patterns used to
// extract posts from a profile timeline and classify failed loads.
type Selectors struct {
	// DOM selectors
	Timeline      string `yaml:"timeline"`
	Post          string `yaml:"post"`
	PostText      string `yaml:"post_text"`
	UserName      string `yaml:"user_name"`
	Timestamp     string `yaml:"timestamp"`
	SocialContext string `yaml:"social_context"`
	ReplyCount    string `yaml:"reply_count"`
	RepostCount   string `yaml:"repost_count"`
	LikeCount     string `yaml:"like_count"`

	// Pinned-post labels shown in the social context banner
	PinnedLabels []string `yaml:"pinned_labels"`

	// Page-text patterns classifying failed loads
	AuthWall    []string `yaml:"auth_wall"`
	RateLimited []string `yaml:"rate_limited"`
	NotFound    []string `yaml:"not_found"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance loaded from the embedded
// selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

// load reads selectors from the embedded YAML file.
func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("auth_wall_patterns", len(s.AuthWall)).
		Int("rate_limited_patterns", len(s.RateLimited)).
		Int("not_found_patterns", len(s.NotFound)).
		Msg("Selectors loaded")

	return &s, nil
}

// Validate checks that the Selectors carry the minimum required hooks.
func (s *Selectors) Validate() error {
	if s.Post == "" || s.PostText == "" {
		return fmt.Errorf("selectors must define at least post and post_text")
	}
	return nil
}

// defaultSelectors returns hardcoded fallback selectors matching the
// embedded file.
func defaultSelectors() *Selectors {
	return &Selectors{
		Timeline:      `div[data-testid="primaryColumn"]`,
		Post:          `article[data-testid="tweet"]`,
		PostText:      `div[data-testid="tweetText"]`,
		UserName:      `div[data-testid="User-Name"]`,
		Timestamp:     `time`,
		SocialContext: `div[data-testid="socialContext"]`,
		ReplyCount:    `[data-testid="reply"]`,
		RepostCount:   `[data-testid="retweet"]`,
		LikeCount:     `[data-testid="like"]`,
		PinnedLabels:  []string{"Pinned"},
		AuthWall: []string{
			"Sign in to X",
			"Log in to X",
			"Sign in to Twitter",
		},
		RateLimited: []string{
			"Rate limit exceeded",
			"Too many requests",
		},
		NotFound: []string{
			"This account doesn’t exist",
			"Account suspended",
			"These posts are protected",
		},
	}
}
