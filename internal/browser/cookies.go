package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/proto"

	"github.com/perchd/perchd/internal/config"
)

// cookieJSON mirrors the browser-export cookie shape accepted via the
// COOKIES env var or COOKIES_FILE: a JSON array of {name, value, domain, ...}.
type cookieJSON struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expirationDate,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// LoadCookies reads the configured cookie source, if any.
// COOKIES takes priority over COOKIES_FILE. Returns nil with no error when
// no source is configured; scraping then proceeds unauthenticated.
func LoadCookies(cfg *config.Config) ([]*proto.NetworkCookieParam, error) {
	var blob []byte
	switch {
	case cfg.CookiesJSON != "":
		blob = []byte(cfg.CookiesJSON)
	case cfg.CookiesFile != "":
		data, err := os.ReadFile(cfg.CookiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read cookies file: %w", err)
		}
		blob = data
	default:
		return nil, nil
	}
	return ParseCookies(blob)
}

// ParseCookies converts a cookie blob into CDP cookie parameters.
func ParseCookies(blob []byte) ([]*proto.NetworkCookieParam, error) {
	var raw []cookieJSON
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("invalid cookie blob: %w", err)
	}

	out := make([]*proto.NetworkCookieParam, 0, len(raw))
	for i, c := range raw {
		if c.Name == "" || c.Domain == "" {
			return nil, fmt.Errorf("cookie[%d]: name and domain are required", i)
		}
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		out = append(out, param)
	}
	return out, nil
}
