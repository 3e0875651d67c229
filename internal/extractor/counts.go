package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var countPattern = regexp.MustCompile(`^([\d.,]+)\s*([KkMmBb])?$`)

// ParseCount converts an engagement count rendered for display into a
// number. Handles plain digits ("482"), thousands separators ("1,234"),
// and abbreviated magnitudes ("1.2K", "3M"). Unparseable input yields 0;
// a missing count is indistinguishable from zero engagement in the markup.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	num := strings.ReplaceAll(m[1], ",", "")
	val, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}

	switch strings.ToUpper(m[2]) {
	case "K":
		val *= 1_000
	case "M":
		val *= 1_000_000
	case "B":
		val *= 1_000_000_000
	}
	return int64(val)
}

var ariaCountPattern = regexp.MustCompile(`^([\d,]+)\b`)

// ParseAriaCount extracts the leading number from an accessibility label
// such as "1,234 Likes. Like".
func ParseAriaCount(label string) int64 {
	m := ariaCountPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return 0
	}
	val, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return val
}

var relativePattern = regexp.MustCompile(`^(\d+)\s*(s|m|h|d)$`)

// ParseRelativeTime reconstructs an absolute timestamp from a relative
// display label ("45s", "12m", "3h", "6d") against the given reference
// time. Returns the zero time when the label is not relative, including
// month-style labels ("Mar 5") which carry no year to anchor on.
func ParseRelativeTime(label string, now time.Time) time.Time {
	m := relativePattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return time.Time{}
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return now.Add(-time.Duration(n) * unit)
}
