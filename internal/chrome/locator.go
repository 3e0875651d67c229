// Package chrome resolves a usable browser executable on the host.
package chrome

import (
	"fmt"
	"os"
	"strings"
)

// candidates is the ordered list of well-known browser install locations.
// The first entry that exists and is executable wins.
var candidates = []string{
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	"/opt/google/chrome/chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// Find returns the path to a usable browser executable.
// An explicit override (BROWSER_PATH) takes priority over the candidate
// list; an override that does not exist is an error rather than a fallback,
// so a misconfigured path is never silently ignored.
func Find(override string) (string, error) {
	if override != "" {
		if isExecutable(override) {
			return override, nil
		}
		return "", fmt.Errorf("browser executable %q not found or not executable", override)
	}

	for _, path := range candidates {
		if isExecutable(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("no browser executable found, tried: %s", strings.Join(candidates, ", "))
}

// isExecutable reports whether path exists, is a regular file, and has an
// execute bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
