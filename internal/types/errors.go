// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser pool errors
	ErrPoolClosed         = errors.New("browser pool is closed")
	ErrTooManyScrapes     = errors.New("too many concurrent scrape operations")
	ErrPagesExhausted     = errors.New("no page slots available")
	ErrBrowserLaunch      = errors.New("browser failed to launch")
	ErrBrowserDisconnect  = errors.New("browser process disconnected")
	ErrLeaseNotFound      = errors.New("page lease not found")
	ErrOperationIDMissing = errors.New("operation id is required")

	// Extraction errors
	ErrAuthWall     = errors.New("profile requires authentication")
	ErrRateLimited  = errors.New("rate limited by target site")
	ErrNotFound     = errors.New("profile not found or private")
	ErrNoTimeline   = errors.New("timeline did not render")
	ErrEmptyProfile = errors.New("profile has no visible posts")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoAccounts     = errors.New("at least one account is required")

	// Context errors
	ErrContextCanceled = errors.New("operation canceled")
)

// Retryable reports whether an error represents a transient condition the
// caller should retry after a delay.
func Retryable(err error) bool {
	return errors.Is(err, ErrTooManyScrapes) ||
		errors.Is(err, ErrPagesExhausted) ||
		errors.Is(err, ErrRateLimited)
}

// ScrapeError provides detailed information about scrape failures.
// It implements the error interface and supports error unwrapping.
type ScrapeError struct {
	Type       string // Error type: "auth_wall", "rate_limited", "not_found", "timeout"
	Account    string // The account handle where the error occurred
	Message    string // Human-readable error message
	Suggestion string // Actionable hint returned to the API caller
	Err        error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *ScrapeError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewAuthWallError creates an error for login-wall interception.
func NewAuthWallError(account string) *ScrapeError {
	return &ScrapeError{
		Type:       "auth_wall",
		Account:    account,
		Message:    "Profile is behind a login wall and could not be read.",
		Suggestion: "Provide fresh authentication cookies via COOKIES or COOKIES_FILE.",
		Err:        ErrAuthWall,
	}
}

// NewRateLimitedError creates an error for rate-limit interception.
func NewRateLimitedError(account string) *ScrapeError {
	return &ScrapeError{
		Type:       "rate_limited",
		Account:    account,
		Message:    "The target site is rate-limiting this scraper.",
		Suggestion: "You are being rate-limited. Reduce request frequency and retry later.",
		Err:        ErrRateLimited,
	}
}

// NewNotFoundError creates an error for missing or private profiles.
func NewNotFoundError(account string) *ScrapeError {
	return &ScrapeError{
		Type:       "not_found",
		Account:    account,
		Message:    "Profile does not exist or is private.",
		Suggestion: "Verify the account handle is spelled correctly and is public.",
		Err:        ErrNotFound,
	}
}

// NewTimeoutError creates an error for navigation or render timeouts.
func NewTimeoutError(account string, err error) *ScrapeError {
	return &ScrapeError{
		Type:       "timeout",
		Account:    account,
		Message:    "Timed out loading the profile timeline.",
		Suggestion: "Try again; the page may load on a retry.",
		Err:        err,
	}
}

// PoolError provides detailed information about browser pool failures.
type PoolError struct {
	Operation  string // The operation that failed
	Message    string // Human-readable error message
	Suggestion string // Actionable hint returned to the API caller
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewAdmissionError creates an error for the concurrency admission gate.
func NewAdmissionError(active, limit int) *PoolError {
	return &PoolError{
		Operation:  "acquire",
		Message:    fmt.Sprintf("Concurrent scrape limit reached (%d/%d active).", active, limit),
		Suggestion: "The pool is busy. Retry after a short delay.",
		Err:        ErrTooManyScrapes,
	}
}

// NewExhaustionError creates an error for page-slot exhaustion after the
// bounded wait window has elapsed.
func NewExhaustionError(maxPages int) *PoolError {
	return &PoolError{
		Operation:  "acquire",
		Message:    fmt.Sprintf("All %d browser pages are in use and none freed up in time.", maxPages),
		Suggestion: "The pool is saturated. Retry after a short delay.",
		Err:        ErrPagesExhausted,
	}
}

// NewLaunchError creates an error for browser launch failures.
func NewLaunchError(err error) *PoolError {
	return &PoolError{
		Operation:  "initialize",
		Message:    "Browser failed to launch: " + err.Error(),
		Suggestion: "Check the browser executable path and container resources.",
		Err:        fmt.Errorf("%w: %v", ErrBrowserLaunch, err),
	}
}

// Suggestion extracts an actionable suggestion from an error chain, if any.
func Suggestion(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Suggestion
	}
	var pe *PoolError
	if errors.As(err, &pe) {
		return pe.Suggestion
	}
	if Retryable(err) {
		return "Retry after a short delay."
	}
	return ""
}
