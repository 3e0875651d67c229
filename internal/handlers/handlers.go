// Package handlers provides the HTTP API surface of the scraper service.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perchd/perchd/internal/browser"
	"github.com/perchd/perchd/internal/config"
	"github.com/perchd/perchd/internal/metrics"
	"github.com/perchd/perchd/internal/scraper"
	"github.com/perchd/perchd/internal/selectors"
	"github.com/perchd/perchd/internal/stats"
	"github.com/perchd/perchd/internal/types"
	"github.com/perchd/perchd/pkg/version"
)

// maxBodySize bounds request bodies; scrape requests are small JSON.
const maxBodySize = 1 << 20 // 1MB

// Handler handles all API requests.
type Handler struct {
	pool      *browser.Pool
	scraper   *scraper.Scraper
	config    *config.Config
	registry  *stats.Registry
	startTime time.Time
}

// New creates a Handler wired to the given pool.
func New(pool *browser.Pool, cfg *config.Config, sel *selectors.Manager) *Handler {
	return &Handler{
		pool:      pool,
		scraper:   scraper.New(cfg, sel),
		config:    cfg,
		registry:  stats.NewRegistry(),
		startTime: time.Now(),
	}
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// ServeHTTP routes incoming requests (implements http.Handler).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = rec
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		h.handleHealth(w)
	case r.URL.Path == "/stats" && r.Method == http.MethodGet:
		h.handleStats(w)
	case r.URL.Path == "/restart-browser" && r.Method == http.MethodPost:
		h.handleRestart(w, r)
	case r.URL.Path == "/scrape" && r.Method == http.MethodPost:
		h.handleScrape(w, r)
	case r.URL.Path == "/scrape-multiple" && r.Method == http.MethodPost:
		h.handleScrapeMultiple(w, r)
	case r.URL.Path == "/scrape-batch" && r.Method == http.MethodPost:
		h.handleScrapeBatch(w, r)
	case knownPath(r.URL.Path):
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	default:
		h.writeError(w, http.StatusNotFound, "Not found", "")
	}

	metrics.RecordRequest(r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
}

func knownPath(path string) bool {
	switch path {
	case "/", "/stats", "/restart-browser", "/scrape", "/scrape-multiple", "/scrape-batch":
		return true
	}
	return false
}

// healthResponse is the GET / banner.
type healthResponse struct {
	Success   bool               `json:"success"`
	Timestamp time.Time          `json:"timestamp"`
	Service   string             `json:"service"`
	Version   string             `json:"version"`
	Pool      types.PoolSnapshot `json:"pool"`
	Endpoints map[string]string  `json:"endpoints"`
}

func (h *Handler) handleHealth(w http.ResponseWriter) {
	resp := healthResponse{
		Success:   true,
		Timestamp: time.Now().UTC(),
		Service:   "perchd",
		Version:   version.Full(),
		Pool:      h.pool.Snapshot(),
		Endpoints: map[string]string{
			"GET /":                 "service banner and pool snapshot",
			"GET /stats":            "pool, runtime, and per-account statistics",
			"POST /restart-browser": "force a browser restart",
			"POST /scrape":          "scrape one profile",
			"POST /scrape-multiple": "scrape up to 10 profiles",
			"POST /scrape-batch":    "scrape up to 50 profiles in batches",
		},
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// statsResponse is the GET /stats payload.
type statsResponse struct {
	Success       bool                              `json:"success"`
	Timestamp     time.Time                         `json:"timestamp"`
	UptimeSeconds int64                             `json:"uptime_seconds"`
	Pool          types.PoolSnapshot                `json:"pool"`
	Counters      poolCounters                      `json:"counters"`
	MemoryMB      uint64                            `json:"memory_mb"`
	Goroutines    int                               `json:"goroutines"`
	Accounts      map[string]stats.AccountStatsJSON `json:"accounts,omitempty"`
}

type poolCounters struct {
	Acquired    int64 `json:"acquired"`
	Released    int64 `json:"released"`
	Rejected    int64 `json:"rejected"`
	Exhausted   int64 `json:"exhausted"`
	Reclaimed   int64 `json:"reclaimed"`
	Restarts    int64 `json:"restarts"`
	Disconnects int64 `json:"disconnects"`
}

func (h *Handler) handleStats(w http.ResponseWriter) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := h.pool.Snapshot()
	metrics.UpdatePoolMetrics(snap.ActivePages, snap.ActiveScrapes)

	acquired, released, rejected, exhausted, reclaimed, restarts, disconnects := h.pool.Counters()
	resp := statsResponse{
		Success:       true,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Pool:          snap,
		Counters: poolCounters{
			Acquired:    acquired,
			Released:    released,
			Rejected:    rejected,
			Exhausted:   exhausted,
			Reclaimed:   reclaimed,
			Restarts:    restarts,
			Disconnects: disconnects,
		},
		MemoryMB:   mem.Alloc / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
		Accounts:   h.registry.Snapshot(),
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// restartResponse is the POST /restart-browser payload.
type restartResponse struct {
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
	InstanceID string    `json:"instance_id"`
	Error      string    `json:"error,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	log.Info().Msg("Browser restart requested")
	metrics.BrowserRestarts.Inc()

	instanceID, err := h.pool.Restart(r.Context())
	resp := restartResponse{
		Success:    err == nil,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		resp.Suggestion = types.Suggestion(err)
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, resp)
}

// decodeBody reads and unmarshals a bounded JSON request body.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := buf.ReadFrom(r.Body); err != nil {
		return fmt.Errorf("%w: failed to read body", types.ErrInvalidRequest)
	}
	if err := json.Unmarshal(buf.Bytes(), dst); err != nil {
		return fmt.Errorf("%w: invalid JSON", types.ErrInvalidRequest)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, suggestion string) {
	h.writeJSON(w, status, types.ScrapeResponse{
		Success:    false,
		Timestamp:  time.Now().UTC(),
		Error:      message,
		Suggestion: suggestion,
	})
}

// errorStatus maps a scrape or pool error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRequest), errors.Is(err, types.ErrNoAccounts):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrTooManyScrapes), errors.Is(err, types.ErrPagesExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
