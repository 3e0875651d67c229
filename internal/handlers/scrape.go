package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perchd/perchd/internal/browser"
	"github.com/perchd/perchd/internal/humanize"
	"github.com/perchd/perchd/internal/metrics"
	"github.com/perchd/perchd/internal/types"
)

// handleScrape serves POST /scrape: one account, reshaped to a flat
// single-account response.
func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req types.ScrapeRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	raw := req.URL
	if raw == "" {
		raw = req.Username
	}
	account, err := types.NormalizeAccount(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(),
			"Pass a profile URL or a bare account handle.")
		return
	}

	results, err := h.scrapeAccounts(r.Context(), []string{account}, req.PostsPerAccount)
	if err != nil {
		h.writeError(w, errorStatus(err), err.Error(), types.Suggestion(err))
		return
	}

	result := results[0]
	resp := types.SingleScrapeResponse{
		Success:    result.Success,
		Timestamp:  time.Now().UTC(),
		Account:    result.Account,
		Posts:      result.Posts,
		PostCount:  result.PostCount,
		Error:      result.Error,
		Suggestion: result.Suggestion,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleScrapeMultiple serves POST /scrape-multiple: up to 10 accounts
// scraped sequentially on one page lease. The response is 200 with
// per-account results as long as the operation itself ran; individual
// account failures are reported inline.
func (h *Handler) handleScrapeMultiple(w http.ResponseWriter, r *http.Request) {
	var req types.MultiScrapeRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	accounts, err := normalizeAll(req.Accounts)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	results, err := h.scrapeAccounts(r.Context(), accounts, req.PostsPerAccount)
	if err != nil {
		h.writeError(w, errorStatus(err), err.Error(), types.Suggestion(err))
		return
	}

	h.writeJSON(w, http.StatusOK, types.ScrapeResponse{
		Success:   anySucceeded(results),
		Timestamp: time.Now().UTC(),
		Results:   results,
	})
}

// handleScrapeBatch serves POST /scrape-batch: up to 50 accounts, chunked
// into batches with a pause between them. Each batch takes its own page
// lease, so a browser restart mid-run only loses one batch.
func (h *Handler) handleScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req types.BatchScrapeRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	accounts, err := normalizeAll(req.Accounts)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = h.config.DefaultBatchSize
	}

	var results []types.AccountResult
	for start := 0; start < len(accounts); start += batchSize {
		end := start + batchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		batch := accounts[start:end]

		log.Info().
			Int("batch_start", start).
			Int("batch_size", len(batch)).
			Int("total", len(accounts)).
			Msg("Processing account batch")

		batchResults, err := h.scrapeAccounts(r.Context(), batch, req.PostsPerAccount)
		if err != nil {
			// Whole-batch failures (pool busy, browser down) become inline
			// failures so earlier batches' results are not discarded.
			for _, account := range batch {
				results = append(results, types.AccountResult{
					Account:    account,
					Success:    false,
					Error:      err.Error(),
					Suggestion: types.Suggestion(err),
				})
			}
		} else {
			results = append(results, batchResults...)
		}

		if end < len(accounts) {
			if !humanize.SleepWithJitter(r.Context(), h.config.BatchDelay, 0.2) {
				h.writeError(w, http.StatusRequestTimeout,
					"Request canceled between batches", "")
				return
			}
		}
	}

	h.writeJSON(w, http.StatusOK, types.ScrapeResponse{
		Success:   anySucceeded(results),
		Timestamp: time.Now().UTC(),
		Results:   results,
	})
}

// scrapeAccounts runs one scrape operation: a single page lease, accounts
// visited sequentially with a pause between them. Per-account failures are
// recorded in the result list; the returned error is reserved for faults
// that prevented the whole operation (admission, exhaustion, launch).
func (h *Handler) scrapeAccounts(ctx context.Context, accounts []string, postsPerAccount int) ([]types.AccountResult, error) {
	operationID := browser.NewOperationID()

	lease, err := h.pool.AcquirePage(ctx, operationID)
	if err != nil {
		h.recordPoolFailure(err)
		return nil, err
	}
	defer h.pool.ReleasePage(lease.ID, operationID)
	metrics.PagesAcquired.Inc()

	results := make([]types.AccountResult, 0, len(accounts))
	for i, account := range accounts {
		if i > 0 {
			if !humanize.SleepWithJitter(ctx, h.config.AccountDelay, 0.3) {
				// Canceled mid-operation; report the rest as skipped.
				for _, rest := range accounts[i:] {
					results = append(results, types.AccountResult{
						Account: rest,
						Success: false,
						Error:   "request canceled",
					})
				}
				break
			}
		}

		start := time.Now()
		posts, err := h.scraper.ScrapeAccount(ctx, lease.Page, account, postsPerAccount)
		duration := time.Since(start)

		result := types.AccountResult{
			Account:    account,
			DurationMs: duration.Milliseconds(),
		}
		if err != nil {
			result.Error = err.Error()
			result.Suggestion = types.Suggestion(err)
			h.registry.RecordError(account, err, duration)
			metrics.RecordAccountScrape("error", 0)
			log.Warn().
				Err(err).
				Str("account", account).
				Str("operation_id", operationID).
				Msg("Account scrape failed")
		} else {
			result.Success = true
			result.Posts = posts
			result.PostCount = len(posts)
			h.registry.RecordSuccess(account, len(posts), duration)
			metrics.RecordAccountScrape("success", len(posts))
		}
		results = append(results, result)
	}

	return results, nil
}

// recordPoolFailure bumps rejection metrics for acquisition failures.
func (h *Handler) recordPoolFailure(err error) {
	switch {
	case errors.Is(err, types.ErrTooManyScrapes):
		metrics.PoolRejections.WithLabelValues("admission").Inc()
	case errors.Is(err, types.ErrPagesExhausted):
		metrics.PoolRejections.WithLabelValues("exhausted").Inc()
	case errors.Is(err, types.ErrBrowserLaunch):
		metrics.PoolRejections.WithLabelValues("launch").Inc()
	}
}

// normalizeAll normalizes a list of account inputs, failing on the first
// invalid entry.
func normalizeAll(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		account, err := types.NormalizeAccount(r)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

func anySucceeded(results []types.AccountResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}
