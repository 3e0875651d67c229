package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perchd/perchd/internal/types"
)

// writeErrorResponse writes an error in the standard response envelope so
// middleware failures look the same as handler failures to API clients.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message, suggestion string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := types.ScrapeResponse{
		Success:    false,
		Timestamp:  time.Now().UTC(),
		Error:      message,
		Suggestion: suggestion,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
