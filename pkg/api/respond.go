package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ngoyal88/studybuddy-relay/pkg/ratelimit"
	"github.com/ngoyal88/studybuddy-relay/pkg/relay"
)

const (
	msgRateLimited  = "Rate limit exceeded. Please wait before sending more messages."
	msgInvalid      = "Invalid request format or message too long."
	msgTimeout      = "Request timed out. Please try again."
	msgChatFailed   = "Failed to process chat request."
	msgDashboardErr = "Failed to fetch dashboard data"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// writeRelayError maps a relay error onto its HTTP status and user-facing message.
func writeRelayError(w http.ResponseWriter, err error) {
	switch relay.KindOf(err) {
	case relay.KindRateLimited:
		var e *relay.Error
		if errors.As(err, &e) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(e.RetryAfter)))
		}
		respondError(w, http.StatusTooManyRequests, msgRateLimited)
	case relay.KindInvalidRequest:
		respondError(w, http.StatusBadRequest, msgInvalid)
	case relay.KindUpstreamTimeout:
		respondError(w, http.StatusGatewayTimeout, msgTimeout)
	default:
		respondError(w, http.StatusInternalServerError, msgChatFailed)
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.ResetAt.IsZero() {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
