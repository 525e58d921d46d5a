package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// handleHealth returns system health
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
	}

	if h.Redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.Redis.Ping(ctx); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["redis"] = "healthy"
		}
	}

	if h.Circuit != nil {
		state := h.Circuit.State()
		health["upstream"] = state
		if state == "open" {
			health["status"] = "degraded"
		}
	}

	respondJSON(w, http.StatusOK, health)
}
