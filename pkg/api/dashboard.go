package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ngoyal88/studybuddy-relay/pkg/ledger"
)

const (
	dashboardLogLimit      = 100
	dashboardActivityWidth = 60
)

type dashboardResponse struct {
	Stats    ledger.Stats            `json:"stats"`
	Logs     []ledger.Entry          `json:"logs"`
	Activity []ledger.ActivityBucket `json:"activity"`
}

func (h *handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := h.dashboard()
	if err != nil {
		slog.Error("dashboard failed", "error", err)
		respondError(w, http.StatusInternalServerError, msgDashboardErr)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) dashboard() (resp dashboardResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("build dashboard: %v", p)
		}
	}()
	if h.Usage == nil {
		return resp, fmt.Errorf("usage ledger not configured")
	}
	return dashboardResponse{
		Stats:    h.Usage.Stats(),
		Logs:     h.Usage.List(dashboardLogLimit),
		Activity: h.Usage.Activity(dashboardActivityWidth),
	}, nil
}

func (h *handlers) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if h.Usage == nil {
		respondError(w, http.StatusInternalServerError, msgDashboardErr)
		return
	}
	h.Usage.Clear()
	slog.Info("usage ledger cleared", "remote", r.RemoteAddr)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logs cleared"})
}
