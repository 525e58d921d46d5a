package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ngoyal88/studybuddy-relay/pkg/prompt"
)

type sessionRequest struct {
	Kind        string `json:"kind"`
	Topic       string `json:"topic"`
	Details     string `json:"details"`
	Level       string `json:"level"`
	SessionType string `json:"sessionType"`
	Duration    int    `json:"duration"`
	TechStack   string `json:"techStack"`
}

type sessionResponse struct {
	SystemPrompt   string `json:"systemPrompt"`
	FollowUpPrompt string `json:"followUpPrompt,omitempty"`
	OpeningMessage string `json:"openingMessage"`
}

func (h *handlers) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := renderSession(req)
	if err != nil {
		if errors.Is(err, prompt.ErrInvalidConfig) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to render session prompt")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func renderSession(req sessionRequest) (*sessionResponse, error) {
	switch req.Kind {
	case "study", "":
		cfg := prompt.StudyConfig{
			Topic:       req.Topic,
			Details:     req.Details,
			Level:       req.Level,
			SessionType: req.SessionType,
			Duration:    req.Duration,
		}
		system, err := prompt.Study(cfg)
		if err != nil {
			return nil, err
		}
		followUp, err := prompt.StudyFollowUp(cfg)
		if err != nil {
			return nil, err
		}
		return &sessionResponse{SystemPrompt: system, FollowUpPrompt: followUp, OpeningMessage: prompt.OpeningMessage}, nil
	case "code":
		system, err := prompt.Code(prompt.CodeConfig{
			Topic:       req.Topic,
			SessionType: req.SessionType,
			TechStack:   req.TechStack,
		})
		if err != nil {
			return nil, err
		}
		return &sessionResponse{SystemPrompt: system, OpeningMessage: prompt.OpeningMessage}, nil
	}
	return nil, fmt.Errorf("%w: kind must be study or code", prompt.ErrInvalidConfig)
}

func (h *handlers) handleSessionOptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"levels":            prompt.Levels,
		"studySessionTypes": prompt.StudySessionTypes,
		"durations":         prompt.Durations,
		"codeSessionTypes":  prompt.CodeSessionTypes,
		"techStacks":        prompt.TechStacks,
	})
}
