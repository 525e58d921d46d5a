package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
	"github.com/ngoyal88/studybuddy-relay/pkg/middleware"
	"github.com/ngoyal88/studybuddy-relay/pkg/relay"
)

// statusTrailer carries the outcome of a streamed reply, since the status
// line has already been sent when the stream ends.
const statusTrailer = "X-Relay-Status"

const (
	streamOK      = "ok"
	streamTimeout = "timeout"
	streamError   = "error"
)

func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetClientIdentity(ctx)

	decision, err := h.Relay.Admit(ctx, identity)
	setRateLimitHeaders(w, decision)
	if err != nil {
		if relay.KindOf(err) == 0 {
			slog.Error("admission check failed", "client", identity, "error", err)
		}
		writeRelayError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		slog.Warn("read chat body failed", "client", identity, "error", err)
		writeRelayError(w, &relay.Error{Kind: relay.KindInvalidRequest, Err: err})
		return
	}

	req, err := h.Relay.Prepare(body)
	if err != nil {
		writeRelayError(w, err)
		return
	}

	if req.Stream {
		h.streamChat(w, r, identity, req.Messages)
		return
	}

	res, err := h.Relay.Complete(ctx, identity, req.Messages)
	if err != nil {
		if !errors.Is(err, relay.ErrClientDisconnected) {
			writeRelayError(w, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]chat.Message{"message": res.Message})
}

func (h *handlers) streamChat(w http.ResponseWriter, r *http.Request, identity string, msgs []chat.Message) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Trailer", statusTrailer)
	rc := http.NewResponseController(w)

	started := false
	start := func() {
		if !started {
			w.WriteHeader(http.StatusOK)
			started = true
		}
	}
	sink := relay.SinkFunc(func(fragment string) error {
		start()
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		return rc.Flush()
	})

	_, err := h.Relay.Stream(r.Context(), identity, msgs, sink)

	if !started {
		switch {
		case err == nil:
			start()
		case errors.Is(err, relay.ErrClientDisconnected):
			return
		default:
			// Nothing was sent yet, so the failure can still be a plain error response.
			w.Header().Del("Trailer")
			writeRelayError(w, err)
			return
		}
	}
	w.Header().Set(statusTrailer, streamStatus(err))
}

func streamStatus(err error) string {
	switch {
	case err == nil:
		return streamOK
	case relay.KindOf(err) == relay.KindUpstreamTimeout:
		return streamTimeout
	default:
		return streamError
	}
}
