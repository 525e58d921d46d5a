// Package api exposes the relay over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ngoyal88/studybuddy-relay/pkg/ledger"
	"github.com/ngoyal88/studybuddy-relay/pkg/middleware"
	"github.com/ngoyal88/studybuddy-relay/pkg/relay"
)

// DefaultMaxBodyBytes caps a chat request body.
const DefaultMaxBodyBytes = 1 << 20

// Usage is the read side of the ledger the dashboard needs.
type Usage interface {
	Stats() ledger.Stats
	List(limit int) []ledger.Entry
	Activity(minutes int) []ledger.ActivityBucket
	Clear()
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Circuit reports the upstream circuit breaker state.
type Circuit interface {
	State() string
}

// Deps are the collaborators the HTTP layer serves. Redis and Circuit are optional.
type Deps struct {
	Relay        *relay.Relay
	Usage        Usage
	Redis        Pinger
	Circuit      Circuit
	MaxBodyBytes int64
}

type handlers struct {
	Deps
}

// NewRouter builds the HTTP handler for the relay.
func NewRouter(d Deps) http.Handler {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.ClientIdentity)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.handleChat)
		r.Get("/dashboard", h.handleDashboard)
		r.Delete("/dashboard/logs", h.handleClearLogs)
		r.Post("/session", h.handleSession)
		r.Get("/session/options", h.handleSessionOptions)
	})

	return r
}
