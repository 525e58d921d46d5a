// Package relay bridges a client conversation to the upstream completion
// service: admission, validation, truncation, streaming and accounting.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ngoyal88/studybuddy-relay/pkg/ai"
	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
	"github.com/ngoyal88/studybuddy-relay/pkg/config"
	"github.com/ngoyal88/studybuddy-relay/pkg/ledger"
	"github.com/ngoyal88/studybuddy-relay/pkg/ratelimit"
	"github.com/ngoyal88/studybuddy-relay/pkg/telemetry"
	"github.com/ngoyal88/studybuddy-relay/pkg/upstream"
)

const DefaultEndpoint = "/api/chat"

// Options are the tunables applied to each request. They can be swapped while
// serving; a request uses the options current when it started.
type Options struct {
	Endpoint           string
	Model              string
	MaxTokens          int
	Temperature        float32
	Timeout            time.Duration
	Limits             chat.Limits
	MaxContextMessages int
	Pricing            ai.Pricing
	Estimator          ai.Estimator
}

// OptionsFromConfig maps the loaded configuration onto relay options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Endpoint:    DefaultEndpoint,
		Model:       cfg.Upstream.Model,
		MaxTokens:   cfg.Upstream.MaxTokens,
		Temperature: cfg.Upstream.Temperature,
		Timeout:     cfg.Upstream.Timeout,
		Limits: chat.Limits{
			MaxMessages:      cfg.Chat.MaxMessages,
			MaxMessageLength: cfg.Chat.MaxMessageLength,
		},
		MaxContextMessages: cfg.Chat.MaxContextMessages,
		Pricing: ai.Pricing{
			PromptPer1K:     cfg.Pricing.PromptPer1K,
			CompletionPer1K: cfg.Pricing.CompletionPer1K,
		},
		Estimator: ai.NewEstimator(cfg.Tokens.Estimator, cfg.Upstream.Model, cfg.Tokens.CharsPerToken),
	}
}

// Sink receives fragments in upstream order. An error means the caller is gone.
type Sink interface {
	WriteFragment(text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string) error

func (f SinkFunc) WriteFragment(text string) error { return f(text) }

// Result describes a completed upstream call.
type Result struct {
	Entry     ledger.Entry
	Fragments int
	Message   chat.Message
}

type Relay struct {
	limiter  ratelimit.Limiter
	upstream upstream.Completer
	ledger   *ledger.Ledger
	opts     atomic.Pointer[Options]
	now      func() time.Time
}

func New(limiter ratelimit.Limiter, completer upstream.Completer, l *ledger.Ledger, opts Options) *Relay {
	r := &Relay{
		limiter:  limiter,
		upstream: completer,
		ledger:   l,
		now:      time.Now,
	}
	r.Reconfigure(opts)
	return r
}

// Reconfigure swaps the options used by requests that start after it returns.
func (r *Relay) Reconfigure(opts Options) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Estimator == nil {
		opts.Estimator = ai.HeuristicEstimator{}
	}
	r.opts.Store(&opts)
}

func (r *Relay) Options() Options {
	return *r.opts.Load()
}

// Admit runs admission control for identity. A rejection is a *Error of kind
// KindRateLimited; the decision is returned either way so callers can report
// the remaining quota.
func (r *Relay) Admit(ctx context.Context, identity string) (ratelimit.Decision, error) {
	d, err := r.limiter.Admit(ctx, identity)
	if err != nil {
		return d, fmt.Errorf("admission check: %w", err)
	}
	if !d.Allowed {
		rateLimitedTotal.Inc()
		slog.Warn("rate limit exceeded", "client", identity, "retry_after", d.RetryAfter)
		return d, &Error{
			Kind:       KindRateLimited,
			Err:        errors.New("rate limit exceeded"),
			RetryAfter: d.RetryAfter,
			Remaining:  0,
		}
	}
	return d, nil
}

// Prepare decodes and validates a raw request body.
func (r *Relay) Prepare(body []byte) (*chat.Request, error) {
	req, err := chat.Decode(body, r.Options().Limits)
	if err != nil {
		validationFailures.Inc()
		return nil, &Error{Kind: KindInvalidRequest, Err: err}
	}
	return req, nil
}

// call holds per-request state shared by Stream and Complete.
type call struct {
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	opts     Options
	identity string
	msgs     []chat.Message
	req      upstream.Request
	start    time.Time
}

func (r *Relay) begin(ctx context.Context, identity string, msgs []chat.Message) *call {
	opts := r.Options()
	truncated := chat.Truncate(msgs, opts.MaxContextMessages)

	// The timeout runs from the start of the upstream call, covering both the
	// wait for the first fragment and the whole stream.
	upCtx, cancel := context.WithTimeoutCause(ctx, opts.Timeout, errUpstreamTimeout)
	return &call{
		parent:   ctx,
		ctx:      upCtx,
		cancel:   cancel,
		opts:     opts,
		identity: identity,
		msgs:     truncated,
		req: upstream.Request{
			Model:       opts.Model,
			Messages:    truncated,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		},
		start: r.now(),
	}
}

// Stream forwards msgs upstream and writes every fragment to sink as it
// arrives. Exactly one ledger entry is written per call, except when the
// caller disconnects before any fragment was forwarded.
func (r *Relay) Stream(ctx context.Context, identity string, msgs []chat.Message, sink Sink) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "relay.stream")
	defer span.End()

	c := r.begin(ctx, identity, msgs)
	defer c.cancel()
	telemetry.AddRequestAttributes(span, identity, c.opts.Model, len(c.msgs))

	stream, err := r.upstream.Stream(c.ctx, c.req)
	if err != nil {
		return nil, r.fail(ctx, c, 0, err)
	}
	defer stream.Close()

	activeStreams.Inc()
	defer activeStreams.Dec()

	var text strings.Builder
	fragments := 0
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, r.fail(ctx, c, fragments, err)
		}
		if err := sink.WriteFragment(frag); err != nil {
			return nil, r.fail(ctx, c, fragments, fmt.Errorf("%w: %v", ErrClientDisconnected, err))
		}
		fragments++
		text.WriteString(frag)
	}
	if err := c.ctx.Err(); err != nil {
		return nil, r.fail(ctx, c, fragments, err)
	}
	streamFragments.Observe(float64(fragments))

	usage := stream.Usage()
	if usage == nil {
		est := c.opts.Estimator
		u := ai.NewUsage(est.PromptTokens(c.msgs), est.CompletionTokens(text.String(), fragments))
		usage = &u
	}

	entry := r.succeed(ctx, c, *usage)
	return &Result{
		Entry:     entry,
		Fragments: fragments,
		Message:   chat.Message{Role: chat.RoleAssistant, Content: text.String()},
	}, nil
}

// Complete forwards msgs upstream and waits for the whole reply.
func (r *Relay) Complete(ctx context.Context, identity string, msgs []chat.Message) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "relay.complete")
	defer span.End()

	c := r.begin(ctx, identity, msgs)
	defer c.cancel()
	telemetry.AddRequestAttributes(span, identity, c.opts.Model, len(c.msgs))

	completion, err := r.upstream.Complete(c.ctx, c.req)
	if err != nil {
		return nil, r.fail(ctx, c, 0, err)
	}

	usage := completion.Usage
	if usage == nil {
		est := c.opts.Estimator
		u := ai.NewUsage(est.PromptTokens(c.msgs), est.CompletionTokens(completion.Message.Content, 0))
		usage = &u
	}

	entry := r.succeed(ctx, c, *usage)
	return &Result{Entry: entry, Message: completion.Message}, nil
}

func (r *Relay) latency(c *call) time.Duration {
	d := r.now().Sub(c.start)
	upstreamLatency.Observe(d.Seconds())
	return d
}

func (r *Relay) succeed(ctx context.Context, c *call, usage ai.Usage) ledger.Entry {
	latency := r.latency(c)
	cost := c.opts.Pricing.Cost(usage)

	entry := r.ledger.Record(ledger.Entry{
		Endpoint:         c.opts.Endpoint,
		Model:            c.opts.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Cost:             cost,
		Client:           c.identity,
		Success:          true,
		LatencyMs:        latency.Milliseconds(),
	})

	requestsTotal.WithLabelValues(outcomeSuccess).Inc()
	tokensTotal.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	tokensTotal.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	costTotal.Add(cost)

	span := trace.SpanFromContext(ctx)
	telemetry.AddUsageAttributes(span, usage.PromptTokens, usage.CompletionTokens, cost)

	slog.Info("upstream call completed",
		"client", c.identity,
		"model", c.opts.Model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"cost_usd", cost,
		"latency_ms", latency.Milliseconds(),
		"trace_id", telemetry.TraceID(ctx),
	)
	return entry
}

// fail classifies err, writes the failure entry and returns the caller-facing error.
func (r *Relay) fail(ctx context.Context, c *call, fragments int, err error) error {
	latency := r.latency(c)
	span := trace.SpanFromContext(ctx)
	telemetry.AddErrorAttribute(span, err)

	var out error
	var outcome string
	switch {
	case errors.Is(context.Cause(c.ctx), errUpstreamTimeout):
		outcome = outcomeTimeout
		out = &Error{Kind: KindUpstreamTimeout, Err: errUpstreamTimeout}
	case errors.Is(err, ErrClientDisconnected) || c.parent.Err() != nil:
		outcome = outcomeDisconnected
		out = ErrClientDisconnected
	default:
		outcome = outcomeError
		out = &Error{Kind: KindUpstreamFailure, Err: err}
	}
	requestsTotal.WithLabelValues(outcome).Inc()

	if outcome == outcomeDisconnected && fragments == 0 {
		slog.Info("client disconnected before first fragment", "client", c.identity)
		return out
	}

	description := err.Error()
	switch outcome {
	case outcomeTimeout:
		description = errUpstreamTimeout.Error()
	case outcomeDisconnected:
		description = ErrClientDisconnected.Error()
	}

	r.ledger.Record(ledger.Entry{
		Endpoint:  c.opts.Endpoint,
		Model:     c.opts.Model,
		Client:    c.identity,
		Success:   false,
		Error:     description,
		LatencyMs: latency.Milliseconds(),
	})

	slog.Error("upstream call failed",
		"client", c.identity,
		"model", c.opts.Model,
		"outcome", outcome,
		"fragments", fragments,
		"latency_ms", latency.Milliseconds(),
		"error", err,
	)
	return out
}
