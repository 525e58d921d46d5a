// Package upstream talks to the hosted completion service.
package upstream

import (
	"context"

	"github.com/ngoyal88/studybuddy-relay/pkg/ai"
	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
)

// Request is one completion call. Messages are already validated and truncated.
type Request struct {
	Model       string
	Messages    []chat.Message
	MaxTokens   int
	Temperature float32
}

// Stream yields text fragments in upstream order. Recv returns io.EOF after the
// last fragment.
type Stream interface {
	Recv() (string, error)
	// Usage is the server-reported count, available after io.EOF if the
	// upstream sent one.
	Usage() *ai.Usage
	Close() error
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Message chat.Message
	Usage   *ai.Usage
}

// Completer is the upstream completion service.
type Completer interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Complete(ctx context.Context, req Request) (*Completion, error)
}
