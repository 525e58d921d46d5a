// Package chat defines the conversation types accepted by the relay and the
// rules that bound them before they are forwarded upstream.
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one role-tagged conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the body of a chat call. Messages are ordered oldest first.
type Request struct {
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// Limits bounds what a client may send.
type Limits struct {
	MaxMessages      int
	MaxMessageLength int
}

var ErrInvalid = errors.New("invalid request format or message too long")

// rawMessage keeps content as raw JSON so a non-string content is rejected
// instead of silently decoded.
type rawMessage struct {
	Role    *Role           `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawRequest struct {
	Messages json.RawMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// Decode parses and validates a raw request body. Every failure wraps ErrInvalid.
func Decode(body []byte, limits Limits) (*Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrInvalid, err)
	}

	trimmed := bytes.TrimSpace(raw.Messages)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: messages must be an array", ErrInvalid)
	}

	var items []*rawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: decode messages: %v", ErrInvalid, err)
	}

	msgs := make([]Message, 0, len(items))
	for i, item := range items {
		if item == nil || item.Role == nil || len(item.Content) == 0 {
			return nil, fmt.Errorf("%w: message %d is missing role or content", ErrInvalid, i)
		}
		raw := bytes.TrimSpace(item.Content)
		var content string
		if len(raw) == 0 || raw[0] != '"' {
			return nil, fmt.Errorf("%w: message %d content must be a string", ErrInvalid, i)
		}
		if err := json.Unmarshal(raw, &content); err != nil {
			return nil, fmt.Errorf("%w: message %d content must be a string", ErrInvalid, i)
		}
		msgs = append(msgs, Message{Role: *item.Role, Content: content})
	}

	if err := Validate(msgs, limits); err != nil {
		return nil, err
	}
	return &Request{Messages: msgs, Stream: raw.Stream}, nil
}

// Validate checks the structural rules on an already decoded sequence.
func Validate(msgs []Message, limits Limits) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalid)
	}
	if limits.MaxMessages > 0 && len(msgs) > limits.MaxMessages {
		return fmt.Errorf("%w: %d messages exceeds limit of %d", ErrInvalid, len(msgs), limits.MaxMessages)
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalid, i, m.Role)
		}
		if limits.MaxMessageLength > 0 && utf8.RuneCountInString(m.Content) > limits.MaxMessageLength {
			return fmt.Errorf("%w: message %d exceeds %d characters", ErrInvalid, i, limits.MaxMessageLength)
		}
	}
	return nil
}

// Truncate keeps every system message and the most recent maxContext
// non-system messages, system messages first. Relative order is preserved.
func Truncate(msgs []Message, maxContext int) []Message {
	var system, rest []Message
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if maxContext >= 0 && len(rest) > maxContext {
		rest = rest[len(rest)-maxContext:]
	}

	out := make([]Message, 0, len(system)+len(rest))
	out = append(out, system...)
	return append(out, rest...)
}

// CharCount is the total number of characters across all message contents.
func CharCount(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}
