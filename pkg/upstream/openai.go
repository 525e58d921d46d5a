package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/ngoyal88/studybuddy-relay/pkg/ai"
	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
)

// OpenAI handles requests against any OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates a client. An empty baseURL keeps the library default.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAI(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func usageFrom(u openai.Usage) *ai.Usage {
	if u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	usage := ai.NewUsage(u.PromptTokens, u.CompletionTokens)
	return &usage
}

// Complete makes a chat completion request.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := o.client.CreateChatCompletion(ctx, toOpenAI(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai completion: no choices returned")
	}

	return &Completion{
		Message: chat.Message{Role: chat.RoleAssistant, Content: resp.Choices[0].Message.Content},
		Usage:   usageFrom(resp.Usage),
	}, nil
}

// Stream creates a streaming chat completion request. Usage reporting is
// requested so the final chunk carries exact token counts.
func (o *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	oreq := toOpenAI(req)
	oreq.Stream = true
	oreq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := o.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &openaiStream{stream: stream}, nil
}

// openaiStream wraps go-openai's stream and drops chunks without text.
type openaiStream struct {
	stream *openai.ChatCompletionStream
	usage  *ai.Usage
}

func (s *openaiStream) Recv() (string, error) {
	for {
		chunk, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("openai stream: %w", err)
		}
		if chunk.Usage != nil {
			s.usage = usageFrom(*chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *openaiStream) Usage() *ai.Usage { return s.usage }

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
