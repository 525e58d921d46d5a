package ai

import (
	"math"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
)

// Estimator turns a conversation and a finished completion into token counts.
// Counts reported by the upstream always win over an estimate; see Usage.
type Estimator interface {
	PromptTokens(msgs []chat.Message) int
	CompletionTokens(text string, fragments int) int
}

// HeuristicEstimator divides the input character count by a fixed divisor and
// counts one token per streamed fragment.
type HeuristicEstimator struct {
	CharsPerToken int
}

func (h HeuristicEstimator) divisor() int {
	if h.CharsPerToken <= 0 {
		return 4
	}
	return h.CharsPerToken
}

func (h HeuristicEstimator) PromptTokens(msgs []chat.Message) int {
	return int(math.Ceil(float64(chat.CharCount(msgs)) / float64(h.divisor())))
}

func (h HeuristicEstimator) CompletionTokens(text string, fragments int) int {
	if fragments > 0 {
		return fragments
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / float64(h.divisor())))
}

// TiktokenEstimator counts tokens with the BPE encoding of the configured model.
// The encoding is loaded on first use; if it cannot be loaded the heuristic is used.
type TiktokenEstimator struct {
	model    string
	fallback HeuristicEstimator

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktokenEstimator(model string, charsPerToken int) *TiktokenEstimator {
	return &TiktokenEstimator{model: model, fallback: HeuristicEstimator{CharsPerToken: charsPerToken}}
}

func (t *TiktokenEstimator) encoding() *tiktoken.Tiktoken {
	t.once.Do(func() {
		// 1. Get the encoding for the model (e.g., gpt-4o uses 'o200k_base')
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			// Fallback to cl100k_base if model is unknown
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			t.enc = enc
		}
	})
	return t.enc
}

// CountTokens returns the number of tokens in text, or false when no encoding is available.
func (t *TiktokenEstimator) CountTokens(text string) (int, bool) {
	enc := t.encoding()
	if enc == nil {
		return 0, false
	}
	return len(enc.Encode(text, nil, nil)), true
}

func (t *TiktokenEstimator) PromptTokens(msgs []chat.Message) int {
	if t.encoding() == nil {
		return t.fallback.PromptTokens(msgs)
	}
	total := 0
	for _, m := range msgs {
		n, _ := t.CountTokens(m.Content)
		total += n
	}
	return total
}

func (t *TiktokenEstimator) CompletionTokens(text string, fragments int) int {
	if n, ok := t.CountTokens(text); ok {
		return n
	}
	return t.fallback.CompletionTokens(text, fragments)
}

// NewEstimator picks an estimator by name ("heuristic" or "tiktoken").
func NewEstimator(name, model string, charsPerToken int) Estimator {
	if name == "tiktoken" {
		return NewTiktokenEstimator(model, charsPerToken)
	}
	return HeuristicEstimator{CharsPerToken: charsPerToken}
}
