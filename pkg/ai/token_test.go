package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
)

func TestHeuristicEstimator(t *testing.T) {
	est := HeuristicEstimator{CharsPerToken: 4}

	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: strings.Repeat("a", 20)},
		{Role: chat.RoleUser, Content: strings.Repeat("b", 22)},
	}

	// 42 characters / 4, rounded up
	assert.Equal(t, 11, est.PromptTokens(msgs))
	assert.Equal(t, 0, est.PromptTokens(nil))

	assert.Equal(t, 5, est.CompletionTokens("whatever the text is", 5))
	assert.Equal(t, 3, est.CompletionTokens("0123456789", 0))
}

func TestHeuristicEstimator_ZeroDivisor(t *testing.T) {
	est := HeuristicEstimator{}
	assert.Equal(t, 2, est.PromptTokens([]chat.Message{{Role: chat.RoleUser, Content: "12345678"}}))
}

func TestNewEstimator(t *testing.T) {
	assert.IsType(t, HeuristicEstimator{}, NewEstimator("heuristic", "gpt-4o-mini", 4))
	assert.IsType(t, &TiktokenEstimator{}, NewEstimator("tiktoken", "gpt-4o-mini", 4))
}

func TestTiktokenEstimator_Counts(t *testing.T) {
	// Works with or without access to the encoding files: without them the
	// heuristic is used.
	est := NewTiktokenEstimator("gpt-4o-mini", 4)

	msgs := []chat.Message{{Role: chat.RoleUser, Content: "Explain goroutines in one sentence."}}
	assert.Positive(t, est.PromptTokens(msgs))
	assert.Positive(t, est.CompletionTokens("Goroutines are lightweight threads.", 6))
}

func TestPricing_Cost(t *testing.T) {
	p := Pricing{PromptPer1K: 0.00015, CompletionPer1K: 0.0006}

	assert.InDelta(t, 0.0, p.Cost(Usage{}), 1e-12)
	assert.InDelta(t, 0.00015+0.0006, p.Cost(NewUsage(1000, 1000)), 1e-12)
	assert.InDelta(t, 11.0/1000*0.00015+5.0/1000*0.0006, p.Cost(NewUsage(11, 5)), 1e-12)
}

func TestNewUsage(t *testing.T) {
	u := NewUsage(11, 5)
	assert.Equal(t, 16, u.TotalTokens)
}
