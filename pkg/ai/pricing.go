package ai

// Usage is a token count triple. Total is always Prompt + Completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

func NewUsage(prompt, completion int) Usage {
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// Pricing holds per-1000-token prices in currency units.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Cost calculates price based on prompt and completion tokens.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.PromptTokens)/1000.0*p.PromptPer1K +
		float64(u.CompletionTokens)/1000.0*p.CompletionPer1K
}
