package ledger

import "time"

// Entry captures the outcome of one upstream attempt.
type Entry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Endpoint         string    `json:"endpoint"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Cost             float64   `json:"cost"`
	Client           string    `json:"client"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	LatencyMs        int64     `json:"latencyMs"`
}

// Stats aggregated usage statistics
type Stats struct {
	TotalRequests           int     `json:"totalRequests"`
	SuccessfulRequests      int     `json:"successfulRequests"`
	FailedRequests          int     `json:"failedRequests"`
	TotalTokens             int     `json:"totalTokens"`
	TotalCost               float64 `json:"totalCost"`
	AverageTokensPerRequest float64 `json:"averageTokensPerRequest"`
	AverageLatencyMs        float64 `json:"averageLatencyMs"`
	RequestsPerMinute       int     `json:"requestsPerMinute"`
	CostToday               float64 `json:"costToday"`
	TokensToday             int     `json:"tokensToday"`
	RequestsToday           int     `json:"requestsToday"`
}

// ActivityBucket counts entries recorded in one wall-clock minute.
type ActivityBucket struct {
	Timestamp string `json:"timestamp"`
	Count     int    `json:"count"`
}
