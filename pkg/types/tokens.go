package types

// TokenBreakdown aggregates the token estimate of a conversation by
// origin. Values are estimates until the provider reports authoritative
// usage at the end of a turn.
type TokenBreakdown struct {
	Prompt    int `json:"prompt"`
	Reasoning int `json:"reasoning"`
	Output    int `json:"output"`
	Tools     int `json:"tools"`
}

// Total sums all buckets.
func (t TokenBreakdown) Total() int {
	return t.Prompt + t.Reasoning + t.Output + t.Tools
}

// Usage is the authoritative token count a provider reports on finish.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	ReasoningTokens  int `json:"reasoningTokens,omitempty"`
	TotalTokens      int `json:"totalTokens"`
}
