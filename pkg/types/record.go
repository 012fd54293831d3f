package types

import "encoding/json"

// ConversationRecord is the durable form of a conversation, written
// atomically after each finalized turn.
type ConversationRecord struct {
	ID          string `json:"id"`
	Timestamp   int64  `json:"timestamp"`
	Steps       []Step `json:"steps"`
	TotalSteps  int    `json:"totalSteps"`
	Title       string `json:"title,omitempty"`
	Workspace   string `json:"workspace,omitempty"`
	TotalTokens int    `json:"totalTokens,omitempty"`
	Model       string `json:"model,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Step is one flattened history entry. Success is present only on tool
// steps; ToolResult is either a string or a structured value.
type Step struct {
	Type       string         `json:"type"` // user | assistant | tool | system
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	ToolArgs   map[string]any `json:"toolArgs,omitempty"`
	ToolResult any            `json:"toolResult,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

func stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
