package event

import "github.com/mosaic-ai/mosaic/pkg/types"

// TurnStartedData is published when the driver begins a user turn.
type TurnStartedData struct {
	ConversationID string `json:"conversationID"`
}

// TurnFinishedData is published after finalization.
type TurnFinishedData struct {
	ConversationID string `json:"conversationID"`
	DurationMS     int64  `json:"durationMs"`
	Aborted        bool   `json:"aborted"`
}

// MessageAppendedData carries a newly appended message.
type MessageAppendedData struct {
	ConversationID string         `json:"conversationID"`
	Message        *types.Message `json:"message"`
}

// MessageUpdatedData carries an in-place update of an existing message.
type MessageUpdatedData struct {
	ConversationID string         `json:"conversationID"`
	Message        *types.Message `json:"message"`
}

// TextDeltaData is an incremental chunk of visible assistant text.
type TextDeltaData struct {
	MessageID string `json:"messageID"`
	Delta     string `json:"delta"`
}

// ReasoningDeltaData is an incremental chunk of hidden reasoning text.
type ReasoningDeltaData struct {
	MessageID string `json:"messageID"`
	Delta     string `json:"delta"`
}

// StepStartedData is published on each model reasoning step.
type StepStartedData struct {
	Step int `json:"step"`
}

// RunningToolStartedData signals a tool whose policy shows a running
// indicator has begun executing.
type RunningToolStartedData struct {
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args,omitempty"`
}

// ToolResolvedData carries a terminal tool result.
type ToolResolvedData struct {
	CallID   string           `json:"callID"`
	ToolName string           `json:"toolName"`
	Result   types.ToolResult `json:"result"`
}

// PendingChangeAddedData signals a recorded file mutation.
type PendingChangeAddedData struct {
	Path string `json:"path"`
	Tool string `json:"tool"`
}

// ApprovalRequiredData is published when a gated tool awaits a decision.
type ApprovalRequiredData struct {
	ID       string         `json:"id"`
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args,omitempty"`
}

// ApprovalResolvedData is published when the pending approval resolves.
type ApprovalResolvedData struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// QuestionRequiredData is published when a tool asks the user a question.
type QuestionRequiredData struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// QuestionResolvedData is published when the question is answered.
type QuestionResolvedData struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// CompactedData is published after a successful compaction.
type CompactedData struct {
	ConversationID string `json:"conversationID"`
	TokensBefore   int    `json:"tokensBefore"`
	TokensAfter    int    `json:"tokensAfter"`
}

// NoticeData is a decorative banner (for example the long-turn notice).
type NoticeData struct {
	Text string `json:"text"`
}
