// Package types holds the shared data model of the conversation engine.
package types

// Role discriminates the message variants in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSlash     Role = "slash"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// SentToProvider reports whether messages with this role are part of the
// outbound request. Slash output and informational banners stay local.
func (r Role) SentToProvider() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of a conversation. Role selects which of the
// optional fields are meaningful; the tool payload is a nested struct
// rather than a set of loose optionals.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Time    int64  `json:"time"` // unix milliseconds, monotone per conversation

	// User fields.
	Pasted      bool         `json:"pasted,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Assistant fields.
	Reasoning   string `json:"reasoning,omitempty"`
	DurationMS  int64  `json:"durationMs,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`

	// Tool fields.
	Tool *ToolPayload `json:"tool,omitempty"`
}

// Attachment is an inline image attached to a user message.
type Attachment struct {
	Mime string `json:"mime"`
	Data []byte `json:"data"`
}

// ToolPayload carries the call and result of a tool invocation.
type ToolPayload struct {
	CallID    string         `json:"callID,omitempty"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Result    *ToolResult    `json:"result,omitempty"`
	Success   bool           `json:"success"`
	Running   bool           `json:"running,omitempty"`
	StartedAt int64          `json:"startedAt,omitempty"`
}

// ToolResult is the envelope every tool execution resolves to. Executions
// never surface Go errors to the model; failures are carried here.
type ToolResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns the result rendered as a string for prompt embedding.
func (r ToolResult) Text() string {
	if !r.Success && r.Error != "" {
		return "Error: " + r.Error
	}
	switch v := r.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return stringify(v)
	}
}
