package history

import (
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// ToSteps flattens conversation messages into persisted steps. Slash
// output and error banners are session-local and not persisted.
func ToSteps(messages []types.Message) []types.Step {
	steps := make([]types.Step, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
			steps = append(steps, types.Step{
				Type:      string(m.Role),
				Content:   m.Content,
				Timestamp: m.Time,
			})
		case types.RoleTool:
			if m.Tool == nil {
				continue
			}
			success := m.Tool.Success
			step := types.Step{
				Type:      "tool",
				ToolName:  m.Tool.Name,
				ToolArgs:  m.Tool.Args,
				Success:   &success,
				Timestamp: m.Time,
			}
			if m.Tool.Result != nil {
				step.ToolResult = m.Tool.Result.Result
				if !m.Tool.Result.Success && m.Tool.Result.Error != "" {
					step.ToolResult = m.Tool.Result.Error
				}
			}
			steps = append(steps, step)
		}
	}
	return steps
}

// ToMessages reconstructs messages from persisted steps. The
// composition ToSteps(ToMessages(steps)) leaves steps unchanged for the
// persistable step types.
func ToMessages(steps []types.Step) []types.Message {
	messages := make([]types.Message, 0, len(steps))
	for _, s := range steps {
		switch s.Type {
		case "user", "assistant", "system":
			messages = append(messages, types.Message{
				Role:    types.Role(s.Type),
				Content: s.Content,
				Time:    s.Timestamp,
			})
		case "tool":
			success := s.Success != nil && *s.Success
			payload := &types.ToolPayload{
				Name:    s.ToolName,
				Args:    s.ToolArgs,
				Success: success,
			}
			if s.ToolResult != nil {
				result := &types.ToolResult{Success: success}
				if success {
					result.Result = s.ToolResult
				} else if errText, ok := s.ToolResult.(string); ok {
					result.Error = errText
				} else {
					result.Result = s.ToolResult
				}
				payload.Result = result
			}
			messages = append(messages, types.Message{
				Role: types.RoleTool,
				Time: s.Timestamp,
				Tool: payload,
			})
		}
	}
	return messages
}
