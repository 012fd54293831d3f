package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mosaic-ai/mosaic/internal/provider"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

const (
	// maxToolMemory bounds the distinct (tool, args) pairs carried in
	// the prepended tool-memory block.
	maxToolMemory = 10

	// maxToolMemoryEntryChars bounds each memory entry.
	maxToolMemoryEntryChars = 500

	interruptionMarker = "[Your previous response was interrupted by the user.]"
)

// buildOutbound flattens the conversation into the provider's
// user/assistant shape. Tool turns are collapsed into one prepended
// assistant block holding the last distinct (tool, argsJSON) pairs with
// truncated results; an interruption marker follows any assistant whose
// turn was aborted. Slash, system, and error messages stay local.
func buildOutbound(messages []types.Message) []provider.ChatMessage {
	out := make([]provider.ChatMessage, 0, len(messages)+1)

	if memory := toolMemoryBlock(messages); memory != "" {
		out = append(out, provider.ChatMessage{Role: "assistant", Text: memory})
	}

	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
			out = append(out, provider.ChatMessage{
				Role:   "user",
				Text:   m.Content,
				Images: m.Attachments,
			})
		case types.RoleAssistant:
			if m.Content != "" {
				out = append(out, provider.ChatMessage{Role: "assistant", Text: m.Content})
			}
			if m.Interrupted {
				out = append(out, provider.ChatMessage{Role: "user", Text: interruptionMarker})
			}
		}
	}
	return out
}

// toolMemoryBlock renders the recent tool memory. Entries are keyed by
// (tool, argsJSON); a repeated call replaces its earlier entry so the
// block keeps the latest result for each distinct invocation.
func toolMemoryBlock(messages []types.Message) string {
	type entry struct {
		key  string
		text string
	}
	var (
		order []string
		byKey = make(map[string]entry)
	)

	for _, m := range messages {
		if m.Role != types.RoleTool || m.Tool == nil || m.Tool.Running {
			continue
		}
		argsJSON, err := json.Marshal(m.Tool.Args)
		if err != nil {
			argsJSON = []byte("{}")
		}
		key := m.Tool.Name + " " + string(argsJSON)

		result := ""
		if m.Tool.Result != nil {
			result = m.Tool.Result.Text()
		}
		text := truncateRunes(fmt.Sprintf("- %s %s -> %s", m.Tool.Name, argsJSON, result), maxToolMemoryEntryChars)

		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = entry{key: key, text: text}
	}

	if len(order) == 0 {
		return ""
	}
	if len(order) > maxToolMemory {
		order = order[len(order)-maxToolMemory:]
	}

	var sb strings.Builder
	sb.WriteString("Recent tool memory:\n")
	for i, key := range order {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(byKey[key].text)
	}
	return sb.String()
}
