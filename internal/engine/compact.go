package engine

import (
	"errors"
	"math"
	"strings"

	"github.com/mosaic-ai/mosaic/internal/event"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

const (
	// compactTriggerRatio is the share of the effective max context at
	// which auto-compaction fires.
	compactTriggerRatio = 0.95

	// compactEntryChars bounds each summarized message.
	compactEntryChars = 200

	// maxPreservedFiles bounds the preserved-file list.
	maxPreservedFiles = 20

	compactPrefix      = "Résumé de conversation (compact): "
	preservedFilesHead = "Fichiers conservés après compaction:"
)

// ErrNothingToCompact is returned when no provider-visible messages
// exist to summarize; the original message list is left intact.
var ErrNothingToCompact = errors.New("nothing to compact")

// ErrProcessing is returned by operations that must not overlap a turn.
var ErrProcessing = errors.New("a turn is in progress")

// shouldAutoCompact reports whether the token total has crossed the
// auto-compact threshold. A max of zero, negative, or NaN disables the
// trigger.
func shouldAutoCompact(total int, max float64) bool {
	if math.IsNaN(max) || max <= 0 {
		return false
	}
	return float64(total) >= compactTriggerRatio*max
}

// effectiveMaxContext resolves the context cap: explicit config, then
// the provider's model limit, then the provider default.
func (e *Engine) effectiveMaxContext() int {
	if e.opts.MaxContextTokens > 0 {
		return e.opts.MaxContextTokens
	}
	providerID := e.opts.Provider
	if providerID == "" {
		if p, err := e.providers.Default(); err == nil {
			providerID = p.ID()
		}
	}
	return e.providers.ContextLimit(providerID, e.opts.Model)
}

// Compact summarizes and replaces the live message list. It refuses to
// run while a turn is processing, and leaves the originals intact when
// summary construction fails.
func (e *Engine) Compact() error {
	if !e.processing.CompareAndSwap(false, true) {
		return ErrProcessing
	}
	defer e.processing.Store(false)

	if err := e.compact(); err != nil {
		return err
	}
	e.persist()
	return nil
}

// compact performs the summarization. Callers hold the processing flag.
func (e *Engine) compact() error {
	limit := e.effectiveMaxContext()
	// Budget the summary so the reseeded estimate lands well below the
	// trigger threshold.
	charBudget := 2 * limit

	e.mu.Lock()
	summary := buildSummary(e.conv.Messages, charBudget)
	if summary == "" {
		e.mu.Unlock()
		return ErrNothingToCompact
	}
	files := preservedFiles(e.conv.Messages, maxPreservedFiles)

	content := compactPrefix + summary
	if len(files) > 0 {
		content += "\n\n" + preservedFilesHead + "\n- " + strings.Join(files, "\n- ")
	}

	before := e.conv.TotalTokens
	msg := types.Message{
		Role:    types.RoleAssistant,
		Content: content,
		Time:    e.conv.nextTime(),
	}
	msg.ID = newMessageID()
	e.conv.Messages = []types.Message{msg}
	e.conv.Tokens = types.TokenBreakdown{Prompt: estimateTokens(content)}
	e.conv.TotalTokens = e.conv.Tokens.Total()
	after := e.conv.TotalTokens
	convID := e.conv.ID
	e.mu.Unlock()

	event.PublishSync(event.Event{Type: event.Compacted, Data: event.CompactedData{
		ConversationID: convID,
		TokensBefore:   before,
		TokensAfter:    after,
	}})
	return nil
}

// buildSummary renders role-labelled, truncated lines for every
// provider-visible message, stopping at the character budget.
func buildSummary(messages []types.Message, charBudget int) string {
	var sb strings.Builder
	for _, m := range messages {
		var line string
		switch m.Role {
		case types.RoleUser:
			line = "[user] " + truncateRunes(m.Content, compactEntryChars)
		case types.RoleAssistant:
			if m.Content == "" {
				continue
			}
			line = "[assistant] " + truncateRunes(m.Content, compactEntryChars)
		case types.RoleTool:
			if m.Tool == nil {
				continue
			}
			line = "[tool] " + m.Tool.Name
		default:
			continue
		}
		if sb.Len()+len(line)+1 > charBudget {
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// preservedFiles collects the distinct file paths touched by tool
// calls, in first-seen order, bounded by limit.
func preservedFiles(messages []types.Message, limit int) []string {
	seen := make(map[string]bool)
	var files []string
	for _, m := range messages {
		if m.Role != types.RoleTool || m.Tool == nil {
			continue
		}
		for _, key := range []string{"filePath", "path"} {
			path, ok := m.Tool.Args[key].(string)
			if !ok || path == "" || seen[path] {
				continue
			}
			seen[path] = true
			files = append(files, path)
			if len(files) >= limit {
				return files
			}
		}
	}
	return files
}
