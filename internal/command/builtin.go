package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

// HistoryLister provides the records /history shows.
type HistoryLister interface {
	LoadConversations() []*types.ConversationRecord
}

// RegisterBuiltins installs the built-in commands. history may be nil;
// /history then reports that no store is attached.
func RegisterBuiltins(r *Registry, history HistoryLister) {
	r.Register(&Command{
		Name:        "clear",
		Description: "Clear the conversation",
		Run: func(string) (Outcome, error) {
			return Outcome{ClearMessages: true, Output: "Conversation cleared."}, nil
		},
	})

	r.Register(&Command{
		Name:        "compact",
		Description: "Compact the conversation to reclaim context",
		Run: func(string) (Outcome, error) {
			return Outcome{Compact: true}, nil
		},
	})

	r.Register(&Command{
		Name:        "review",
		Description: "Review pending file changes",
		Run: func(string) (Outcome, error) {
			return Outcome{EnterReview: true}, nil
		},
	})

	r.Register(&Command{
		Name:        "help",
		Description: "List available commands",
		Run: func(string) (Outcome, error) {
			var sb strings.Builder
			sb.WriteString("Available commands:\n")
			for _, cmd := range r.List() {
				fmt.Fprintf(&sb, "  /%s - %s\n", cmd.Name, cmd.Description)
			}
			return Outcome{Output: strings.TrimRight(sb.String(), "\n")}, nil
		},
	})

	r.Register(&Command{
		Name:        "history",
		Description: "List past conversations",
		Run: func(string) (Outcome, error) {
			if history == nil {
				return Outcome{Output: "No conversation store attached."}, nil
			}
			records := history.LoadConversations()
			if len(records) == 0 {
				return Outcome{Output: "No past conversations."}, nil
			}
			var sb strings.Builder
			const maxListed = 20
			for i, record := range records {
				if i >= maxListed {
					fmt.Fprintf(&sb, "  ... and %d more\n", len(records)-maxListed)
					break
				}
				title := record.Title
				if title == "" {
					title = "(untitled)"
				}
				when := time.UnixMilli(record.Timestamp).Format("2006-01-02 15:04")
				fmt.Fprintf(&sb, "  %s  %s  %s (%d steps)\n", record.ID, when, title, record.TotalSteps)
			}
			return Outcome{Output: strings.TrimRight(sb.String(), "\n")}, nil
		},
	})
}
