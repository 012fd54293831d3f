package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mosaic-ai/mosaic/internal/config"
	"github.com/mosaic-ai/mosaic/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := history.NewStore(config.GetPaths().ConversationsPath())
		records := store.LoadConversations()
		if len(records) == 0 {
			fmt.Println("No saved conversations.")
			return nil
		}
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[:historyLimit]
		}
		for _, r := range records {
			title := r.Title
			if title == "" {
				title = "(untitled)"
			}
			when := time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04")
			fmt.Printf("%s  %s  steps=%d tokens=%d  %s\n", r.ID, when, r.TotalSteps, r.TotalTokens, title)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum records to list")
}
