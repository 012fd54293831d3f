package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mosaic-ai/mosaic/internal/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available providers and models",
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir("")
		if err != nil {
			return err
		}
		opts, err := config.Load(workDir)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := initLogging(opts.LogLevel); err != nil {
			return err
		}

		registry := buildProviders(context.Background(), opts)
		ids := registry.IDs()
		if len(ids) == 0 {
			fmt.Println("No providers configured.")
			return nil
		}
		sort.Strings(ids)

		for _, id := range ids {
			p, err := registry.Get(id)
			if err != nil {
				continue
			}
			fmt.Printf("%s (%s)\n", p.Name(), p.ID())
			for _, m := range p.Models() {
				fmt.Printf("  %-40s ctx=%d\n", m.ID, m.ContextLength)
			}
		}
		return nil
	},
}
