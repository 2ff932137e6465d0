package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/spf13/cobra"
)

func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runStats(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runStats(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	statsSvc := service.NewStatsService(
		repository.NewChunkRepository(pool),
		repository.NewKnowledgeFileRepository(pool),
	)

	stats, err := statsSvc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Println("Knowledge store:")
		fmt.Printf("  Files: %d (%d active)\n", stats.TotalFiles, stats.ActiveFiles)
		fmt.Printf("  Chunks: %d (%d embedded, %d unembedded)\n", stats.TotalChunks, stats.EmbeddedChunks, stats.UnembeddedChunks)
		if len(stats.ByCategory) > 0 {
			fmt.Println("  By category:")
			categories := make([]string, 0, len(stats.ByCategory))
			for c := range stats.ByCategory {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			for _, c := range categories {
				fmt.Printf("    %s: %d\n", c, stats.ByCategory[c])
			}
		}
	}

	return nil
}
