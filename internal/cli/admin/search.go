package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ckr-digital/ridgeline/internal/config"
	"github.com/ckr-digital/ridgeline/internal/openai"
	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/spf13/cobra"
)

func SearchCmd() *cobra.Command {
	var (
		threshold float64
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a similarity search",
		Long:  "Embed the query and return chunks above the similarity threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runSearch(args[0], threshold, limit, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum cosine similarity (default 0.7)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of matches (default 5)")

	return cmd
}

func runSearch(query string, threshold float64, limit int, outputFormat string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("search requires RIDGELINE_OPENAI_API_KEY")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	searchSvc := service.NewSearchService(repository.NewChunkRepository(pool), openai.NewClient(cfg.OpenAIAPIKey))

	result, err := searchSvc.Search(ctx, service.SearchInput{
		Query:     query,
		Threshold: threshold,
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(result.Matches) == 0 {
			fmt.Println("No matches found")
			return nil
		}
		fmt.Printf("Matches for %q:\n", result.Query)
		for _, m := range result.Matches {
			fmt.Printf("  %.3f %s %s\n", m.Similarity, m.ChunkID, m.Citation)
		}
	}

	return nil
}
