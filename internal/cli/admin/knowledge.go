package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ckr-digital/ridgeline/internal/config"
	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/openai"
	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func KnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage knowledge files",
		Long:  "Ingest, list, and deactivate knowledge files",
	}

	cmd.AddCommand(KnowledgeIngestCmd())
	cmd.AddCommand(KnowledgeListCmd())
	cmd.AddCommand(KnowledgeGetCmd())
	cmd.AddCommand(KnowledgeDeactivateCmd())
	cmd.AddCommand(KnowledgeReembedCmd())

	return cmd
}

func KnowledgeIngestCmd() *cobra.Command {
	var (
		fileKey  string
		kind     string
		category string
		priority int32
		embed    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a file into the knowledge store",
		Long:  "Read a file from disk, chunk it, and queue an embedding job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runKnowledgeIngest(args[0], fileKey, kind, category, priority, embed, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().StringVar(&fileKey, "key", "", "File key (defaults to the file name without extension)")
	cmd.Flags().StringVar(&kind, "kind", "", "Content kind: text or json (inferred from extension if omitted)")
	cmd.Flags().StringVar(&category, "category", "", "Category label for the file's chunks")
	cmd.Flags().Int32Var(&priority, "priority", 100, "Load priority (lower loads first)")
	cmd.Flags().BoolVar(&embed, "embed", false, "Run the embedding job now instead of leaving it for the daemon")

	return cmd
}

func runKnowledgeIngest(path, fileKey, kind, category string, priority int32, embed bool, outputFormat string) error {
	ctx := context.Background()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	fileName := filepath.Base(path)
	if fileKey == "" {
		fileKey = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	if kind == "" {
		if strings.EqualFold(filepath.Ext(fileName), ".json") {
			kind = string(domain.ContentKindJSON)
		} else {
			kind = string(domain.ContentKindText)
		}
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ingestSvc := newIngestService(pool)

	result, err := ingestSvc.Ingest(ctx, service.IngestInput{
		FileKey:  fileKey,
		FileName: fileName,
		Content:  string(content),
		Kind:     domain.ContentKind(kind),
		Category: category,
		Priority: priority,
	})
	if err != nil {
		return fmt.Errorf("failed to ingest file: %w", err)
	}

	embedStatus := ""
	if embed && result.Job != nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !cfg.HasOpenAI() {
			return fmt.Errorf("--embed requires RIDGELINE_OPENAI_API_KEY")
		}

		chunkRepo := repository.NewChunkRepository(pool)
		tracker := service.NewJobTracker(repository.NewEmbeddingJobRepository(pool))
		runner := service.NewEmbedRunner(chunkRepo, tracker, openai.NewClient(cfg.OpenAIAPIKey), service.DefaultEmbedRunnerConfig())
		if err := runner.RunJobNow(ctx, result.Job.ID); err != nil {
			return fmt.Errorf("embedding run failed: %w", err)
		}

		job, err := tracker.GetJob(ctx, result.Job.ID)
		if err != nil {
			return err
		}
		embedStatus = string(job.Status)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"file_key":    result.File.FileKey,
			"version":     result.File.Version,
			"chunk_count": result.ChunkCount,
			"unchanged":   result.Unchanged,
		}
		if result.Job != nil {
			data["job_id"] = result.Job.ID
		}
		if embedStatus != "" {
			data["job_status"] = embedStatus
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if result.Unchanged {
			fmt.Printf("File %s unchanged (version %d, %d chunks)\n", result.File.FileKey, result.File.Version, result.ChunkCount)
		} else {
			fmt.Printf("Ingested %s: version %d, %d chunks\n", result.File.FileKey, result.File.Version, result.ChunkCount)
		}
		if embedStatus != "" {
			fmt.Printf("Embedding job %s: %s\n", result.Job.ID, embedStatus)
		} else if result.Job != nil {
			fmt.Printf("Embedding job queued: %s\n", result.Job.ID)
		}
	}

	return nil
}

func KnowledgeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge files",
		Long:  "List all knowledge files ordered by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runKnowledgeList(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKnowledgeList(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ingestSvc := newIngestService(pool)

	files, err := ingestSvc.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(files))
		for i, f := range files {
			data[i] = fileToMap(f)
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(files) == 0 {
			fmt.Println("No knowledge files found")
			return nil
		}
		fmt.Println("Knowledge files:")
		for _, f := range files {
			state := "active"
			if !f.Active {
				state = "inactive"
			}
			fmt.Printf("  %s: %s (v%d, priority %d, %s)\n", f.FileKey, f.FileName, f.Version, f.Priority, state)
		}
	}

	return nil
}

func KnowledgeGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <file-key>",
		Short: "Show a knowledge file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runKnowledgeGet(args[0], outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKnowledgeGet(fileKey, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ingestSvc := newIngestService(pool)

	f, err := ingestSvc.GetFile(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(fileToMap(f), "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("File: %s (%s)\n", f.FileKey, f.FileName)
		fmt.Printf("  Kind: %s\n", f.Kind)
		fmt.Printf("  Category: %s\n", f.Category)
		fmt.Printf("  Priority: %d\n", f.Priority)
		fmt.Printf("  Version: %d\n", f.Version)
		fmt.Printf("  Active: %t\n", f.Active)
		fmt.Printf("  Updated: %s\n", f.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func KnowledgeDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <file-key>",
		Short: "Deactivate a knowledge file",
		Long:  "Mark a file inactive so it no longer contributes to search or context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKnowledgeDeactivate(args[0])
		},
	}

	return cmd
}

func runKnowledgeDeactivate(fileKey string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ingestSvc := newIngestService(pool)

	if err := ingestSvc.DeactivateFile(ctx, fileKey); err != nil {
		return fmt.Errorf("failed to deactivate file: %w", err)
	}

	fmt.Printf("File %s deactivated\n", fileKey)
	return nil
}

func KnowledgeReembedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reembed [file-key]",
		Short: "Queue a re-embedding job",
		Long:  "Clear stored embeddings and queue a job to regenerate them. Without a file key, re-embeds the whole store.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileKey := ""
			if len(args) > 0 {
				fileKey = args[0]
			}
			outputFormat, _ := cmd.Flags().GetString("output")
			return runKnowledgeReembed(fileKey, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKnowledgeReembed(fileKey, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ingestSvc := newIngestService(pool)

	job, err := ingestSvc.ReembedFile(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("failed to queue reembed: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"job_id": job.ID,
			"type":   job.Type,
			"status": job.Status,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		scope := fileKey
		if scope == "" {
			scope = "all files"
		}
		fmt.Printf("Reembed job queued for %s: %s\n", scope, job.ID)
	}

	return nil
}

func newIngestService(pool *pgxpool.Pool) *service.IngestService {
	fileRepo := repository.NewKnowledgeFileRepository(pool)
	txRunner := repository.NewTxRunner(pool)
	tracker := service.NewJobTracker(repository.NewEmbeddingJobRepository(pool))
	chunker := service.NewChunker(service.DefaultChunkConfig())
	return service.NewIngestService(txRunner, fileRepo, chunker, tracker)
}

func fileToMap(f *domain.KnowledgeFile) map[string]interface{} {
	return map[string]interface{}{
		"file_key":   f.FileKey,
		"file_name":  f.FileName,
		"kind":       f.Kind,
		"category":   f.Category,
		"priority":   f.Priority,
		"active":     f.Active,
		"version":    f.Version,
		"created_at": f.CreatedAt,
		"updated_at": f.UpdatedAt,
	}
}
