package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/spf13/cobra"
)

func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage embedding jobs",
		Long:  "List, inspect, and cancel embedding jobs",
	}

	cmd.AddCommand(JobsListCmd())
	cmd.AddCommand(JobsGetCmd())
	cmd.AddCommand(JobsCancelCmd())
	cmd.AddCommand(JobsOverviewCmd())

	return cmd
}

func JobsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List embedding jobs",
		Long:  "List embedding jobs newest first, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runJobsList(outputFormat, status, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runJobsList(outputFormat, status string, limit int, cursor string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tracker := service.NewJobTracker(repository.NewEmbeddingJobRepository(pool))

	result, err := tracker.ListJobs(ctx, service.ListJobsInput{
		Status: domain.JobStatus(status),
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(result.Items))
		for i, j := range result.Items {
			data[i] = jobToMap(j)
		}
		output := map[string]interface{}{
			"items":    data,
			"cursor":   result.Cursor,
			"has_more": result.HasMore,
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(result.Items) == 0 {
			fmt.Println("No jobs found")
			return nil
		}
		fmt.Println("Jobs:")
		for _, j := range result.Items {
			printJobLine(j)
		}
		if result.HasMore && result.Cursor != "" {
			fmt.Printf("\nMore results available. Use --cursor %s\n", result.Cursor)
		}
	}

	return nil
}

func JobsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show an embedding job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runJobsGet(args[0], outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runJobsGet(id, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tracker := service.NewJobTracker(repository.NewEmbeddingJobRepository(pool))

	job, err := tracker.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(jobToMap(job), "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Job: %s\n", job.ID)
		fmt.Printf("  Type: %s\n", job.Type)
		if job.FileKey != "" {
			fmt.Printf("  File: %s\n", job.FileKey)
		}
		fmt.Printf("  Status: %s\n", job.Status)
		fmt.Printf("  Progress: %d/%d (%d%%)\n", job.ProcessedChunks, job.TotalChunks, job.Progress())
		if job.CancelRequested {
			fmt.Println("  Cancel requested: yes")
		}
		fmt.Printf("  Created: %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
		if job.StartedAt != nil {
			fmt.Printf("  Started: %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if job.CompletedAt != nil {
			fmt.Printf("  Completed: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		for _, e := range job.ErrorLog {
			fmt.Printf("  Error [%s]: %s\n", e.ChunkID, e.Message)
		}
	}

	return nil
}

func JobsCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Long:  "Mark a job for cancellation. The worker stops at the next batch boundary.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsCancel(args[0])
		},
	}

	return cmd
}

func runJobsCancel(id string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tracker := service.NewJobTracker(repository.NewEmbeddingJobRepository(pool))

	if err := tracker.RequestCancel(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	fmt.Printf("Cancellation requested for job %s\n", id)
	return nil
}

func JobsOverviewCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Show recent jobs by lifecycle bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runJobsOverview(outputFormat, limit)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of recent jobs to inspect")

	return cmd
}

func runJobsOverview(outputFormat string, limit int) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tracker := service.NewJobTracker(repository.NewEmbeddingJobRepository(pool))

	overview, err := tracker.Overview(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to get overview: %w", err)
	}

	if outputFormat == "json" {
		output := map[string]interface{}{
			"active":    jobsToMaps(overview.Active),
			"completed": jobsToMaps(overview.Completed),
			"failed":    jobsToMaps(overview.Failed),
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		printBucket("Active", overview.Active)
		printBucket("Completed", overview.Completed)
		printBucket("Failed", overview.Failed)
	}

	return nil
}

func printBucket(name string, items []*domain.EmbeddingJob) {
	fmt.Printf("%s (%d):\n", name, len(items))
	for _, j := range items {
		printJobLine(j)
	}
}

func printJobLine(j *domain.EmbeddingJob) {
	target := j.FileKey
	if target == "" {
		target = "all"
	}
	fmt.Printf("  %s: %s %s [%s] %d/%d (created: %s)\n",
		j.ID, j.Type, target, j.Status, j.ProcessedChunks, j.TotalChunks,
		j.CreatedAt.Format("2006-01-02 15:04:05"))
}

func jobToMap(j *domain.EmbeddingJob) map[string]interface{} {
	data := map[string]interface{}{
		"id":               j.ID,
		"type":             j.Type,
		"file_key":         j.FileKey,
		"status":           j.Status,
		"total_chunks":     j.TotalChunks,
		"processed_chunks": j.ProcessedChunks,
		"progress":         j.Progress(),
		"cancel_requested": j.CancelRequested,
		"created_at":       j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		data["started_at"] = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		data["completed_at"] = j.CompletedAt.Format(time.RFC3339)
	}
	if len(j.ErrorLog) > 0 {
		data["error_log"] = j.ErrorLog
	}
	return data
}

func jobsToMaps(items []*domain.EmbeddingJob) []map[string]interface{} {
	out := make([]map[string]interface{}, len(items))
	for i, j := range items {
		out[i] = jobToMap(j)
	}
	return out
}
