package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func AssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Manage knowledge assignments",
		Long:  "Assign knowledge files to consumer functions for context assembly",
	}

	cmd.AddCommand(AssignSetCmd())
	cmd.AddCommand(AssignRemoveCmd())
	cmd.AddCommand(AssignListCmd())

	return cmd
}

func AssignSetCmd() *cobra.Command {
	var (
		loadOrder int32
		required  bool
	)

	cmd := &cobra.Command{
		Use:   "set <function> <file-key>",
		Short: "Assign a file to a function",
		Long:  "Create or update an assignment. Re-running with the same pair updates load order and required flag.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssignSet(args[0], args[1], loadOrder, required)
		},
	}

	cmd.Flags().Int32Var(&loadOrder, "order", 100, "Load order within the function (lower loads first)")
	cmd.Flags().BoolVar(&required, "required", false, "Treat a missing or inactive file as a degraded build")

	return cmd
}

func runAssignSet(functionName, fileKey string, loadOrder int32, required bool) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	contextSvc := newContextService(pool)

	err = contextSvc.Assign(ctx, &domain.KnowledgeAssignment{
		FunctionName: functionName,
		FileKey:      fileKey,
		LoadOrder:    loadOrder,
		Required:     required,
	})
	if err != nil {
		return fmt.Errorf("failed to assign: %w", err)
	}

	fmt.Printf("Assigned %s to %s (order %d)\n", fileKey, functionName, loadOrder)
	return nil
}

func AssignRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <function> <file-key>",
		Short: "Remove an assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssignRemove(args[0], args[1])
		},
	}

	return cmd
}

func runAssignRemove(functionName, fileKey string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	contextSvc := newContextService(pool)

	if err := contextSvc.Unassign(ctx, functionName, fileKey); err != nil {
		return fmt.Errorf("failed to remove assignment: %w", err)
	}

	fmt.Printf("Removed %s from %s\n", fileKey, functionName)
	return nil
}

func AssignListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <function>",
		Short: "List assignments for a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runAssignList(args[0], outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runAssignList(functionName, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	contextSvc := newContextService(pool)

	assignments, err := contextSvc.ListAssignments(ctx, functionName)
	if err != nil {
		return fmt.Errorf("failed to list assignments: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(assignments))
		for i, a := range assignments {
			data[i] = map[string]interface{}{
				"function_name": a.FunctionName,
				"file_key":      a.FileKey,
				"load_order":    a.LoadOrder,
				"required":      a.Required,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(assignments) == 0 {
			fmt.Printf("No assignments for %s\n", functionName)
			return nil
		}
		fmt.Printf("Assignments for %s:\n", functionName)
		for _, a := range assignments {
			req := ""
			if a.Required {
				req = " (required)"
			}
			fmt.Printf("  %3d: %s%s\n", a.LoadOrder, a.FileKey, req)
		}
	}

	return nil
}

func newContextService(pool *pgxpool.Pool) *service.ContextService {
	return service.NewContextService(
		repository.NewAssignmentRepository(pool),
		repository.NewKnowledgeFileRepository(pool),
	)
}
