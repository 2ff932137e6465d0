package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/spf13/cobra"
)

func ContextCmd() *cobra.Command {
	var customPrompt string

	cmd := &cobra.Command{
		Use:   "context <function>",
		Short: "Assemble the context document for a function",
		Long:  "Build and print the context document a function would receive, invariants first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runContext(args[0], customPrompt, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().StringVar(&customPrompt, "prompt", "", "Custom instructions appended to the assembled context")

	return cmd
}

func runContext(functionName, customPrompt, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	contextSvc := newContextService(pool)

	result := contextSvc.BuildContext(ctx, service.BuildInput{
		Function:     functionName,
		CustomPrompt: customPrompt,
	})

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if result.Degraded {
			fmt.Println("# (degraded: fallback context)")
		}
		fmt.Println(result.Text)
	}

	return nil
}
