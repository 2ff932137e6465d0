package main

import (
	"fmt"
	"os"

	"github.com/ckr-digital/ridgeline/internal/cli"
	"github.com/ckr-digital/ridgeline/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ridgelined",
		Short: "Ridgeline daemon and CLI",
		Long:  "Ridgeline daemon for running the knowledge API server and managing files, jobs, and assignments",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.KnowledgeCmd())
	rootCmd.AddCommand(admin.JobsCmd())
	rootCmd.AddCommand(admin.SearchCmd())
	rootCmd.AddCommand(admin.ContextCmd())
	rootCmd.AddCommand(admin.AssignCmd())
	rootCmd.AddCommand(admin.StatsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
