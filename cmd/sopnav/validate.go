package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sopnav/sopnav/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <agent>",
	Short: "Check a workflow graph for consistency",
	Long:  `Parses the agent's flowchart and reports dead edges, unreachable nodes and orphan prompt sections.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args[0]); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Graph is valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, ref string) error {
	doc, err := resolveDocument(cmd, ref)
	if err != nil {
		return fmt.Errorf("failed to resolve document: %w", err)
	}
	return validator.ValidateDocument(doc)
}
