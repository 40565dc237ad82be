package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sopnav/sopnav/internal/presentation/tui"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
)

var showCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Render a workflow document in the terminal",
	Long:  `Resolves an agent's workflow document and pretty-prints it, falling back to raw markdown when stdout is not a terminal.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := resolveDocument(cmd, args[0])
		if err != nil {
			fmt.Printf("Error resolving '%s': %v\n", args[0], err)
			os.Exit(1)
		}

		content := workflowdoc.Compose(doc.RawFrontmatter, doc.Prose, doc.Mermaid, doc.RawPrompts)

		if term.IsTerminal(int(os.Stdout.Fd())) {
			render := tui.NewRenderer()
			if out, err := render(content); err == nil {
				fmt.Print(out)
				return
			}
		}
		fmt.Print(content)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
