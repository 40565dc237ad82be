package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sopnav/sopnav/pkg/mermaid"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <agent>",
	Short: "Export the workflow graph",
	Long:  `Parses the agent's flowchart and prints it back as normalized mermaid source.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := resolveDocument(cmd, args[0])
		if err != nil {
			fmt.Printf("Error resolving '%s': %v\n", args[0], err)
			os.Exit(1)
		}

		g := mermaid.Parse(doc.Mermaid)
		if len(g.Nodes) == 0 {
			fmt.Println("Document contains no flowchart nodes")
			os.Exit(1)
		}
		if doc.Front.EntryNode != "" {
			g.OverrideEntry(doc.Front.EntryNode)
		}

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			fmt.Printf("entry:     %s\n", g.EntryNode)
			fmt.Printf("nodes:     %d\n", len(g.Nodes))
			fmt.Printf("edges:     %d\n", len(g.Edges))
			fmt.Printf("decisions: %s\n", strings.Join(g.DecisionNodes, ", "))
			fmt.Printf("terminals: %s\n", strings.Join(g.TerminalNodes, ", "))
			return
		}

		fmt.Print(mermaid.Render(g))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().Bool("stats", false, "Print graph statistics instead of mermaid source")
}
