package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sopnav/sopnav"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sopnav",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sopnav version %s\n", strings.TrimSpace(sopnav.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
