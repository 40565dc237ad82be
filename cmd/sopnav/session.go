package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sopnav/sopnav/pkg/adapters/file"
	redisstore "github.com/sopnav/sopnav/pkg/adapters/redis"
	"github.com/sopnav/sopnav/pkg/ports"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long:  `List, inspect, and remove persistent sessions from the snapshot store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all persisted sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd)
		if err != nil {
			fmt.Printf("Error opening session store: %v\n", err)
			os.Exit(1)
		}
		sessions, err := store.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing sessions: %v\n", err)
			os.Exit(1)
		}

		if len(sessions) == 0 {
			fmt.Println("No persisted sessions found.")
			return
		}

		fmt.Println("Persisted Sessions:")
		for _, s := range sessions {
			fmt.Println("- " + s)
		}
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		store, err := getStore(cmd)
		if err != nil {
			fmt.Printf("Error opening session store: %v\n", err)
			os.Exit(1)
		}

		snap, err := store.Load(cmd.Context(), sessionID)
		if err != nil {
			fmt.Printf("Error loading session '%s': %v\n", sessionID, err)
			os.Exit(1)
		}

		// Pretty print JSON
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling snapshot: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(string(data))
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd)
		if err != nil {
			fmt.Printf("Error opening session store: %v\n", err)
			os.Exit(1)
		}
		hasError := false

		for _, sessionID := range args {
			if err := store.Delete(cmd.Context(), sessionID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", sessionID, err)
				hasError = true
			} else {
				fmt.Printf("Removed session '%s'\n", sessionID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionCmd.PersistentFlags().String("sessions-dir", "", "Directory for session persistence (default <dir>/.sopnav/sessions)")
	sessionCmd.PersistentFlags().String("redis", "", "Redis address for session persistence (overrides --sessions-dir)")
}

func getStore(cmd *cobra.Command) (ports.SnapshotStore, error) {
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		return redisstore.New(addr, "", 0), nil
	}

	storePath, _ := cmd.Flags().GetString("sessions-dir")
	if storePath == "" {
		projectDir, _ := cmd.Flags().GetString("dir")
		if projectDir == "" {
			projectDir = "."
		}
		storePath = filepath.Join(projectDir, ".sopnav", "sessions")
	}
	return file.NewStore(storePath)
}
