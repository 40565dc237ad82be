package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sopnav/sopnav"
	"github.com/sopnav/sopnav/internal/logging"
	redisstore "github.com/sopnav/sopnav/pkg/adapters/redis"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
)

var rootCmd = &cobra.Command{
	Use:   "sopnav",
	Short: "sopnav is a graph-driven SOP navigation engine",
	Long: `sopnav turns workflow documents with embedded mermaid flowcharts into
navigable state machines, exposed to AI agents as MCP tools.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the agent workflow documents")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
}

// buildEngine wires an Engine from the command's flags. Sessions persist
// under <dir>/.sopnav/sessions unless --sessions-dir or --redis overrides
// the backend.
func buildEngine(cmd *cobra.Command, args []string) (*sopnav.Engine, error) {
	dir := agentsDir(cmd, args)

	level, _ := cmd.Flags().GetString("log-level")
	logger := logging.New(logging.ParseLevel(level))

	opts := []sopnav.Option{sopnav.WithLogger(logger)}

	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		opts = append(opts, sopnav.WithStrictMode(true))
	}

	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		opts = append(opts, sopnav.WithSnapshotStore(redisstore.New(addr, "", 0)))
	} else {
		sessionsDir, _ := cmd.Flags().GetString("sessions-dir")
		if sessionsDir == "" {
			sessionsDir = filepath.Join(dir, ".sopnav", "sessions")
		}
		opts = append(opts, sopnav.WithSessionsDir(sessionsDir))
	}

	eng, err := sopnav.New(dir, opts...)
	if err != nil {
		return nil, err
	}

	if err := eng.LoadPersisted(cmd.Context()); err != nil {
		logger.Warn("could not restore persisted sessions", "err", err)
	}

	return eng, nil
}

// agentsDir resolves the documents directory, letting a positional argument
// stand in when --dir was not set explicitly.
func agentsDir(cmd *cobra.Command, args []string) string {
	dir, _ := cmd.Flags().GetString("dir")
	if !cmd.Flags().Changed("dir") && len(args) > 0 {
		dir = args[0]
	}
	return dir
}

func resolveDocument(cmd *cobra.Command, ref string) (*workflowdoc.Document, error) {
	dir, _ := cmd.Flags().GetString("dir")
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return workflowdoc.NewDirResolver(abs).Resolve(cmd.Context(), ref)
}
