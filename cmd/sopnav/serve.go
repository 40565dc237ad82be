package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sopnav/sopnav/internal/presentation/tui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP inspection and editing API",
	Long: `Starts the session inspection and workflow editing API over HTTP.
The API exposes live session state, event logs, agent documents and
Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")

		eng, err := buildEngine(cmd, args)
		if err != nil {
			fmt.Printf("Error initializing sopnav: %v\n", err)
			os.Exit(1)
		}

		handler, err := eng.HTTPHandler()
		if err != nil {
			fmt.Printf("Error building HTTP API: %v\n", err)
			os.Exit(1)
		}

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		}

		tui.PrintBanner()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting sopnav API on %s\n", srv.Addr)
			fmt.Printf("Serving agents from: %s\n", agentsDir(cmd, args))
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("sopnav API stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Bool("strict", false, "Reject moves that do not follow a graph edge")
	serveCmd.Flags().String("sessions-dir", "", "Directory for session persistence (default <dir>/.sopnav/sessions)")
	serveCmd.Flags().String("redis", "", "Redis address for session persistence (overrides --sessions-dir)")
}
