package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "PrimeStride Atlas knowledge retrieval backend",
	Long: `Atlas serves semantic search, grounded chat and the document graph
for an organization's knowledge base.

Examples:
  # Run the HTTP API
  atlas serve

  # Create or update the schema and exit
  atlas migrate

  # Re-embed an organization's documents from the command line
  atlas refresh --org <uuid> --user <uuid>`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
