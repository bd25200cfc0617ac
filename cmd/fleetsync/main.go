// fleetsync ingests fleet webhooks and web-book pulls into the document store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fleetsync",
		Short: "Fleet webhook ingestion and deduplicated import pipeline",
		Long: `fleetsync receives trip and driver-behavior webhooks, pulls the web book
on a schedule and writes deduplicated documents to the store.

Commands:
  serve   Run the HTTP server and the web-book scheduler
  probe   Probe the webhook endpoints of a running instance
  send    Replay a JSON payload against a webhook with retries`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newProbeCmd(), newSendCmd())
	return root
}
