package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "oddsedge"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Sports-data edge cache and fan-out layer",
		Version: version,
		Long: `oddsedge sits between fan-facing traffic and a rate-limited sports data
provider. It serves every dataset from cache, coalesces concurrent misses
into single upstream calls, and keeps recently-requested odds warm with a
demand-driven 1-second polling loop.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the edge server",
		Long:  "Starts the HTTP edge, the tiered refresh scheduler and the odds worker pool.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML config file (optional)")
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
